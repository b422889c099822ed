package provider

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	gtransport "google.golang.org/api/transport/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

// GRPCProvider owns the connection to the admin endpoint.
// Users should get the connection via Conn() and use generated clients.
type GRPCProvider struct {
	endpoint string
	emulator bool
	conn     *grpc.ClientConn
	monitor  *ConnMonitor
}

// NewGRPCProvider dials cfg.Endpoint. Emulator endpoints use plaintext and no
// credentials; everything else goes through Google default credentials.
func NewGRPCProvider(ctx context.Context, cfg DialConfig) (*GRPCProvider, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	monitor := NewConnMonitor()

	var (
		conn *grpc.ClientConn
		err  error
	)
	if cfg.Emulator {
		opts := []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithUnaryInterceptor(monitor.UnaryClientInterceptor()),
		}
		if cfg.UserAgent != "" {
			opts = append(opts, grpc.WithUserAgent(cfg.UserAgent))
		}
		conn, err = grpc.NewClient(cfg.Endpoint, opts...)
	} else {
		// Use a timeout for the dial
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		opts := []option.ClientOption{
			option.WithEndpoint(cfg.Endpoint),
			option.WithScopes(AdminScope),
			option.WithGRPCDialOption(grpc.WithUnaryInterceptor(monitor.UnaryClientInterceptor())),
		}
		if cfg.UserAgent != "" {
			opts = append(opts, option.WithUserAgent(cfg.UserAgent))
		}
		conn, err = gtransport.Dial(dialCtx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial grpc endpoint %s: %w", cfg.Endpoint, err)
	}

	return &GRPCProvider{
		endpoint: cfg.Endpoint,
		emulator: cfg.Emulator,
		conn:     conn,
		monitor:  monitor,
	}, nil
}

// Conn returns the underlying gRPC connection.
func (p *GRPCProvider) Conn() *grpc.ClientConn {
	return p.conn
}

// Endpoint returns the dialed target.
func (p *GRPCProvider) Endpoint() string { return p.endpoint }

// Emulator reports whether the connection targets a local emulator.
func (p *GRPCProvider) Emulator() bool { return p.emulator }

// Monitor returns the per-RPC health tracker installed on the connection.
func (p *GRPCProvider) Monitor() *ConnMonitor { return p.monitor }

// Check fails when the connection is shut down or the endpoint has been
// rejecting our credentials.
func (p *GRPCProvider) Check(ctx context.Context) error {
	if p.conn.GetState() == connectivity.Shutdown {
		return fmt.Errorf("connection to %s is shut down", p.endpoint)
	}
	if s := p.monitor.Status(); s == StatusBlocked {
		return fmt.Errorf("endpoint %s: %s: %s", p.endpoint, s, p.monitor.Health().LastError)
	}
	return nil
}

// Close cleans up resources.
func (p *GRPCProvider) Close() error {
	return p.conn.Close()
}
