// Package control wires configuration into a running table admin client:
// the connection, the completion queue, the recorders, the token cache, the
// operation journal and the health server.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/tableadmin/internal/core/config"
	"github.com/vietddude/tableadmin/internal/health"
	"github.com/vietddude/tableadmin/internal/infra/bigtable/admin"
	redisclient "github.com/vietddude/tableadmin/internal/infra/redis"
	"github.com/vietddude/tableadmin/internal/infra/rpc/cq"
	"github.com/vietddude/tableadmin/internal/infra/rpc/executor"
	"github.com/vietddude/tableadmin/internal/infra/rpc/provider"
	"github.com/vietddude/tableadmin/internal/infra/storage"
	"github.com/vietddude/tableadmin/internal/infra/storage/memory"
	"github.com/vietddude/tableadmin/internal/infra/storage/postgres"
	"github.com/vietddude/tableadmin/internal/infra/tokenstore"
	"github.com/vietddude/tableadmin/internal/metrics"
)

const (
	userAgent       = "tableadmin"
	journalCapacity = 1000
)

// App owns every long-lived component.
type App struct {
	cfg          *config.AppConfig
	conn         *provider.GRPCProvider
	queue        *cq.Queue
	admin        admin.TableAdmin
	journal      *storage.Journal
	redisClient  *redisclient.Client
	db           *postgres.DB
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	cancel context.CancelFunc
}

// Option customises NewApp.
type Option func(*options)

type options struct {
	stub admin.Stub
}

// WithStub skips dialing and sends every RPC to stub.
func WithStub(stub admin.Stub) Option {
	return func(o *options) { o.stub = stub }
}

// NewApp creates an App with all dependencies initialized. Call Start before
// issuing operations.
func NewApp(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{cfg: cfg, log: slog.Default().With("component", "control")}
	ok := false
	defer func() {
		if !ok {
			app.close()
		}
	}()

	// 1. Policies
	retryPolicy, err := cfg.Retry.Build()
	if err != nil {
		return nil, err
	}
	backoff, err := cfg.Backoff.Build()
	if err != nil {
		return nil, fmt.Errorf("backoff: %w", err)
	}
	polling, err := cfg.Polling.Build()
	if err != nil {
		return nil, fmt.Errorf("polling: %w", err)
	}

	// 2. Transport
	stub := o.stub
	if stub == nil {
		app.conn, err = provider.NewGRPCProvider(ctx, provider.DialConfig{
			Endpoint:    cfg.Bigtable.Endpoint,
			Emulator:    cfg.Bigtable.Emulator,
			DialTimeout: cfg.Bigtable.DialTimeout,
			UserAgent:   userAgent,
		})
		if err != nil {
			return nil, err
		}
		stub = admin.NewStub(app.conn.Conn())
		app.log.Info("Connected to admin endpoint",
			"endpoint", app.conn.Endpoint(),
			"emulator", app.conn.Emulator(),
		)
	}

	// 3. Journal
	var repo storage.OperationRepository
	if cfg.Database.URL != "" {
		app.db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, app.db); err != nil {
				return nil, err
			}
		}
		repo = postgres.NewOperationRepo(app.db)
		app.log.Info("Using PostgreSQL journal")
	} else {
		repo = memory.NewOperationRepo(journalCapacity)
		app.log.Info("Using memory journal", "capacity", journalCapacity)
	}
	app.journal = storage.NewJournal(repo)

	// 4. Token cache
	var tokens admin.TokenStore
	if cfg.Redis.URL != "" {
		app.redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, caching tokens in memory", "error", err)
		} else {
			tokens = redisclient.NewTokenStore(app.redisClient, cfg.Redis.TokenTTL)
		}
	}
	if tokens == nil {
		tokens = tokenstore.NewMemory()
	}

	// 5. Queue and client
	app.queue = cq.NewQueue(cfg.Queue.MaxInflight)
	app.admin, err = admin.New(stub, app.queue, admin.Config{
		Project:  cfg.Bigtable.Project,
		Instance: cfg.Bigtable.Instance,
		Retry:    retryPolicy,
		Backoff:  backoff,
		Polling:  polling,
		Recorders: []executor.Recorder{
			metrics.Recorder{},
			executor.NewLogRecorder(slog.Default()),
			app.journal,
		},
		Tokens: tokens,
	})
	if err != nil {
		return nil, err
	}

	// 6. Health
	var checker health.Checker
	if app.conn != nil {
		checker = app.conn
	}
	app.healthMon = health.NewMonitor(checker, app.queue, repo, health.Thresholds{})
	if app.db != nil {
		app.healthMon.AddDependency("database", health.CheckerFunc(app.db.Health))
	}
	if app.redisClient != nil {
		app.healthMon.AddDependency("redis", health.CheckerFunc(app.redisClient.Ping))
	}
	if cfg.Server.Port > 0 {
		app.healthServer = health.NewServer(app.healthMon, cfg.Server.Port)
	}

	ok = true
	return app, nil
}

// Admin returns the configured table admin client.
func (a *App) Admin() admin.TableAdmin { return a.admin }

// Queue returns the completion queue driven by Start.
func (a *App) Queue() *cq.Queue { return a.queue }

// Journal returns the operation journal.
func (a *App) Journal() *storage.Journal { return a.journal }

// Health returns the health monitor.
func (a *App) Health() *health.Monitor { return a.healthMon }

// Start runs the completion queue and background collectors until Stop or ctx ends.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	go a.queue.Run(ctx)
	go metrics.WatchQueue(ctx, a.queue, 5*time.Second)

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	if a.healthServer != nil {
		go func() {
			if err := a.healthServer.Start(); err != nil {
				a.log.Error("Health server failed", "error", err)
			}
		}()
		a.log.Info("Health server started", "port", a.cfg.Server.Port)
	}
	return nil
}

// Stop shuts the queue down, waits for in-flight work to drain and releases
// every connection.
func (a *App) Stop(ctx context.Context) error {
	a.log.Debug("Stopping")

	var errs []error
	if a.queue != nil {
		a.queue.Shutdown()
		if a.cancel != nil {
			select {
			case <-a.queue.Stopped():
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("queue did not drain: %w", ctx.Err()))
			}
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	// Drain the journal while the database is still open.
	if a.journal != nil {
		if err := a.journal.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if a.healthServer != nil {
		if err := a.healthServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("health server: %w", err))
		}
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) close() error {
	var errs []error
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
		a.redisClient = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
		a.db = nil
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("connection: %w", err))
		}
		a.conn = nil
	}
	return errors.Join(errs...)
}
