// Package admin implements the Cloud Bigtable table administration client on
// top of the retry executor. Every operation exists in a blocking form and in
// an Async form that runs on a completion queue.
package admin

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/bigtable/admin/apiv2/adminpb"
	"cloud.google.com/go/iam/apiv1/iampb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/vietddude/tableadmin/internal/infra/rpc/cq"
	"github.com/vietddude/tableadmin/internal/infra/rpc/executor"
	"github.com/vietddude/tableadmin/internal/infra/rpc/retry"
)

// Stub is the subset of the generated table admin client used here.
type Stub interface {
	CreateTable(ctx context.Context, in *adminpb.CreateTableRequest, opts ...grpc.CallOption) (*adminpb.Table, error)
	ListTables(ctx context.Context, in *adminpb.ListTablesRequest, opts ...grpc.CallOption) (*adminpb.ListTablesResponse, error)
	GetTable(ctx context.Context, in *adminpb.GetTableRequest, opts ...grpc.CallOption) (*adminpb.Table, error)
	DeleteTable(ctx context.Context, in *adminpb.DeleteTableRequest, opts ...grpc.CallOption) (*emptypb.Empty, error)
	ModifyColumnFamilies(ctx context.Context, in *adminpb.ModifyColumnFamiliesRequest, opts ...grpc.CallOption) (*adminpb.Table, error)
	DropRowRange(ctx context.Context, in *adminpb.DropRowRangeRequest, opts ...grpc.CallOption) (*emptypb.Empty, error)
	GenerateConsistencyToken(ctx context.Context, in *adminpb.GenerateConsistencyTokenRequest, opts ...grpc.CallOption) (*adminpb.GenerateConsistencyTokenResponse, error)
	CheckConsistency(ctx context.Context, in *adminpb.CheckConsistencyRequest, opts ...grpc.CallOption) (*adminpb.CheckConsistencyResponse, error)
	GetIamPolicy(ctx context.Context, in *iampb.GetIamPolicyRequest, opts ...grpc.CallOption) (*iampb.Policy, error)
	SetIamPolicy(ctx context.Context, in *iampb.SetIamPolicyRequest, opts ...grpc.CallOption) (*iampb.Policy, error)
	TestIamPermissions(ctx context.Context, in *iampb.TestIamPermissionsRequest, opts ...grpc.CallOption) (*iampb.TestIamPermissionsResponse, error)
}

var _ Stub = adminpb.BigtableTableAdminClient(nil)

// NewStub wraps a connection in the generated client.
func NewStub(cc grpc.ClientConnInterface) Stub {
	return adminpb.NewBigtableTableAdminClient(cc)
}

// TokenStore caches the last consistency token generated per table.
type TokenStore interface {
	PutToken(ctx context.Context, tableName, token string) error
	Token(ctx context.Context, tableName string) (string, bool, error)
}

// Config holds what New needs besides the transport.
type Config struct {
	Project  string
	Instance string

	// Retry and Backoff are prototypes for every operation. Polling paces
	// consistency checks. Nil values fall back to the executor defaults.
	Retry   retry.Policy
	Backoff retry.BackoffPolicy
	Polling retry.BackoffPolicy

	Recorders []executor.Recorder
	Tokens    TokenStore
}

// TableAdmin administers the tables of one instance. It is a small value:
// copies share the transport, queue and token store but carry their own
// policy prototypes.
type TableAdmin struct {
	stub     Stub
	queue    cq.CompletionQueue
	tokens   TokenStore
	project  string
	instance string
	parent   string
	opts     executor.Options
	polling  retry.BackoffPolicy
}

// New builds a TableAdmin. q runs the blocking consistency wait; every Async
// method takes its own queue.
func New(stub Stub, q cq.CompletionQueue, cfg Config) (TableAdmin, error) {
	if stub == nil {
		return TableAdmin{}, fmt.Errorf("admin: nil stub")
	}
	if cfg.Project == "" || cfg.Instance == "" {
		return TableAdmin{}, fmt.Errorf("admin: project and instance are required")
	}
	polling := cfg.Polling
	if polling == nil {
		polling = executor.DefaultBackoffPolicy()
	}
	return TableAdmin{
		stub:     stub,
		queue:    q,
		tokens:   cfg.Tokens,
		project:  cfg.Project,
		instance: cfg.Instance,
		parent:   InstanceName(cfg.Project, cfg.Instance),
		opts: executor.Options{
			Retry:     cfg.Retry,
			Backoff:   cfg.Backoff,
			Recorders: cfg.Recorders,
		},
		polling: polling,
	}, nil
}

// InstanceName returns projects/{project}/instances/{instance}.
func InstanceName(project, instance string) string {
	return "projects/" + project + "/instances/" + instance
}

func (a TableAdmin) Project() string { return a.project }

func (a TableAdmin) InstanceID() string { return a.instance }

// InstanceName returns the parent of every table this client manages.
func (a TableAdmin) InstanceName() string { return a.parent }

// TableName returns the full resource name of tableID.
func (a TableAdmin) TableName(tableID string) string {
	return a.parent + "/tables/" + tableID
}

// TableID strips the instance prefix from a full table name.
func TableID(tableName string) string {
	if i := strings.LastIndex(tableName, "/tables/"); i >= 0 {
		return tableName[i+len("/tables/"):]
	}
	return tableName
}

// WithPolicies returns a copy using new retry and backoff prototypes.
func (a TableAdmin) WithPolicies(r retry.Policy, b retry.BackoffPolicy) TableAdmin {
	if r != nil {
		a.opts.Retry = r
	}
	if b != nil {
		a.opts.Backoff = b
	}
	return a
}

// WithPollingPolicy returns a copy pacing consistency checks with b.
func (a TableAdmin) WithPollingPolicy(b retry.BackoffPolicy) TableAdmin {
	if b != nil {
		a.polling = b
	}
	return a
}

// WithSleep returns a copy that waits between blocking attempts with sleep.
func (a TableAdmin) WithSleep(sleep func(context.Context, time.Duration) error) TableAdmin {
	a.opts.Sleep = sleep
	return a
}

// WithRecorders returns a copy reporting to rs in addition to the existing recorders.
func (a TableAdmin) WithRecorders(rs ...executor.Recorder) TableAdmin {
	merged := make([]executor.Recorder, 0, len(a.opts.Recorders)+len(rs))
	merged = append(merged, a.opts.Recorders...)
	a.opts.Recorders = append(merged, rs...)
	return a
}

// Queue returns the queue used by the blocking helpers.
func (a TableAdmin) Queue() cq.CompletionQueue { return a.queue }

var apiClientHeader = gax.XGoogHeader("gl-go", gax.GoVersion, "gax", gax.Version, "grpc", grpc.Version)

// withResource attaches the routing and client headers every admin call carries.
func withResource(ctx context.Context, key, value string) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		"x-goog-request-params", key+"="+url.QueryEscape(value),
		"x-goog-api-client", apiClientHeader,
	)
}

// rpc is one admin operation ready to run blocking or on a queue.
type rpc[Resp any] struct {
	method  string
	opts    executor.Options
	attempt func(ctx context.Context) (Resp, error)
}

func (r rpc[Resp]) run(ctx context.Context) (Resp, error) {
	return executor.Call(ctx, r.opts, r.method, r.attempt)
}

func (r rpc[Resp]) async(ctx context.Context, q cq.CompletionQueue) *cq.Future[Resp] {
	return executor.CallAsync(ctx, q, r.opts, r.method, r.attempt)
}

func (a TableAdmin) idempotent(resource string) executor.Options {
	opts := a.opts
	opts.Resource = resource
	return opts
}

func (a TableAdmin) singleAttempt(resource string) executor.Options {
	return a.idempotent(resource).WithIdempotency(executor.NonIdempotent)
}
