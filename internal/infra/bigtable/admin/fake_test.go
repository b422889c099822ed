package admin

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/bigtable/admin/apiv2/adminpb"
	"cloud.google.com/go/iam/apiv1/iampb"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/vietddude/tableadmin/internal/infra/rpc/cq"
	"github.com/vietddude/tableadmin/internal/infra/rpc/retry"
)

type checkResult struct {
	consistent bool
	err        error
}

// fakeStub scripts failures per method and records every request.
type fakeStub struct {
	mu       sync.Mutex
	calls    map[string]int
	errs     map[string][]error
	headers  map[string][]metadata.MD
	requests map[string][]proto.Message

	pages  map[string]*adminpb.ListTablesResponse
	checks []checkResult
	token  string
}

func newFakeStub() *fakeStub {
	return &fakeStub{
		calls:    map[string]int{},
		errs:     map[string][]error{},
		headers:  map[string][]metadata.MD{},
		requests: map[string][]proto.Message{},
		pages:    map[string]*adminpb.ListTablesResponse{},
		token:    "test-token",
	}
}

func (f *fakeStub) failWith(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = append(f.errs[method], errs...)
}

func (f *fakeStub) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeStub) lastHeader(method, key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	hs := f.headers[method]
	if len(hs) == 0 {
		return nil
	}
	return hs[len(hs)-1].Get(key)
}

func (f *fakeStub) record(ctx context.Context, method string, req proto.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	md, _ := metadata.FromOutgoingContext(ctx)
	f.headers[method] = append(f.headers[method], md)
	f.requests[method] = append(f.requests[method], req)
	if errs := f.errs[method]; len(errs) > 0 {
		f.errs[method] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeStub) CreateTable(ctx context.Context, in *adminpb.CreateTableRequest, _ ...grpc.CallOption) (*adminpb.Table, error) {
	if err := f.record(ctx, "CreateTable", in); err != nil {
		return nil, err
	}
	t := proto.Clone(in.GetTable()).(*adminpb.Table)
	t.Name = in.GetParent() + "/tables/" + in.GetTableId()
	return t, nil
}

func (f *fakeStub) ListTables(ctx context.Context, in *adminpb.ListTablesRequest, _ ...grpc.CallOption) (*adminpb.ListTablesResponse, error) {
	if err := f.record(ctx, "ListTables", in); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if resp, ok := f.pages[in.GetPageToken()]; ok {
		return resp, nil
	}
	return &adminpb.ListTablesResponse{}, nil
}

func (f *fakeStub) GetTable(ctx context.Context, in *adminpb.GetTableRequest, _ ...grpc.CallOption) (*adminpb.Table, error) {
	if err := f.record(ctx, "GetTable", in); err != nil {
		return nil, err
	}
	return &adminpb.Table{Name: in.GetName()}, nil
}

func (f *fakeStub) DeleteTable(ctx context.Context, in *adminpb.DeleteTableRequest, _ ...grpc.CallOption) (*emptypb.Empty, error) {
	if err := f.record(ctx, "DeleteTable", in); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (f *fakeStub) ModifyColumnFamilies(ctx context.Context, in *adminpb.ModifyColumnFamiliesRequest, _ ...grpc.CallOption) (*adminpb.Table, error) {
	if err := f.record(ctx, "ModifyColumnFamilies", in); err != nil {
		return nil, err
	}
	t := &adminpb.Table{Name: in.GetName(), ColumnFamilies: map[string]*adminpb.ColumnFamily{}}
	for _, m := range in.GetModifications() {
		if !m.GetDrop() {
			t.ColumnFamilies[m.GetId()] = &adminpb.ColumnFamily{GcRule: m.GetCreate().GetGcRule()}
		}
	}
	return t, nil
}

func (f *fakeStub) DropRowRange(ctx context.Context, in *adminpb.DropRowRangeRequest, _ ...grpc.CallOption) (*emptypb.Empty, error) {
	if err := f.record(ctx, "DropRowRange", in); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (f *fakeStub) GenerateConsistencyToken(ctx context.Context, in *adminpb.GenerateConsistencyTokenRequest, _ ...grpc.CallOption) (*adminpb.GenerateConsistencyTokenResponse, error) {
	if err := f.record(ctx, "GenerateConsistencyToken", in); err != nil {
		return nil, err
	}
	return &adminpb.GenerateConsistencyTokenResponse{ConsistencyToken: f.token}, nil
}

func (f *fakeStub) CheckConsistency(ctx context.Context, in *adminpb.CheckConsistencyRequest, _ ...grpc.CallOption) (*adminpb.CheckConsistencyResponse, error) {
	if err := f.record(ctx, "CheckConsistency", in); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.checks) == 0 {
		return &adminpb.CheckConsistencyResponse{Consistent: true}, nil
	}
	next := f.checks[0]
	f.checks = f.checks[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &adminpb.CheckConsistencyResponse{Consistent: next.consistent}, nil
}

func (f *fakeStub) GetIamPolicy(ctx context.Context, in *iampb.GetIamPolicyRequest, _ ...grpc.CallOption) (*iampb.Policy, error) {
	if err := f.record(ctx, "GetIamPolicy", in); err != nil {
		return nil, err
	}
	return &iampb.Policy{Version: 3, Etag: []byte("etag")}, nil
}

func (f *fakeStub) SetIamPolicy(ctx context.Context, in *iampb.SetIamPolicyRequest, _ ...grpc.CallOption) (*iampb.Policy, error) {
	if err := f.record(ctx, "SetIamPolicy", in); err != nil {
		return nil, err
	}
	return in.GetPolicy(), nil
}

func (f *fakeStub) TestIamPermissions(ctx context.Context, in *iampb.TestIamPermissionsRequest, _ ...grpc.CallOption) (*iampb.TestIamPermissionsResponse, error) {
	if err := f.record(ctx, "TestIamPermissions", in); err != nil {
		return nil, err
	}
	perms := in.GetPermissions()
	if len(perms) > 1 {
		perms = perms[:1]
	}
	return &iampb.TestIamPermissionsResponse{Permissions: perms}, nil
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *memTokens) PutToken(_ context.Context, table, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = map[string]string{}
	}
	m.tokens[table] = token
	return nil
}

func (m *memTokens) Token(_ context.Context, table string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[table]
	return t, ok, nil
}

func instantSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestAdmin(t *testing.T, stub Stub, q cq.CompletionQueue) TableAdmin {
	t.Helper()
	a, err := New(stub, q, Config{
		Project:  "the-project",
		Instance: "the-instance",
		Retry:    retry.NewLimitedErrorCountPolicy(5),
		Backoff:  retry.MustExponentialBackoff(10*time.Millisecond, 50*time.Millisecond),
		Polling:  retry.ConstantBackoffPolicy{Delay: 2 * time.Second},
		Tokens:   &memTokens{},
	})
	require.NoError(t, err)
	return a.WithSleep(instantSleep)
}
