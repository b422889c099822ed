package admin

import (
	"context"

	"cloud.google.com/go/bigtable/admin/apiv2/adminpb"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/vietddude/tableadmin/internal/infra/rpc/cq"
	"github.com/vietddude/tableadmin/internal/infra/rpc/executor"
)

func (a TableAdmin) listTablesPage(view adminpb.Table_View) executor.PageFetcher[*adminpb.Table] {
	return func(ctx context.Context, token string) ([]*adminpb.Table, string, error) {
		resp, err := a.stub.ListTables(withResource(ctx, "parent", a.parent), &adminpb.ListTablesRequest{
			Parent:    a.parent,
			View:      view,
			PageToken: token,
		})
		if err != nil {
			return nil, "", err
		}
		return resp.GetTables(), resp.GetNextPageToken(), nil
	}
}

// ListTables returns every table in the instance. A failed page is retried
// from its own token.
func (a TableAdmin) ListTables(ctx context.Context, view adminpb.Table_View) ([]*adminpb.Table, error) {
	return executor.ListAll(ctx, a.idempotent(a.parent), "ListTables", a.listTablesPage(view))
}

func (a TableAdmin) AsyncListTables(ctx context.Context, q cq.CompletionQueue, view adminpb.Table_View) *cq.Future[[]*adminpb.Table] {
	return executor.ListAllAsync(ctx, q, a.idempotent(a.parent), "ListTables", a.listTablesPage(view))
}

func (a TableAdmin) getTable(tableID string, view adminpb.Table_View) rpc[*adminpb.Table] {
	req := &adminpb.GetTableRequest{Name: a.TableName(tableID), View: view}
	return rpc[*adminpb.Table]{
		method: "GetTable",
		opts:   a.idempotent(req.Name),
		attempt: func(ctx context.Context) (*adminpb.Table, error) {
			return a.stub.GetTable(withResource(ctx, "name", req.Name), req)
		},
	}
}

func (a TableAdmin) GetTable(ctx context.Context, tableID string, view adminpb.Table_View) (*adminpb.Table, error) {
	return a.getTable(tableID, view).run(ctx)
}

func (a TableAdmin) AsyncGetTable(ctx context.Context, q cq.CompletionQueue, tableID string, view adminpb.Table_View) *cq.Future[*adminpb.Table] {
	return a.getTable(tableID, view).async(ctx, q)
}

func (a TableAdmin) createTable(tableID string, cfg TableConfig) rpc[*adminpb.Table] {
	req := cfg.request(a.parent, tableID)
	return rpc[*adminpb.Table]{
		method: "CreateTable",
		opts:   a.singleAttempt(req.Parent),
		attempt: func(ctx context.Context) (*adminpb.Table, error) {
			return a.stub.CreateTable(withResource(ctx, "parent", req.Parent), req)
		},
	}
}

// CreateTable makes a single attempt regardless of the retry policy.
func (a TableAdmin) CreateTable(ctx context.Context, tableID string, cfg TableConfig) (*adminpb.Table, error) {
	return a.createTable(tableID, cfg).run(ctx)
}

func (a TableAdmin) AsyncCreateTable(ctx context.Context, q cq.CompletionQueue, tableID string, cfg TableConfig) *cq.Future[*adminpb.Table] {
	return a.createTable(tableID, cfg).async(ctx, q)
}

func (a TableAdmin) deleteTable(tableID string) rpc[*emptypb.Empty] {
	req := &adminpb.DeleteTableRequest{Name: a.TableName(tableID)}
	return rpc[*emptypb.Empty]{
		method: "DeleteTable",
		opts:   a.singleAttempt(req.Name),
		attempt: func(ctx context.Context) (*emptypb.Empty, error) {
			return a.stub.DeleteTable(withResource(ctx, "name", req.Name), req)
		},
	}
}

func (a TableAdmin) DeleteTable(ctx context.Context, tableID string) error {
	_, err := a.deleteTable(tableID).run(ctx)
	return err
}

func (a TableAdmin) AsyncDeleteTable(ctx context.Context, q cq.CompletionQueue, tableID string) *cq.Future[*emptypb.Empty] {
	return a.deleteTable(tableID).async(ctx, q)
}

func (a TableAdmin) modifyColumnFamilies(tableID string, mods []ColumnFamilyModification) rpc[*adminpb.Table] {
	req := &adminpb.ModifyColumnFamiliesRequest{Name: a.TableName(tableID), Modifications: mods}
	return rpc[*adminpb.Table]{
		method: "ModifyColumnFamilies",
		opts:   a.singleAttempt(req.Name),
		attempt: func(ctx context.Context) (*adminpb.Table, error) {
			return a.stub.ModifyColumnFamilies(withResource(ctx, "name", req.Name), req)
		},
	}
}

// ModifyColumnFamilies applies mods in order and returns the resulting schema.
func (a TableAdmin) ModifyColumnFamilies(ctx context.Context, tableID string, mods ...ColumnFamilyModification) (*adminpb.Table, error) {
	return a.modifyColumnFamilies(tableID, mods).run(ctx)
}

func (a TableAdmin) AsyncModifyColumnFamilies(ctx context.Context, q cq.CompletionQueue, tableID string, mods ...ColumnFamilyModification) *cq.Future[*adminpb.Table] {
	return a.modifyColumnFamilies(tableID, mods).async(ctx, q)
}

func (a TableAdmin) dropRowRange(req *adminpb.DropRowRangeRequest) rpc[*emptypb.Empty] {
	return rpc[*emptypb.Empty]{
		method: "DropRowRange",
		opts:   a.singleAttempt(req.Name),
		attempt: func(ctx context.Context) (*emptypb.Empty, error) {
			return a.stub.DropRowRange(withResource(ctx, "name", req.Name), req)
		},
	}
}

func (a TableAdmin) dropByPrefix(tableID, prefix string) rpc[*emptypb.Empty] {
	return a.dropRowRange(&adminpb.DropRowRangeRequest{
		Name:   a.TableName(tableID),
		Target: &adminpb.DropRowRangeRequest_RowKeyPrefix{RowKeyPrefix: []byte(prefix)},
	})
}

func (a TableAdmin) dropAll(tableID string) rpc[*emptypb.Empty] {
	return a.dropRowRange(&adminpb.DropRowRangeRequest{
		Name:   a.TableName(tableID),
		Target: &adminpb.DropRowRangeRequest_DeleteAllDataFromTable{DeleteAllDataFromTable: true},
	})
}

// DropRowsByPrefix deletes every row whose key starts with prefix.
func (a TableAdmin) DropRowsByPrefix(ctx context.Context, tableID, prefix string) error {
	_, err := a.dropByPrefix(tableID, prefix).run(ctx)
	return err
}

func (a TableAdmin) AsyncDropRowsByPrefix(ctx context.Context, q cq.CompletionQueue, tableID, prefix string) *cq.Future[*emptypb.Empty] {
	return a.dropByPrefix(tableID, prefix).async(ctx, q)
}

// DropAllRows deletes all data but keeps the schema.
func (a TableAdmin) DropAllRows(ctx context.Context, tableID string) error {
	_, err := a.dropAll(tableID).run(ctx)
	return err
}

func (a TableAdmin) AsyncDropAllRows(ctx context.Context, q cq.CompletionQueue, tableID string) *cq.Future[*emptypb.Empty] {
	return a.dropAll(tableID).async(ctx, q)
}
