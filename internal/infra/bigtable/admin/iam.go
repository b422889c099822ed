package admin

import (
	"context"
	"sort"

	"cloud.google.com/go/iam/apiv1/iampb"

	"github.com/vietddude/tableadmin/internal/infra/rpc/cq"
)

// NewIamPolicy builds a policy from role -> members bindings. Roles are
// emitted in sorted order so equal inputs produce equal policies.
func NewIamPolicy(bindings map[string][]string, etag []byte, version int32) *iampb.Policy {
	roles := make([]string, 0, len(bindings))
	for role := range bindings {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	p := &iampb.Policy{Version: version, Etag: etag}
	for _, role := range roles {
		members := append([]string(nil), bindings[role]...)
		p.Bindings = append(p.Bindings, &iampb.Binding{Role: role, Members: members})
	}
	return p
}

func (a TableAdmin) getIamPolicy(tableID string) rpc[*iampb.Policy] {
	req := &iampb.GetIamPolicyRequest{Resource: a.TableName(tableID)}
	return rpc[*iampb.Policy]{
		method: "GetIamPolicy",
		opts:   a.idempotent(req.Resource),
		attempt: func(ctx context.Context) (*iampb.Policy, error) {
			return a.stub.GetIamPolicy(withResource(ctx, "resource", req.Resource), req)
		},
	}
}

func (a TableAdmin) GetIamPolicy(ctx context.Context, tableID string) (*iampb.Policy, error) {
	return a.getIamPolicy(tableID).run(ctx)
}

func (a TableAdmin) AsyncGetIamPolicy(ctx context.Context, q cq.CompletionQueue, tableID string) *cq.Future[*iampb.Policy] {
	return a.getIamPolicy(tableID).async(ctx, q)
}

func (a TableAdmin) setIamPolicy(tableID string, policy *iampb.Policy) rpc[*iampb.Policy] {
	req := &iampb.SetIamPolicyRequest{Resource: a.TableName(tableID), Policy: policy}
	return rpc[*iampb.Policy]{
		method: "SetIamPolicy",
		opts:   a.idempotent(req.Resource),
		attempt: func(ctx context.Context) (*iampb.Policy, error) {
			return a.stub.SetIamPolicy(withResource(ctx, "resource", req.Resource), req)
		},
	}
}

// SetIamPolicy is retried; the policy etag makes a repeated write safe.
func (a TableAdmin) SetIamPolicy(ctx context.Context, tableID string, policy *iampb.Policy) (*iampb.Policy, error) {
	return a.setIamPolicy(tableID, policy).run(ctx)
}

func (a TableAdmin) AsyncSetIamPolicy(ctx context.Context, q cq.CompletionQueue, tableID string, policy *iampb.Policy) *cq.Future[*iampb.Policy] {
	return a.setIamPolicy(tableID, policy).async(ctx, q)
}

func (a TableAdmin) testIamPermissions(tableID string, permissions []string) rpc[[]string] {
	req := &iampb.TestIamPermissionsRequest{Resource: a.TableName(tableID), Permissions: permissions}
	return rpc[[]string]{
		method: "TestIamPermissions",
		opts:   a.idempotent(req.Resource),
		attempt: func(ctx context.Context) ([]string, error) {
			resp, err := a.stub.TestIamPermissions(withResource(ctx, "resource", req.Resource), req)
			if err != nil {
				return nil, err
			}
			return resp.GetPermissions(), nil
		},
	}
}

// TestIamPermissions returns the subset of permissions the caller holds on the table.
func (a TableAdmin) TestIamPermissions(ctx context.Context, tableID string, permissions ...string) ([]string, error) {
	return a.testIamPermissions(tableID, permissions).run(ctx)
}

func (a TableAdmin) AsyncTestIamPermissions(ctx context.Context, q cq.CompletionQueue, tableID string, permissions ...string) *cq.Future[[]string] {
	return a.testIamPermissions(tableID, permissions).async(ctx, q)
}
