package dispatch

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aipilotbyjd/lnkflow-core/internal/contract"
	"github.com/aipilotbyjd/lnkflow-core/internal/credit"
	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
	"github.com/aipilotbyjd/lnkflow-core/internal/platform/apierr"
)

func activeWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID:          uuid.New(),
		WorkspaceID: uuid.New(),
		IsActive:    true,
		Nodes:       []domain.WorkflowNode{{ID: "a", Type: "http_request"}},
		Edges:       nil,
	}
}

func okCatalog() contract.MapCatalog {
	return contract.MapCatalog{
		"http_request": {Type: "http_request"},
	}
}

type fakeLimiter struct{ allow bool }

func (f fakeLimiter) Allow(context.Context, string) (bool, error) { return f.allow, nil }

type fakeMeter struct {
	remaining float64
	credit.Meter
}

func (f fakeMeter) Remaining(context.Context, uuid.UUID) (float64, error) { return f.remaining, nil }

func TestGate_RejectsInactiveWorkflow(t *testing.T) {
	wf := activeWorkflow()
	wf.IsActive = false
	g := &Gate{Catalog: okCatalog()}

	_, err := g.Check(context.Background(), wf, nil, nil, 0)
	require.Error(t, err)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeWorkflowInactive, apiErr.Code)
}

func TestGate_RejectsInvalidContract(t *testing.T) {
	wf := activeWorkflow()
	wf.Nodes = []domain.WorkflowNode{{ID: "a", Type: "http_request"}, {ID: "b", Type: "slack_post"}}
	wf.Edges = []domain.WorkflowEdge{{ID: "e1", Source: "a", Target: "b"}}

	catalog := contract.MapCatalog{
		"http_request": {Type: "http_request", OutputSchema: domain.JSON{"type": "string"}},
		"slack_post":    {Type: "slack_post", InputSchema: domain.JSON{"type": "number"}},
	}
	g := &Gate{Catalog: catalog}

	_, err := g.Check(context.Background(), wf, nil, nil, 0)
	require.Error(t, err)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeContractInvalid, apiErr.Code)
}

func TestGate_RejectsPolicyViolation(t *testing.T) {
	wf := activeWorkflow()
	g := &Gate{Catalog: okCatalog()}
	pol := &domain.WorkspacePolicy{Enabled: true, BlockedNodeTypes: []string{"http_request"}}
	resolved := []contract.ResolvedNode{{NodeID: "a", Type: "http_request"}}

	_, err := g.Check(context.Background(), wf, pol, resolved, 0)
	require.Error(t, err)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	assert.Equal(t, apierr.KindPolicyViolation, apiErr.Kind)
}

func TestGate_RejectsRateLimited(t *testing.T) {
	wf := activeWorkflow()
	g := &Gate{Catalog: okCatalog(), Limiter: fakeLimiter{allow: false}}

	_, err := g.Check(context.Background(), wf, nil, nil, 0)
	require.Error(t, err)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	assert.Equal(t, apierr.KindRateLimited, apiErr.Kind)
}

func TestGate_RejectsInsufficientCredit(t *testing.T) {
	wf := activeWorkflow()
	g := &Gate{Catalog: okCatalog(), Limiter: fakeLimiter{allow: true}, Meter: fakeMeter{remaining: 1}}

	_, err := g.Check(context.Background(), wf, nil, nil, 5)
	require.Error(t, err)
	apiErr, ok := err.(*apierr.Error)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeInsufficientCredit, apiErr.Code)
}

func TestGate_PassesAllChecks(t *testing.T) {
	wf := activeWorkflow()
	g := &Gate{Catalog: okCatalog(), Limiter: fakeLimiter{allow: true}, Meter: fakeMeter{remaining: 100}}

	snap, err := g.Check(context.Background(), wf, nil, nil, 5)
	require.NoError(t, err)
	assert.NotNil(t, snap)
}
