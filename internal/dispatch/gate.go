package dispatch

import (
	"context"

	"github.com/aipilotbyjd/lnkflow-core/internal/contract"
	"github.com/aipilotbyjd/lnkflow-core/internal/credit"
	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
	"github.com/aipilotbyjd/lnkflow-core/internal/platform/apierr"
	"github.com/aipilotbyjd/lnkflow-core/internal/policy"
)

// Gate runs the five admission checks from spec §4.7, in order, and
// aborts on the first that fails. Grounded on
// internal/scheduler/dispatcher/dispatcher.go's Dispatch method, which
// chains a global rate check, a workspace rate check, then an enqueue in
// the same fixed order.
type Gate struct {
	Catalog contract.Catalog
	Meter   credit.Meter
	Limiter RateLimiter
}

// Check runs the gate against a workflow about to be dispatched for
// workspaceID, with resolvedNodes already joined against the catalog (the
// caller built these once, alongside the contract compile, to avoid a
// second catalog pass), pol is the workspace's policy (nil or disabled
// skips check 3), and estimatedCostUSD the caller has already derived for
// the run. Returns the compiled snapshot on success so the caller can
// persist it alongside the Execution without recompiling.
func (g *Gate) Check(ctx context.Context, workflow *domain.Workflow, pol *domain.WorkspacePolicy, resolvedNodes []contract.ResolvedNode, estimatedCostUSD float64) (*domain.WorkflowContractSnapshot, error) {
	if !workflow.IsActive || len(workflow.Nodes) == 0 {
		return nil, apierr.New(apierr.KindValidation, apierr.CodeWorkflowInactive, "workflow is inactive or has no nodes")
	}

	snapshot, err := contract.Compile(g.Catalog, workflow.Nodes, workflow.Edges, false)
	if err != nil {
		return nil, err
	}
	if snapshot.Status == "invalid" {
		return nil, apierr.New(apierr.KindValidation, apierr.CodeContractInvalid, "workflow contract is invalid")
	}

	if violations := policy.Violations(pol, resolvedNodes); len(violations) > 0 {
		return nil, apierr.New(apierr.KindPolicyViolation, violations[0].Code, violations[0].Message)
	}

	if g.Limiter != nil {
		allowed, err := g.Limiter.Allow(ctx, workflow.WorkspaceID.String())
		if err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, "RATE_LIMIT_CHECK_FAILED", err)
		}
		if !allowed {
			return nil, apierr.New(apierr.KindRateLimited, apierr.CodeRateLimited, "workspace dispatch rate limit exceeded")
		}
	}

	if g.Meter != nil {
		remaining, err := g.Meter.Remaining(ctx, workflow.WorkspaceID)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, "CREDIT_CHECK_FAILED", err)
		}
		if remaining < estimatedCostUSD {
			return nil, apierr.New(apierr.KindValidation, apierr.CodeInsufficientCredit, "workspace has insufficient remaining credit")
		}
	}

	return snapshot, nil
}
