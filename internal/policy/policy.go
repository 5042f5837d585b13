// Package policy evaluates a workspace's allow/block and cost/token cap
// policy against a resolved node list, grounded on the teacher's
// feature-check-map pattern (internal/domain/services/features.go) and
// the cost/token cap fields on internal/domain/models/billing.go's
// Plan/PlanFeatures.
package policy

import (
	"github.com/aipilotbyjd/lnkflow-core/internal/contract"
	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
	"github.com/aipilotbyjd/lnkflow-core/internal/platform/apierr"
)

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Violations is a pure function: walk every resolved node, flag disallowed
// or blocked node types and (for ai-kind nodes) models, then check
// aggregate cost/token totals against the policy's caps. Returns nil when
// policy is nil or disabled, matching spec §4.5.
func Violations(pol *domain.WorkspacePolicy, nodes []contract.ResolvedNode) []domain.Violation {
	if pol == nil || !pol.Enabled {
		return nil
	}

	var violations []domain.Violation
	var totalCost float64
	var totalTokens int

	for _, n := range nodes {
		if len(pol.AllowedNodeTypes) > 0 && !contains(pol.AllowedNodeTypes, n.Type) {
			violations = append(violations, domain.Violation{
				Code: apierr.CodePolicyNodeBlocked, NodeID: n.NodeID,
				Message: "node type " + n.Type + " is not in the workspace's allow-list",
			})
		} else if contains(pol.BlockedNodeTypes, n.Type) {
			violations = append(violations, domain.Violation{
				Code: apierr.CodePolicyNodeBlocked, NodeID: n.NodeID,
				Message: "node type " + n.Type + " is blocked for this workspace",
			})
		}

		if n.NodeKind == domain.NodeKindAI && n.AIModel != "" {
			if len(pol.AllowedAIModels) > 0 && !contains(pol.AllowedAIModels, n.AIModel) {
				violations = append(violations, domain.Violation{
					Code: apierr.CodePolicyModelBlocked, NodeID: n.NodeID,
					Message: "ai model " + n.AIModel + " is not in the workspace's allow-list",
				})
			} else if contains(pol.BlockedAIModels, n.AIModel) {
				violations = append(violations, domain.Violation{
					Code: apierr.CodePolicyModelBlocked, NodeID: n.NodeID,
					Message: "ai model " + n.AIModel + " is blocked for this workspace",
				})
			}
		}

		totalCost += n.EstimatedCostUSD
		totalTokens += n.MaxTokens
	}

	if pol.MaxExecutionCostUSD != nil && totalCost > *pol.MaxExecutionCostUSD {
		violations = append(violations, domain.Violation{
			Code:    apierr.CodePolicyCostExceeded,
			Message: "estimated execution cost exceeds the workspace's cap",
		})
	}

	if pol.MaxAITokens != nil && totalTokens > *pol.MaxAITokens {
		violations = append(violations, domain.Violation{
			Code:    apierr.CodePolicyTokenCapExceeded,
			Message: "estimated ai token usage exceeds the workspace's cap",
		})
	}

	return violations
}
