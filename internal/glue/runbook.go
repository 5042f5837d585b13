// Package glue derives operator-facing artifacts from execution state:
// a runbook synthesiser for failed executions and a cost estimator over
// connector attempts (spec §4.12). Grounded on the teacher's
// domain/services/billing.go constructor-validates-deps style; the
// keyword severity classification itself has no teacher analogue and is
// built fresh in that idiom (plain string-matching helpers, no
// rules-engine dependency for a handful of keyword checks).
package glue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
)

// RunbookStore persists the synthesised runbook, upserted per execution.
type RunbookStore interface {
	UpsertRunbook(ctx context.Context, runbook *domain.ExecutionRunbook) error
}

// RunbookSynthesizer builds an ExecutionRunbook from a failed execution's
// terminal node, per spec §4.12.
type RunbookSynthesizer struct {
	store RunbookStore
}

func NewRunbookSynthesizer(store RunbookStore) *RunbookSynthesizer {
	if store == nil {
		panic("glue: NewRunbookSynthesizer requires a non-nil RunbookStore")
	}
	return &RunbookSynthesizer{store: store}
}

var criticalKeywords = []string{"auth", "unauthorized", "forbidden", "permission", "credential", "access denied"}
var highKeywords = []string{"timeout", "timed out", "rate limit", "too many requests", "429"}

// Synthesize classifies the failedNode's error into a severity and
// upserts a fixed-steps runbook for the execution. failedNode may be nil
// if the execution failed before any node ran, in which case the
// execution's own Error is classified instead.
func (s *RunbookSynthesizer) Synthesize(ctx context.Context, execution *domain.Execution, failedNode *domain.ExecutionNode) (*domain.ExecutionRunbook, error) {
	if execution == nil {
		return nil, fmt.Errorf("glue: Synthesize requires a non-nil execution")
	}

	errText := execution.Error
	nodeID := ""
	if failedNode != nil {
		errText = failedNode.Error
		nodeID = failedNode.NodeID
	}

	severity := classifySeverity(errText)

	runbook := &domain.ExecutionRunbook{
		ID:          uuid.New(),
		ExecutionID: execution.ID,
		WorkspaceID: execution.WorkspaceID,
		NodeID:      nodeID,
		Severity:    severity,
		Status:      domain.RunbookStatusOpen,
		Summary:     summaryFor(severity, nodeID, errText),
		Steps:       stepsFor(severity),
		CreatedAt:   now(),
		UpdatedAt:   now(),
	}

	if err := s.store.UpsertRunbook(ctx, runbook); err != nil {
		return nil, fmt.Errorf("glue: upsert runbook: %w", err)
	}
	return runbook, nil
}

func classifySeverity(errText string) string {
	lower := strings.ToLower(errText)
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			return domain.RunbookSeverityCritical
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(lower, kw) {
			return domain.RunbookSeverityHigh
		}
	}
	return domain.RunbookSeverityMedium
}

func summaryFor(severity, nodeID, errText string) string {
	if nodeID == "" {
		return fmt.Sprintf("execution failed (%s): %s", severity, errText)
	}
	return fmt.Sprintf("node %q failed (%s): %s", nodeID, severity, errText)
}

// stepsFor returns the fixed mitigation template for a severity, per
// spec §4.12 ("steps are fixed mitigation templates").
func stepsFor(severity string) []string {
	switch severity {
	case domain.RunbookSeverityCritical:
		return []string{
			"Verify the credential used by the failing node has not expired or been revoked.",
			"Re-authorize the connection in the credential settings.",
			"Re-run the execution once the credential is restored.",
		}
	case domain.RunbookSeverityHigh:
		return []string{
			"Check the connector's status page for an ongoing outage or rate-limit window.",
			"Reduce request volume or stagger retries for this connector.",
			"Re-run the execution after the rate-limit window has passed.",
		}
	default:
		return []string{
			"Inspect the node's input and output data for the failed execution.",
			"Check the execution log for the underlying error detail.",
			"Fix the workflow configuration or upstream data and re-run.",
		}
	}
}

// now is a seam so tests can freeze time without a clock dependency
// elsewhere in the package.
var now = func() time.Time { return time.Now().UTC() }
