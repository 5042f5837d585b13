package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/aipilotbyjd/lnkflow-core/internal/contract"
	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
)

// Enqueuer is the narrow job-submission collaborator Service needs,
// satisfied by *Queue; kept as an interface so tests can substitute a
// recording fake without a live Redis connection.
type Enqueuer interface {
	Enqueue(priority string, payload JobPayload) (string, error)
}

// Replayer is the narrow C8 collaborator Service calls to snapshot a
// dispatched run before submitting it, satisfied structurally by
// *replay.Service without an import (replay imports dispatch, so
// dispatch does not import replay; the wiring layer supplies the
// concrete value).
type Replayer interface {
	Capture(ctx context.Context, execution *domain.Execution, mode string, sourceExecutionID *uuid.UUID, trigger domain.JSON, fixtures []domain.ReplayFixture) (*domain.ExecutionReplayPack, error)
}

// Store persists the Execution record Dispatch creates.
type Store interface {
	SaveExecution(ctx context.Context, execution *domain.Execution) error
}

// Service implements spec §4.7's gate-then-submit flow.
type Service struct {
	Gate    *Gate
	Store   Store
	Replay  Replayer
	Queue   Enqueuer
}

// NewCallbackToken generates an opaque, server-side-only callback token
// (crypto/rand, never serialized back to API responses), per spec §4.7
// and §6's worker-callback contract.
func NewCallbackToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Dispatch runs the gate, and on success persists a pending Execution,
// captures a replay snapshot, and enqueues the run at priority. mode is
// the execution's trigger mode (manual/schedule/webhook); priority
// selects the job queue tier independently of it.
func (s *Service) Dispatch(ctx context.Context, workflow *domain.Workflow, pol *domain.WorkspacePolicy, resolvedNodes []contract.ResolvedNode, mode string, trigger domain.JSON, priority string, triggeredBy *uuid.UUID) (*domain.Execution, error) {
	estimatedCost := estimateCost(resolvedNodes)

	if _, err := s.Gate.Check(ctx, workflow, pol, resolvedNodes, estimatedCost); err != nil {
		return nil, err
	}

	execution := &domain.Execution{
		ID:               uuid.New(),
		WorkflowID:       workflow.ID,
		WorkspaceID:      workflow.WorkspaceID,
		Status:           domain.ExecutionPending,
		Mode:             mode,
		TriggeredBy:      triggeredBy,
		TriggerData:      trigger,
		Attempt:          1,
		MaxAttempts:      maxAttempts(workflow),
		EstimatedCostUSD: estimatedCost,
	}

	if err := s.Store.SaveExecution(ctx, execution); err != nil {
		return nil, err
	}

	var replayContext domain.JSON
	if s.Replay != nil {
		pack, err := s.Replay.Capture(ctx, execution, "capture", nil, trigger, nil)
		if err != nil {
			return nil, err
		}
		replayContext = domain.JSON{
			"mode": pack.Mode,
			"seed": pack.DeterministicSeed,
		}
	}

	callbackToken, err := NewCallbackToken()
	if err != nil {
		return nil, err
	}

	_, err = s.Queue.Enqueue(priority, JobPayload{
		WorkflowID:    workflow.ID,
		ExecutionID:   execution.ID,
		WorkspaceID:   workflow.WorkspaceID,
		TriggerData:   trigger,
		ReplayContext: replayContext,
		CallbackToken: callbackToken,
	})
	if err != nil {
		return nil, err
	}

	return execution, nil
}

func estimateCost(nodes []contract.ResolvedNode) float64 {
	var total float64
	for _, n := range nodes {
		total += n.EstimatedCostUSD
	}
	return total
}

func maxAttempts(workflow *domain.Workflow) int {
	if workflow.Settings.Retry.Enabled && workflow.Settings.Retry.MaxAttempts > 0 {
		return workflow.Settings.Retry.MaxAttempts
	}
	return 1
}

