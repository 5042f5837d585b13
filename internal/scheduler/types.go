// Package scheduler implements the per-execution DAG scheduler from spec
// §4.6: a single coordinator plus a fixed worker pool, conditional
// branch gating, retry with backoff, and cooperative cancellation.
// Grounded on internal/worker/processor/{processor,parallel,context,
// cancellation}.go for the worker-pool/RuntimeContext/atomic-counter
// shape, generalized from the teacher's level-barrier executeParallel
// (which cannot correctly skip-gate reconvergent conditional branches)
// to a channel-driven single coordinator.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
)

// NodeResult is what a NodeExecutor returns on success.
type NodeResult struct {
	Output  domain.JSON
	Logs    []domain.ExecutionLog
	Metrics map[string]float64
}

// NodeExecutor is the external collaborator that actually runs a node,
// the boundary spec §6 names explicitly. Implementations decide
// retryability by returning an *apierr.Error with KindExecutorTransient
// (retried by the scheduler) or KindExecutorPermanent (recorded, not
// retried).
type NodeExecutor interface {
	Execute(ctx context.Context, nodeID, nodeType string, input map[string]domain.JSON, config domain.JSON) (*NodeResult, error)
}

// NodeTask is one unit of dispatchable work.
type NodeTask struct {
	NodeID   string
	NodeType string
	Input    map[string]domain.JSON
	Config   domain.JSON
	Attempt  int
}

// NodeState is the coordinator's view of one node's progress. Sequence is
// assigned by a SequenceCounter at terminal resolution so a persistence
// layer can reconstruct a stable ExecutionNode history regardless of
// which worker goroutine finished first.
type NodeState struct {
	Status     string
	Attempt    int
	Output     domain.JSON
	Error      string
	Sequence   int64
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// ExecutionState is the single RW-locked structure the coordinator
// writes and workers' result handlers read, per spec §4.6/§5.
type ExecutionState struct {
	mu        sync.RWMutex
	seq       domain.SequenceCounter
	Completed map[string]bool
	Failed    map[string]bool
	Skipped   map[string]bool
	Scheduled map[string]bool
	Nodes     map[string]*NodeState
}

func newExecutionState(nodeIDs []string) *ExecutionState {
	s := &ExecutionState{
		Completed: make(map[string]bool),
		Failed:    make(map[string]bool),
		Skipped:   make(map[string]bool),
		Scheduled: make(map[string]bool),
		Nodes:     make(map[string]*NodeState, len(nodeIDs)),
	}
	for _, id := range nodeIDs {
		s.Nodes[id] = &NodeState{Status: domain.NodeStatusPending, Attempt: 1}
	}
	return s
}

// Resolved reports whether id has reached a terminal state for readiness
// purposes: completed or skipped (failed nodes are skip-cascaded
// explicitly, so Failed is not checked here).
func (s *ExecutionState) resolved(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Completed[id] || s.Skipped[id]
}

func (s *ExecutionState) outputOf(id string) (domain.JSON, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.Completed[id] {
		return nil, false
	}
	return s.Nodes[id].Output, true
}

func (s *ExecutionState) markScheduled(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Scheduled[id] = true
}

func (s *ExecutionState) markRunning(id string, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	ns := s.Nodes[id]
	ns.Status = domain.NodeStatusRunning
	ns.Attempt = attempt
	ns.StartedAt = &now
}

func (s *ExecutionState) markCompleted(id string, output domain.JSON) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Completed[id] = true
	ns := s.Nodes[id]
	ns.Status = domain.NodeStatusCompleted
	ns.Output = output
	ns.FinishedAt = &now
	ns.Sequence = s.seq.Next()
}

func (s *ExecutionState) markFailed(id string, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Failed[id] = true
	ns := s.Nodes[id]
	ns.Status = domain.NodeStatusFailed
	ns.Error = errMsg
	ns.FinishedAt = &now
	ns.Sequence = s.seq.Next()
}

// markSkipped marks id skipped if it has not already reached a terminal
// state. Returns true if it performed the transition (used by skip
// cascades to avoid revisiting already-resolved nodes).
func (s *ExecutionState) markSkipped(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Completed[id] || s.Skipped[id] || s.Failed[id] {
		return false
	}
	now := time.Now()
	s.Skipped[id] = true
	ns := s.Nodes[id]
	ns.Status = domain.NodeStatusSkipped
	ns.FinishedAt = &now
	return true
}

func (s *ExecutionState) isScheduled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Scheduled[id]
}

func (s *ExecutionState) isFailed(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Failed[id]
}

func (s *ExecutionState) attemptOf(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Nodes[id].Attempt
}

func (s *ExecutionState) bumpAttempt(id string, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Nodes[id].Attempt = attempt
}

// unschedule clears id's Scheduled flag, so the dispatch pass treats id
// as not yet dispatched.
func (s *ExecutionState) unschedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Scheduled[id] = false
}

func (s *ExecutionState) hasFailures() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Failed) > 0
}

// Snapshot returns a point-in-time copy of per-node states, used to
// build the final Outcome.
func (s *ExecutionState) Snapshot() map[string]NodeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]NodeState, len(s.Nodes))
	for id, ns := range s.Nodes {
		out[id] = *ns
	}
	return out
}

// Outcome is the result of a Scheduler.Run call.
type Outcome struct {
	Status  string
	Outputs map[string]domain.JSON // exit node outputs
	Error   string
	Nodes   map[string]NodeState
}
