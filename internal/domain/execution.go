package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Execution is one run of a workflow against a concrete trigger payload.
type Execution struct {
	ID                    uuid.UUID
	WorkflowID            uuid.UUID
	WorkspaceID           uuid.UUID
	Status                string
	Mode                  string
	TriggeredBy           *uuid.UUID
	StartedAt             *time.Time
	FinishedAt            *time.Time
	DurationMs            *int64
	TriggerData           JSON
	ResultData            JSON
	Error                 string
	Attempt               int
	MaxAttempts           int
	ParentExecutionID     *uuid.UUID
	ReplayOfExecutionID   *uuid.UUID
	IsDeterministicReplay bool
	EstimatedCostUSD      float64
}

// IsTerminal reports whether Status is one a finished Execution can hold.
func (e *Execution) IsTerminal() bool {
	switch e.Status {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled, ExecutionTimedOut:
		return true
	default:
		return false
	}
}

// ExecutionNode is one node's attempt-history within an Execution.
// Sequence is assigned by a SequenceCounter so that concurrent node
// completions still produce a stable total order for history display.
type ExecutionNode struct {
	ExecutionID uuid.UUID
	NodeID      string
	NodeType    string
	Status      string
	Sequence    int64
	StartedAt   *time.Time
	FinishedAt  *time.Time
	DurationMs  *int64
	InputData   JSON
	OutputData  JSON
	Error       string
}

// SequenceCounter hands out a monotone sequence number per execution,
// independent of which worker goroutine finishes a node first.
type SequenceCounter struct {
	n atomic.Int64
}

// Next returns the next sequence number, starting at 1.
func (c *SequenceCounter) Next() int64 {
	return c.n.Add(1)
}

// ExecutionLog is an append-only log line attached to an execution, and
// optionally to a single node within it.
type ExecutionLog struct {
	ExecutionID     uuid.UUID
	ExecutionNodeID *uuid.UUID
	Level           string
	Message         string
	Context         JSON
	LoggedAt        time.Time
}

// JobStatus tracks an out-of-process worker's progress on a dispatched job
// as reported through the worker->coordinator callback (see dispatch
// package).
type JobStatus struct {
	JobID         string
	ExecutionID   *uuid.UUID
	Partition     int
	CallbackToken string
	Status        string
	Progress      int
	Result        JSON
	Error         string
	StartedAt     *time.Time
	CompletedAt   *time.Time
}
