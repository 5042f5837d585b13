package domain

import (
	"time"

	"github.com/google/uuid"
)

// Workspace is the tenancy root. Every other entity carries a WorkspaceID
// and no query or in-memory operation may cross workspace boundaries.
type Workspace struct {
	ID           uuid.UUID
	Policy       *WorkspacePolicy
	Subscription *Subscription
}

// Node is a catalog entry describing one node type, used by the contract
// compiler to validate edges and by the policy engine to gate node use.
type Node struct {
	Type            string
	NodeKind        string // trigger | action | condition | ai
	InputSchema     JSON
	OutputSchema    JSON
	ConfigSchema    JSON
	CredentialType  string
	CostHintUSD     float64
	LatencyHintMs   int
}

// Position is editor canvas placement; carried through but never
// interpreted by the execution substrate.
type Position struct {
	X float64
	Y float64
}

// WorkflowNode is one node instance inside a workflow definition.
type WorkflowNode struct {
	ID       string
	Type     string
	Position Position
	Label    string
	Config   JSON
}

// WorkflowEdge connects two nodes, optionally tagging a condition-node
// branch via SourceHandle and carrying an opaque predicate string that the
// NodeExecutor (not the scheduler) evaluates.
type WorkflowEdge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
	Condition    string
}

// RetrySettings is the workflow-level default retry policy; it has no
// per-node override.
type RetrySettings struct {
	Enabled      bool
	MaxAttempts  int
	DelaySeconds int
}

// TimeoutSettings bounds both the whole workflow run and any single node.
type TimeoutSettings struct {
	Workflow time.Duration
	Node     time.Duration
}

type WorkflowSettings struct {
	Retry   RetrySettings
	Timeout TimeoutSettings
}

// Workflow is a tenant-owned automation definition: a DAG of nodes plus
// trigger configuration and execution settings.
type Workflow struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
	IsActive    bool
	IsLocked    bool
	TriggerType string
	TriggerConfig JSON
	Nodes       []WorkflowNode
	Edges       []WorkflowEdge
	Settings    WorkflowSettings
	Version     int
}

// WorkflowVersion is an immutable snapshot of a Workflow, numbered
// monotonically per workflow.
type WorkflowVersion struct {
	ID             uuid.UUID
	WorkflowID     uuid.UUID
	VersionNumber  int
	Nodes          []WorkflowNode
	Edges          []WorkflowEdge
	Settings       WorkflowSettings
	CreatedAt      time.Time
}
