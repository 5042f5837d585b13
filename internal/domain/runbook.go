package domain

import (
	"time"

	"github.com/google/uuid"
)

// Runbook severities, ordered worst-first per spec §4.12.
const (
	RunbookSeverityCritical = "critical"
	RunbookSeverityHigh     = "high"
	RunbookSeverityMedium   = "medium"
)

// RunbookStatusOpen is the only status a freshly synthesised runbook can
// carry; operators transition it externally once acknowledged.
const RunbookStatusOpen = "open"

// ExecutionRunbook is the operator-facing artifact the glue layer (C12)
// upserts when an execution fails: a severity classification plus a
// fixed set of mitigation steps for the failing node's error class.
type ExecutionRunbook struct {
	ID          uuid.UUID
	ExecutionID uuid.UUID
	WorkspaceID uuid.UUID
	NodeID      string
	Severity    string
	Status      string
	Summary     string
	Steps       []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
