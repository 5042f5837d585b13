package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReplayFixture records a previously-observed external response, keyed by
// the deterministic fingerprint of the request that produced it.
type ReplayFixture struct {
	RequestFingerprint string
	Response           JSON
}

// ExecutionReplayPack is the immutable bundle needed to reproduce an
// execution: workflow snapshot, trigger, fixtures, and seed.
type ExecutionReplayPack struct {
	ExecutionID         uuid.UUID
	WorkspaceID         uuid.UUID
	WorkflowID          uuid.UUID
	SourceExecutionID   *uuid.UUID
	Mode                string // capture | replay
	DeterministicSeed   int64
	WorkflowSnapshot    JSON
	TriggerSnapshot     JSON
	Fixtures            []ReplayFixture
	EnvironmentSnapshot JSON
	CapturedAt          time.Time
	ExpiresAt           time.Time
}
