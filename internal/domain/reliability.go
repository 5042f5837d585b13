package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConnectorCallAttempt records one invocation of an external connector by
// a node. RequestFingerprint is the sha256 of the canonicalised request
// and is the deduplication / fixture key used by the replay pack.
type ConnectorCallAttempt struct {
	ExecutionID        uuid.UUID
	ExecutionNodeID    *uuid.UUID
	WorkspaceID        uuid.UUID
	WorkflowID         uuid.UUID
	ConnectorKey       string
	ConnectorOperation string
	Provider           string
	AttemptNo          int
	IsRetry            bool
	Status             string // success | failure | timeout
	StatusCode         int
	DurationMs         int64
	RequestFingerprint string
	IdempotencyKey     string
	ErrorCode          string
	ErrorMessage       string
	HappenedAt         time.Time
}

// ConnectorMetric is the live (non-persisted) aggregation over a set of
// attempts for one (connector_key, connector_operation) pair.
type ConnectorMetric struct {
	ConnectorKey       string
	ConnectorOperation string
	Total              int
	Success            int
	Failure            int
	Retry              int
	Timeout            int
	SuccessRate        float64
	RetryRate          float64
	AvgLatencyMs       float64
	QualityScore       float64
}

// ConnectorMetricDaily is the durable daily rollup, unique per
// (workspace, connector_key, connector_operation, day).
type ConnectorMetricDaily struct {
	WorkspaceID        uuid.UUID
	ConnectorKey       string
	ConnectorOperation string
	Day                time.Time
	Total              int
	Success            int
	Failure            int
	Retry              int
	Timeout            int
	P50Ms              float64
	P95Ms              float64
	P99Ms              float64
}
