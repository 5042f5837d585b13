package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is a workspace's active billing plan reference; the
// billing provider integration itself lives outside this module.
type Subscription struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	PlanID      string
	Status      string
}

// WorkspaceUsagePeriod is a billing-cycle window tracking credit
// consumption. At most one period per workspace has IsCurrent true.
type WorkspaceUsagePeriod struct {
	ID                 uuid.UUID
	WorkspaceID        uuid.UUID
	SubscriptionID     *uuid.UUID
	PeriodStart        time.Time
	PeriodEnd          time.Time
	CreditsLimit       float64
	CreditsUsed        float64
	CreditsOverage     float64
	ExecutionsTotal    int
	ExecutionsSucceeded int
	ExecutionsFailed   int
	NodesExecuted      int
	AINodesExecuted    int
	IsCurrent          bool
}

// CreditPack is a pre-purchased bundle of credits, consumed FIFO by
// PurchasedAt across all of a workspace's active packs.
type CreditPack struct {
	ID               uuid.UUID
	WorkspaceID      uuid.UUID
	CreditsAmount    float64
	CreditsRemaining float64
	PurchasedAt      time.Time
	ExpiresAt        *time.Time
	Status           string // active | exhausted | refunded
}

// CreditTransaction is an append-only ledger entry. Credits is signed:
// positive for usage, negative for refunds/grants.
type CreditTransaction struct {
	ID              uuid.UUID
	WorkspaceID     uuid.UUID
	UsagePeriodID   uuid.UUID
	Type            string
	Credits         float64
	ExecutionID     *uuid.UUID
	ExecutionNodeID *string
	CreatedAt       time.Time
}
