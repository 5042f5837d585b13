// Package credit implements the two-tier credit meter from spec §4.10:
// a hot atomic/Redis counter fronting a durable, append-only
// CreditTransaction ledger, with FIFO credit-pack consumption and
// periodic reconciliation. Grounded on internal/domain/models/
// billing.go's Usage/OperationLog ledger shape and
// internal/domain/services/billing.go's constructor-validates-deps
// style.
package credit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
)

// Ledger is the durable collaborator backing transactions, packs, and
// usage periods.
type Ledger interface {
	CurrentPeriod(ctx context.Context, workspaceID uuid.UUID) (*domain.WorkspaceUsagePeriod, error)
	SavePeriod(ctx context.Context, period *domain.WorkspaceUsagePeriod) error
	AppendTransaction(ctx context.Context, tx domain.CreditTransaction) error
	SumTransactions(ctx context.Context, workspaceID, usagePeriodID uuid.UUID) (float64, error)
	ActivePacks(ctx context.Context, workspaceID uuid.UUID) ([]*domain.CreditPack, error)
	SavePack(ctx context.Context, pack *domain.CreditPack) error
}

// HotCounter is the fast, eventually-consistent credits_used tracker.
// Production deployments back this with Redis INCRBYFLOAT; tests and
// single-process deployments can use the in-process implementation
// below.
type HotCounter interface {
	Add(ctx context.Context, workspaceID uuid.UUID, delta float64) (float64, error)
	Get(ctx context.Context, workspaceID uuid.UUID) (float64, error)
	Set(ctx context.Context, workspaceID uuid.UUID, value float64) error
}

// InProcessCounter is a mutex-guarded, map-backed HotCounter for single-process
// deployments or tests, standing in for the Redis-backed counter the
// teacher uses for distributed counters elsewhere
// (internal/pkg/redis/redis.go).
type InProcessCounter struct {
	mu     sync.Mutex
	values map[uuid.UUID]float64
}

func NewInProcessCounter() *InProcessCounter {
	return &InProcessCounter{values: make(map[uuid.UUID]float64)}
}

func (c *InProcessCounter) Add(_ context.Context, workspaceID uuid.UUID, delta float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[workspaceID] += delta
	return c.values[workspaceID], nil
}

func (c *InProcessCounter) Get(_ context.Context, workspaceID uuid.UUID) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[workspaceID], nil
}

func (c *InProcessCounter) Set(_ context.Context, workspaceID uuid.UUID, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[workspaceID] = value
	return nil
}

// Meter is the operation-level contract the scheduler (C6) and dispatch
// (C7) call into.
type Meter interface {
	Increment(ctx context.Context, workspaceID uuid.UUID, credits float64, txType string, executionID *uuid.UUID) error
	Remaining(ctx context.Context, workspaceID uuid.UUID) (float64, error)
	ConsumePackCredits(ctx context.Context, workspaceID uuid.UUID, n float64) (float64, error)
	CreatePeriod(ctx context.Context, workspaceID uuid.UUID, start, end time.Time, limit float64, subscriptionID *uuid.UUID) (*domain.WorkspaceUsagePeriod, error)
	Reconcile(ctx context.Context, workspaceID uuid.UUID) error
	AddCredits(ctx context.Context, workspaceID uuid.UUID, n float64, txType, description string) error
}

type service struct {
	ledger  Ledger
	counter HotCounter
}

func NewMeter(ledger Ledger, counter HotCounter) Meter {
	if counter == nil {
		counter = NewInProcessCounter()
	}
	return &service{ledger: ledger, counter: counter}
}

// Increment atomically bumps the hot counter, appends a transaction, and
// bumps the current period's usage fields, per spec §4.10 step (a)-(c).
func (s *service) Increment(ctx context.Context, workspaceID uuid.UUID, credits float64, txType string, executionID *uuid.UUID) error {
	period, err := s.ledger.CurrentPeriod(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("credit: current period: %w", err)
	}

	used, err := s.counter.Add(ctx, workspaceID, credits)
	if err != nil {
		return fmt.Errorf("credit: increment counter: %w", err)
	}

	if err := s.ledger.AppendTransaction(ctx, domain.CreditTransaction{
		ID:            uuid.New(),
		WorkspaceID:   workspaceID,
		UsagePeriodID: period.ID,
		Type:          txType,
		Credits:       credits,
		ExecutionID:   executionID,
		CreatedAt:     time.Now(),
	}); err != nil {
		return fmt.Errorf("credit: append transaction: %w", err)
	}

	period.CreditsUsed = used
	period.ExecutionsTotal++
	if used > period.CreditsLimit {
		period.CreditsOverage = used - period.CreditsLimit
	}
	return s.ledger.SavePeriod(ctx, period)
}

// Remaining computes max(0, limit-used) + active pack credits, per spec
// §4.10.
func (s *service) Remaining(ctx context.Context, workspaceID uuid.UUID) (float64, error) {
	period, err := s.ledger.CurrentPeriod(ctx, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("credit: current period: %w", err)
	}
	used, err := s.counter.Get(ctx, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("credit: get counter: %w", err)
	}

	remainingFromLimit := period.CreditsLimit - used
	if remainingFromLimit < 0 {
		remainingFromLimit = 0
	}

	packs, err := s.ledger.ActivePacks(ctx, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("credit: active packs: %w", err)
	}
	var packTotal float64
	for _, p := range packs {
		packTotal += p.CreditsRemaining
	}

	return remainingFromLimit + packTotal, nil
}

// ConsumePackCredits consumes up to n credits from active packs in FIFO
// order of PurchasedAt, transitioning exhausted packs per spec §4.10.
// Returns the amount actually consumed (may be less than n if packs run
// out).
func (s *service) ConsumePackCredits(ctx context.Context, workspaceID uuid.UUID, n float64) (float64, error) {
	packs, err := s.ledger.ActivePacks(ctx, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("credit: active packs: %w", err)
	}

	sort.Slice(packs, func(i, j int) bool { return packs[i].PurchasedAt.Before(packs[j].PurchasedAt) })

	remaining := n
	var consumed float64
	for _, p := range packs {
		if remaining <= 0 {
			break
		}
		take := remaining
		if take > p.CreditsRemaining {
			take = p.CreditsRemaining
		}
		p.CreditsRemaining -= take
		remaining -= take
		consumed += take
		if p.CreditsRemaining <= 0 {
			p.Status = domain.PackExhausted
		}
		if err := s.ledger.SavePack(ctx, p); err != nil {
			return consumed, fmt.Errorf("credit: save pack: %w", err)
		}
	}

	return consumed, nil
}

// CreatePeriod marks any current period non-current, inserts the new one,
// and resets the hot counter, per spec §4.10.
func (s *service) CreatePeriod(ctx context.Context, workspaceID uuid.UUID, start, end time.Time, limit float64, subscriptionID *uuid.UUID) (*domain.WorkspaceUsagePeriod, error) {
	if existing, err := s.ledger.CurrentPeriod(ctx, workspaceID); err == nil && existing != nil {
		existing.IsCurrent = false
		if err := s.ledger.SavePeriod(ctx, existing); err != nil {
			return nil, fmt.Errorf("credit: demote current period: %w", err)
		}
	}

	period := &domain.WorkspaceUsagePeriod{
		ID:             uuid.New(),
		WorkspaceID:    workspaceID,
		SubscriptionID: subscriptionID,
		PeriodStart:    start,
		PeriodEnd:      end,
		CreditsLimit:   limit,
		IsCurrent:      true,
	}
	if err := s.ledger.SavePeriod(ctx, period); err != nil {
		return nil, fmt.Errorf("credit: save new period: %w", err)
	}

	if err := s.counter.Set(ctx, workspaceID, 0); err != nil {
		return nil, fmt.Errorf("credit: reset counter: %w", err)
	}

	return period, nil
}

// Reconcile recomputes credits_used as the sum over the current period's
// transactions and overwrites the hot counter — the ledger is the
// authoritative source, per spec §4.10.
func (s *service) Reconcile(ctx context.Context, workspaceID uuid.UUID) error {
	period, err := s.ledger.CurrentPeriod(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("credit: current period: %w", err)
	}

	sum, err := s.ledger.SumTransactions(ctx, workspaceID, period.ID)
	if err != nil {
		return fmt.Errorf("credit: sum transactions: %w", err)
	}

	if err := s.counter.Set(ctx, workspaceID, sum); err != nil {
		return fmt.Errorf("credit: set counter: %w", err)
	}

	period.CreditsUsed = sum
	if sum > period.CreditsLimit {
		period.CreditsOverage = sum - period.CreditsLimit
	} else {
		period.CreditsOverage = 0
	}
	return s.ledger.SavePeriod(ctx, period)
}

// AddCredits writes a negative-signed transaction (a grant or refund)
// and decrements the counter correspondingly, per spec §4.10.
func (s *service) AddCredits(ctx context.Context, workspaceID uuid.UUID, n float64, txType, description string) error {
	_ = description // carried for ledger annotations; no field to persist it to yet
	return s.Increment(ctx, workspaceID, -n, txType, nil)
}
