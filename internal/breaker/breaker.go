// Package breaker adapts a per-key circuit breaker for guarding repeated
// ExecutorTransient failures on a single connector key within an
// execution, grounded on internal/pkg/circuitbreaker/circuitbreaker.go's
// three-state (closed/half-open/open) generation-counted design. Trimmed
// to the context-aware entry point only, since the scheduler never calls
// a breaker without a per-node context in hand.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrOpen       = errors.New("breaker: circuit open")
	ErrHalfOpenBusy = errors.New("breaker: half-open probe limit reached")
)

type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// Config tunes one breaker. Zero values fall back to defaults tuned for
// connector calls: five consecutive failures trips the circuit, a
// 30-second cooldown before probing resumes.
type Config struct {
	MaxHalfOpenProbes uint32
	ClosedWindow      time.Duration
	OpenTimeout       time.Duration
	FailureThreshold  uint32
	SuccessThreshold  uint32
	OnStateChange     func(key string, from, to State)
}

func (c Config) withDefaults() Config {
	if c.MaxHalfOpenProbes == 0 {
		c.MaxHalfOpenProbes = 1
	}
	if c.ClosedWindow == 0 {
		c.ClosedWindow = 60 * time.Second
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}
	return c
}

type counts struct {
	requests             uint32
	consecutiveSuccesses uint32
	consecutiveFailures  uint32
}

func (c *counts) clear() { *c = counts{} }

// Breaker is a single connector key's failure tracker.
type Breaker struct {
	key        string
	config     Config
	mu         sync.Mutex
	state      State
	counts     counts
	expiry     time.Time
	generation uint64
}

func newBreaker(key string, config Config) *Breaker {
	b := &Breaker{key: key, config: config.withDefaults(), state: Closed}
	b.toNewGeneration(time.Now())
	return b
}

// Allow reports whether a call against this key may proceed, and if not
// returns the reason (ErrOpen or ErrHalfOpenBusy). Callers that get a
// non-nil error should treat the attempt as a transient failure without
// invoking the underlying executor.
func (b *Breaker) Allow() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, generation := b.currentState(now)

	if state == Open {
		return generation, ErrOpen
	}
	if state == HalfOpen && b.counts.requests >= b.config.MaxHalfOpenProbes {
		return generation, ErrHalfOpenBusy
	}
	b.counts.requests++
	return generation, nil
}

// Report records the outcome of a call admitted by a prior Allow call
// that returned the same generation.
func (b *Breaker) Report(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, current := b.currentState(now)
	if current != generation {
		return
	}
	if success {
		b.onSuccess(state, now)
	} else {
		b.onFailure(state, now)
	}
}

// ExecuteWithContext runs fn if the breaker admits the call, and feeds
// fn's error back into the breaker's state machine.
func (b *Breaker) ExecuteWithContext(ctx context.Context, fn func(context.Context) error) error {
	generation, err := b.Allow()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.Report(generation, err == nil)
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.currentState(time.Now())
	return state
}

func (b *Breaker) onSuccess(state State, now time.Time) {
	switch state {
	case Closed:
		b.counts.consecutiveSuccesses++
		b.counts.consecutiveFailures = 0
	case HalfOpen:
		b.counts.consecutiveSuccesses++
		b.counts.consecutiveFailures = 0
		if b.counts.consecutiveSuccesses >= b.config.SuccessThreshold {
			b.setState(Closed, now)
		}
	}
}

func (b *Breaker) onFailure(state State, now time.Time) {
	switch state {
	case Closed:
		b.counts.consecutiveFailures++
		b.counts.consecutiveSuccesses = 0
		if b.counts.consecutiveFailures >= b.config.FailureThreshold {
			b.setState(Open, now)
		}
	case HalfOpen:
		b.setState(Open, now)
	}
}

func (b *Breaker) currentState(now time.Time) (State, uint64) {
	switch b.state {
	case Closed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.toNewGeneration(now)
		}
	case Open:
		if b.expiry.Before(now) {
			b.setState(HalfOpen, now)
		}
	}
	return b.state, b.generation
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.toNewGeneration(now)
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.key, prev, state)
	}
}

func (b *Breaker) toNewGeneration(now time.Time) {
	b.generation++
	b.counts.clear()

	var zero time.Time
	switch b.state {
	case Closed:
		if b.config.ClosedWindow == 0 {
			b.expiry = zero
		} else {
			b.expiry = now.Add(b.config.ClosedWindow)
		}
	case Open:
		b.expiry = now.Add(b.config.OpenTimeout)
	default:
		b.expiry = zero
	}
}

// Manager hands out one Breaker per connector key, lazily, so a
// scheduler can guard every distinct connector independently without
// pre-registering keys.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

func NewManager(config Config) *Manager {
	return &Manager{breakers: make(map[string]*Breaker), config: config}
}

func (m *Manager) Get(key string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[key]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[key]; ok {
		return b
	}
	b = newBreaker(key, m.config)
	m.breakers[key] = b
	return b
}

// States returns a snapshot of every tracked key's current state, used by
// observability endpoints.
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.breakers))
	for k, b := range m.breakers {
		out[k] = b.State()
	}
	return out
}
