package llm

import (
	"sync"
	"time"

	"github.com/walksalot/docpipe/internal/errkind"
)

// breakerState is one of the three circuit states.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker implements a three-state breaker: CLOSED → OPEN after
// FOpen consecutive failures → HALF_OPEN after TCool → CLOSED on success /
// OPEN on failure. One instance per LLM client, guarded by a mutex; never a
// process global.
type CircuitBreaker struct {
	mu sync.Mutex

	fOpen int
	tCool time.Duration

	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
}

// NewCircuitBreaker builds a breaker with the component design's defaults
// (FOpen=10, TCool=60s) unless overridden.
func NewCircuitBreaker(fOpen int, tCool time.Duration) *CircuitBreaker {
	if fOpen <= 0 {
		fOpen = 10
	}
	if tCool <= 0 {
		tCool = 60 * time.Second
	}
	return &CircuitBreaker{fOpen: fOpen, tCool: tCool, state: stateClosed}
}

// Allow reports whether a call may proceed, transitioning OPEN → HALF_OPEN
// once the cooldown has elapsed.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if time.Since(b.openedAt) >= b.tCool {
			b.state = stateHalfOpen
			return nil
		}
		return errkind.New(errkind.CircuitOpen, "circuit breaker open")
	default:
		return nil
	}
}

// RecordSuccess transitions HALF_OPEN/CLOSED → CLOSED and resets the
// failure counter.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.consecutiveFailures = 0
}

// RecordFailure increments the failure counter. In HALF_OPEN, any failure
// reopens immediately. In CLOSED, FOpen consecutive failures trip the
// breaker open.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.state = stateOpen
		b.openedAt = time.Now()
		b.consecutiveFailures = b.fOpen
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.fOpen {
		b.state = stateOpen
		b.openedAt = time.Now()
	}
}

// State exposes the current state for observability/health reporting.
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
