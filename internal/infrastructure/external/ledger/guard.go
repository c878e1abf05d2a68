// Package ledger implements the T4G reward ledger API client.
// It settles locally minted reward transactions, serves balance queries
// and delivers server-pushed events. All retry scheduling lives in the
// sync coordinator; the client performs single attempts guarded by a
// rate limiter and a circuit breaker.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - token bucket
// ══════════════════════════════════════════════════════════════════════════════

// Limiter throttles outgoing ledger requests with a token bucket. The
// ledger throttles per wallet, so a client that exceeds its quota gets
// all its settlements rejected as conflicts.
type Limiter struct {
	mu sync.Mutex

	capacity float64
	rate     float64 // tokens per second
	tokens   float64
	last     time.Time
	maxWait  time.Duration
}

// LimiterConfig contains the rate limiter tunables.
type LimiterConfig struct {
	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64

	// Burst is the bucket capacity.
	Burst int

	// MaxWait bounds how long Acquire blocks for a token.
	MaxWait time.Duration
}

// DefaultLimiterConfig returns defaults matching the ledger's documented
// per-wallet quota.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		RequestsPerSecond: 4.0,
		Burst:             8,
		MaxWait:           10 * time.Second,
	}
}

// NewLimiter creates a Limiter with a full bucket.
func NewLimiter(cfg LimiterConfig) *Limiter {
	return &Limiter{
		capacity: float64(cfg.Burst),
		rate:     cfg.RequestsPerSecond,
		tokens:   float64(cfg.Burst),
		last:     time.Now(),
		maxWait:  cfg.MaxWait,
	}
}

// Acquire blocks until a token is available, the context is cancelled or
// MaxWait elapses. A timeout is reported as shared.ErrRateLimited.
func (l *Limiter) Acquire(ctx context.Context) error {
	deadline := time.Now().Add(l.maxWait)

	for {
		wait, ok := l.take()
		if ok {
			return nil
		}
		if time.Now().Add(wait).After(deadline) {
			return fmt.Errorf("ledger: limiter wait exceeds %s: %w", l.maxWait, shared.ErrRateLimited)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *Limiter) take() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now

	if l.tokens < 1.0 {
		need := 1.0 - l.tokens
		return time.Duration(need / l.rate * float64(time.Second)), false
	}
	l.tokens--
	return 0, true
}

// Penalize empties the bucket after the server reports a quota hit, so
// the next request waits a full refill.
func (l *Limiter) Penalize() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = 0
	l.last = time.Now()
}

// ══════════════════════════════════════════════════════════════════════════════
// CIRCUIT BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker fails fast while the ledger is down instead of burning the
// settlement pass on a dead endpoint.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	cooldown         time.Duration

	state       BreakerState
	failures    int
	successes   int
	lastChange  time.Time
	probeBudget int
}

// BreakerConfig contains the circuit breaker tunables.
type BreakerConfig struct {
	// FailureThreshold opens the circuit after this many consecutive failures.
	FailureThreshold int

	// SuccessThreshold closes a half-open circuit after this many successes.
	SuccessThreshold int

	// Cooldown is how long an open circuit rejects before probing.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// NewBreaker creates a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		cooldown:         cfg.Cooldown,
		state:            BreakerClosed,
		lastChange:       time.Now(),
	}
}

// Allow reports whether a request may proceed. Rejections map to
// shared.ErrLedgerUnavailable so the coordinator treats them as transient.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if time.Since(b.lastChange) > b.cooldown {
			b.state = BreakerHalfOpen
			b.successes = 0
			b.probeBudget = 1
			b.lastChange = time.Now()
			return nil
		}
		return fmt.Errorf("ledger: circuit open: %w", shared.ErrLedgerUnavailable)
	case BreakerHalfOpen:
		if b.probeBudget > 0 {
			b.probeBudget--
			return nil
		}
		return fmt.Errorf("ledger: circuit probing: %w", shared.ErrLedgerUnavailable)
	}
	return nil
}

// RecordSuccess feeds a successful request into the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		b.probeBudget++
		if b.successes >= b.successThreshold {
			b.state = BreakerClosed
			b.failures = 0
			b.lastChange = time.Now()
		}
	}
}

// RecordFailure feeds a failed request into the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case BreakerClosed:
		if b.failures >= b.failureThreshold {
			b.state = BreakerOpen
			b.lastChange = time.Now()
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.lastChange = time.Now()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
