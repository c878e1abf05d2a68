// Package sync settles locally minted reward transactions with the remote
// T4G ledger. The coordinator never mutates XP, level or achievement state:
// it reads the pending queue and writes confirmation state back through the
// ProfileStore's settlement methods.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/profile"
	"github.com/t4g-hub/t4g-learn-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATOR INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// SubmitRequest is one transaction presented to the ledger.
type SubmitRequest struct {
	// TransactionID is the idempotency key; the ledger deduplicates by it.
	TransactionID string

	// ProfileID identifies the earning profile.
	ProfileID string

	// Action names the rewarded action.
	Action string

	// Amount is the minted T4G amount.
	Amount int64

	// BurnAmount is the protocol burn reported alongside the mint.
	BurnAmount int64

	// AuthToken authenticates the profile.
	AuthToken string
}

// SubmitResult is the ledger's acceptance of a transaction.
type SubmitResult struct {
	// NewBalance is the canonical balance after settlement. The server
	// is authoritative; the local value is an optimistic placeholder.
	NewBalance int64
}

// Ledger is the remote settlement service.
type Ledger interface {
	// Submit settles one transaction. Conflicts are reported as errors
	// matching shared.ErrLedgerConflict or shared.ErrRateLimited.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

// Authenticator supplies the profile's auth token, cached or computed.
type Authenticator interface {
	GetAuthToken(ctx context.Context) (string, error)
}

// TransactionStore is the slice of the ProfileStore the coordinator is
// allowed to touch.
type TransactionStore interface {
	PendingTransactions() []*profile.RewardTransaction
	MarkTransactionSent(id string) error
	ConfirmTransaction(ctx context.Context, id string, serverBalance profile.Tokens) error
	FailTransaction(ctx context.Context, id, reason string, permanent bool) error
	ApplyServerBalance(ctx context.Context, newBalance profile.Tokens, source string)
}

// Metrics receives settlement counters.
type Metrics interface {
	// SyncAttempt counts one settlement attempt with its outcome
	// ("confirmed", "failed", "conflict").
	SyncAttempt(outcome string)

	// ServerPush counts one server-pushed event by type.
	ServerPush(eventType string)
}

// NopMetrics discards all counters.
type NopMetrics struct{}

func (NopMetrics) SyncAttempt(string) {}
func (NopMetrics) ServerPush(string)  {}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER PUSH
// ══════════════════════════════════════════════════════════════════════════════

// ServerEventType enumerates the out-of-band push events the ledger emits.
type ServerEventType string

const (
	// ServerEventBalanceUpdate carries a reconciliation of the balance.
	ServerEventBalanceUpdate ServerEventType = "balance-update"

	// ServerEventRewardReceived carries a server-side computed reward,
	// e.g. a best-answer bonus.
	ServerEventRewardReceived ServerEventType = "reward-received"
)

// ServerEvent is one pushed message from the ledger.
type ServerEvent struct {
	Type       ServerEventType
	ProfileID  string
	NewBalance int64
	Amount     int64
	Reason     string
}

// ══════════════════════════════════════════════════════════════════════════════
// COORDINATOR
// ══════════════════════════════════════════════════════════════════════════════

// Config contains the settlement tunables.
type Config struct {
	// Interval between settlement passes over the pending queue.
	Interval time.Duration

	// RequestTimeout bounds a single submit attempt. An attempt that
	// exceeds it counts as failed and is retried.
	RequestTimeout time.Duration

	// InitialBackoff is the first retry delay within a pass.
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration

	// MaxRetriesPerPass bounds retries of one transaction within a single
	// pass. The transaction stays queued across passes, so retries are
	// effectively indefinite for transient failures.
	MaxRetriesPerPass uint64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:          30 * time.Second,
		RequestTimeout:    10 * time.Second,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        15 * time.Second,
		MaxRetriesPerPass: 4,
	}
}

// Coordinator drives the per-transaction state machine
// local -> sent -> confirmed | failed against the remote ledger.
type Coordinator struct {
	store   TransactionStore
	ledger  Ledger
	auth    Authenticator
	logger  *slog.Logger
	metrics Metrics
	cfg     Config

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a Coordinator.
func New(store TransactionStore, ledger Ledger, auth Authenticator, logger *slog.Logger, metrics Metrics, cfg Config) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if cfg.Interval <= 0 {
		cfg = DefaultConfig()
	}
	return &Coordinator{
		store:   store,
		ledger:  ledger,
		auth:    auth,
		logger:  logger.With("component", "sync_coordinator"),
		metrics: metrics,
		cfg:     cfg,
	}
}

// Start launches the background settlement loop. Stop with Stop.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.SyncPending(ctx)
			}
		}
	}()
	c.logger.Info("settlement loop started", "interval", c.cfg.Interval)
}

// Stop terminates the settlement loop and waits for the current pass.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// SyncPending makes one settlement pass over the pending queue in creation
// order. Local applyAction calls are never blocked by a pass: the store
// mutex is only taken per state write, not for the duration of the pass.
func (c *Coordinator) SyncPending(ctx context.Context) {
	pending := c.store.PendingTransactions()
	if len(pending) == 0 {
		return
	}

	token, err := c.auth.GetAuthToken(ctx)
	if err != nil {
		c.logger.Warn("auth token unavailable, pass skipped", "error", err)
		return
	}

	for _, tx := range pending {
		if tx.IsTerminal() {
			continue
		}
		if err := c.settle(ctx, tx, token); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("transaction left queued", "tx_id", tx.ID, "error", err)
		}
	}
}

// settle submits one transaction with capped exponential backoff inside
// the pass. Conflict rejections are permanent: the transaction is removed
// from the queue and its local effect deliberately kept.
func (c *Coordinator) settle(ctx context.Context, tx *profile.RewardTransaction, token string) error {
	req := SubmitRequest{
		TransactionID: tx.ID,
		ProfileID:     tx.ProfileID,
		Action:        tx.Action.String(),
		Amount:        int64(tx.FinalAmount),
		BurnAmount:    int64(tx.BurnAmount),
		AuthToken:     token,
	}

	operation := func() error {
		if err := c.store.MarkTransactionSent(tx.ID); err != nil {
			// Already settled by a concurrent confirm.
			return backoff.Permanent(err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()

		result, err := c.ledger.Submit(attemptCtx, req)
		if err != nil {
			if isConflict(err) {
				c.metrics.SyncAttempt("conflict")
				if failErr := c.store.FailTransaction(ctx, tx.ID, err.Error(), true); failErr != nil {
					c.logger.Warn("failed to record conflict", "tx_id", tx.ID, "error", failErr)
				}
				return backoff.Permanent(fmt.Errorf("sync: conflict: %w", err))
			}
			c.metrics.SyncAttempt("failed")
			if failErr := c.store.FailTransaction(ctx, tx.ID, err.Error(), false); failErr != nil {
				c.logger.Warn("failed to record failure", "tx_id", tx.ID, "error", failErr)
			}
			return fmt.Errorf("sync: submit %s: %w", tx.ID, err)
		}

		c.metrics.SyncAttempt("confirmed")
		return c.store.ConfirmTransaction(ctx, tx.ID, profile.Tokens(result.NewBalance))
	}

	return backoff.Retry(operation, c.backoffPolicy(ctx))
}

func (c *Coordinator) backoffPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.MaxInterval = c.cfg.MaxBackoff
	policy.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(policy, c.cfg.MaxRetriesPerPass), ctx)
}

// isConflict reports whether the ledger rejected the transaction outright.
// Duplicates and rate limits are not retried.
func isConflict(err error) bool {
	return errors.Is(err, shared.ErrLedgerConflict) || errors.Is(err, shared.ErrRateLimited)
}

// HandleServerEvent applies one pushed ledger event. Pushes only ever
// touch the token balance; achievement evaluation is never re-triggered
// from this path.
func (c *Coordinator) HandleServerEvent(ctx context.Context, ev ServerEvent) {
	c.metrics.ServerPush(string(ev.Type))

	switch ev.Type {
	case ServerEventBalanceUpdate:
		c.store.ApplyServerBalance(ctx, profile.Tokens(ev.NewBalance), string(ev.Type))
	case ServerEventRewardReceived:
		c.logger.Info("server-side reward received", "amount", ev.Amount, "reason", ev.Reason)
		c.store.ApplyServerBalance(ctx, profile.Tokens(ev.NewBalance), string(ev.Type))
	default:
		c.logger.Warn("unknown server event ignored", "type", ev.Type)
	}
}
