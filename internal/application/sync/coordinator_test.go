package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/profile"
	"github.com/t4g-hub/t4g-learn-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST DOUBLES
// ══════════════════════════════════════════════════════════════════════════════

type fakeStore struct {
	mu        sync.Mutex
	pending   map[string]*profile.RewardTransaction
	order     []string
	balance   profile.Tokens
	confirmed []string
	pushes    []string
}

func newFakeStore(txs ...*profile.RewardTransaction) *fakeStore {
	s := &fakeStore{pending: make(map[string]*profile.RewardTransaction)}
	for _, tx := range txs {
		s.pending[tx.ID] = tx
		s.order = append(s.order, tx.ID)
	}
	return s
}

func (s *fakeStore) PendingTransactions() []*profile.RewardTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*profile.RewardTransaction
	for _, id := range s.order {
		if tx, ok := s.pending[id]; ok {
			txCopy := *tx
			out = append(out, &txCopy)
		}
	}
	return out
}

func (s *fakeStore) MarkTransactionSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.pending[id]
	if !ok {
		return profile.ErrProfileNotFound
	}
	return tx.MarkSent()
}

func (s *fakeStore) ConfirmTransaction(_ context.Context, id string, serverBalance profile.Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return nil
	}
	delete(s.pending, id)
	s.balance = serverBalance
	s.confirmed = append(s.confirmed, id)
	return nil
}

func (s *fakeStore) FailTransaction(_ context.Context, id, reason string, permanent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.pending[id]
	if !ok {
		return nil
	}
	if err := tx.MarkFailed(reason); err != nil {
		return err
	}
	if permanent {
		delete(s.pending, id)
	}
	return nil
}

func (s *fakeStore) ApplyServerBalance(_ context.Context, newBalance profile.Tokens, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = newBalance
	s.pushes = append(s.pushes, source)
}

type scriptedLedger struct {
	mu       sync.Mutex
	attempts int
	// failures is the number of transient errors before success.
	failures int
	// conflict makes every submit a permanent rejection.
	conflict bool
	// balance returned on success.
	balance int64
	tokens  []string
}

func (l *scriptedLedger) Submit(_ context.Context, req SubmitRequest) (*SubmitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	l.tokens = append(l.tokens, req.AuthToken)
	if l.conflict {
		return nil, shared.ErrLedgerConflict
	}
	if l.attempts <= l.failures {
		return nil, shared.ErrLedgerUnavailable
	}
	return &SubmitResult{NewBalance: l.balance}, nil
}

type staticAuth struct {
	token string
	err   error
}

func (a staticAuth) GetAuthToken(context.Context) (string, error) { return a.token, a.err }

func testConfig() Config {
	return Config{
		Interval:          time.Hour, // passes are driven manually
		RequestTimeout:    time.Second,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		MaxRetriesPerPass: 3,
	}
}

func pendingTx(id string, amount profile.Tokens) *profile.RewardTransaction {
	return &profile.RewardTransaction{
		ID:          id,
		ProfileID:   "user-1",
		Action:      profile.ActionDailyVisit,
		FinalAmount: amount,
		State:       profile.SyncStateLocal,
		CreatedAt:   time.Now().UTC(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestSyncPending_ConfirmsAndAppliesServerBalance(t *testing.T) {
	store := newFakeStore(pendingTx("tx-1", 100))
	ledger := &scriptedLedger{balance: 742}
	c := New(store, ledger, staticAuth{token: "jwt-abc"}, nil, nil, testConfig())

	c.SyncPending(context.Background())

	assert.Equal(t, []string{"tx-1"}, store.confirmed)
	assert.Equal(t, profile.Tokens(742), store.balance)
	assert.Equal(t, []string{"jwt-abc"}, ledger.tokens)
	assert.Empty(t, store.PendingTransactions())
}

func TestSyncPending_RetriesTransientFailures(t *testing.T) {
	store := newFakeStore(pendingTx("tx-1", 100))
	ledger := &scriptedLedger{failures: 2, balance: 100}
	c := New(store, ledger, staticAuth{token: "jwt"}, nil, nil, testConfig())

	c.SyncPending(context.Background())

	assert.Equal(t, 3, ledger.attempts)
	assert.Equal(t, []string{"tx-1"}, store.confirmed)
}

func TestSyncPending_ExhaustedRetriesLeaveTransactionQueued(t *testing.T) {
	store := newFakeStore(pendingTx("tx-1", 100))
	ledger := &scriptedLedger{failures: 100}
	c := New(store, ledger, staticAuth{token: "jwt"}, nil, nil, testConfig())

	c.SyncPending(context.Background())

	// MaxRetriesPerPass 3 means 4 attempts, then the transaction stays
	// queued for the next pass.
	assert.Equal(t, 4, ledger.attempts)
	pending := store.PendingTransactions()
	require.Len(t, pending, 1)
	assert.Equal(t, profile.SyncStateFailed, pending[0].State)

	// The next pass picks it up again: retries are indefinite across passes.
	c.SyncPending(context.Background())
	assert.Equal(t, 8, ledger.attempts)
}

func TestSyncPending_ConflictIsPermanent(t *testing.T) {
	store := newFakeStore(pendingTx("tx-1", 100))
	ledger := &scriptedLedger{conflict: true}
	c := New(store, ledger, staticAuth{token: "jwt"}, nil, nil, testConfig())

	c.SyncPending(context.Background())

	// No retries for a rejection, and the queue is cleared.
	assert.Equal(t, 1, ledger.attempts)
	assert.Empty(t, store.confirmed)
	assert.Empty(t, store.PendingTransactions())
}

func TestSyncPending_RateLimitedIsPermanent(t *testing.T) {
	store := newFakeStore(pendingTx("tx-1", 100))
	rateLimited := &scriptedLedger{conflict: true}
	c := New(store, rateLimited, staticAuth{token: "jwt"}, nil, nil, testConfig())

	assert.True(t, isConflict(shared.ErrRateLimited))
	assert.True(t, isConflict(shared.ErrLedgerConflict))
	assert.False(t, isConflict(shared.ErrLedgerUnavailable))
	assert.False(t, isConflict(errors.New("boom")))

	c.SyncPending(context.Background())
	assert.Empty(t, store.PendingTransactions())
}

func TestSyncPending_MultipleTransactionsInOrder(t *testing.T) {
	store := newFakeStore(pendingTx("tx-1", 10), pendingTx("tx-2", 20), pendingTx("tx-3", 30))
	ledger := &scriptedLedger{balance: 60}
	c := New(store, ledger, staticAuth{token: "jwt"}, nil, nil, testConfig())

	c.SyncPending(context.Background())

	assert.Equal(t, []string{"tx-1", "tx-2", "tx-3"}, store.confirmed)
}

func TestSyncPending_SkipsPassWithoutAuthToken(t *testing.T) {
	store := newFakeStore(pendingTx("tx-1", 100))
	ledger := &scriptedLedger{}
	c := New(store, ledger, staticAuth{err: errors.New("no session")}, nil, nil, testConfig())

	c.SyncPending(context.Background())

	assert.Zero(t, ledger.attempts)
	assert.Len(t, store.PendingTransactions(), 1)
}

func TestSyncPending_EmptyQueueDoesNothing(t *testing.T) {
	store := newFakeStore()
	ledger := &scriptedLedger{}
	c := New(store, ledger, staticAuth{token: "jwt"}, nil, nil, testConfig())

	c.SyncPending(context.Background())
	assert.Zero(t, ledger.attempts)
}

func TestHandleServerEvent_BalanceUpdate(t *testing.T) {
	store := newFakeStore()
	c := New(store, &scriptedLedger{}, staticAuth{token: "jwt"}, nil, nil, testConfig())

	c.HandleServerEvent(context.Background(), ServerEvent{
		Type:       ServerEventBalanceUpdate,
		ProfileID:  "user-1",
		NewBalance: 1234,
	})
	assert.Equal(t, profile.Tokens(1234), store.balance)
	assert.Equal(t, []string{"balance-update"}, store.pushes)
}

func TestHandleServerEvent_RewardReceived(t *testing.T) {
	store := newFakeStore()
	c := New(store, &scriptedLedger{}, staticAuth{token: "jwt"}, nil, nil, testConfig())

	c.HandleServerEvent(context.Background(), ServerEvent{
		Type:       ServerEventRewardReceived,
		NewBalance: 500,
		Amount:     50,
		Reason:     "best-answer",
	})
	assert.Equal(t, profile.Tokens(500), store.balance)
}

func TestHandleServerEvent_UnknownTypeIgnored(t *testing.T) {
	store := newFakeStore()
	c := New(store, &scriptedLedger{}, staticAuth{token: "jwt"}, nil, nil, testConfig())

	c.HandleServerEvent(context.Background(), ServerEvent{Type: "mystery"})
	assert.Empty(t, store.pushes)
	assert.Zero(t, store.balance)
}

func TestStartStop(t *testing.T) {
	store := newFakeStore(pendingTx("tx-1", 100))
	ledger := &scriptedLedger{balance: 100}

	cfg := testConfig()
	cfg.Interval = 5 * time.Millisecond
	c := New(store, ledger, staticAuth{token: "jwt"}, nil, nil, cfg)

	c.Start(context.Background())
	assert.Eventually(t, func() bool {
		return len(store.PendingTransactions()) == 0
	}, time.Second, 5*time.Millisecond)
	c.Stop()

	// Stop is idempotent.
	c.Stop()
}
