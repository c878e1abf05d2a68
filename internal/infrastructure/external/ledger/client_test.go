package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsync "github.com/t4g-hub/t4g-learn-hub/internal/application/sync"
	"github.com/t4g-hub/t4g-learn-hub/internal/domain/shared"
)

func TestTransactionReceiptDTO_Parsing(t *testing.T) {
	jsonData := `{
    "success": true,
    "data": {
        "transaction_id": "9ca4322d-ebd5-4ffa-a340-56fe811bbab1",
        "status": "confirmed",
        "new_balance": 1825,
        "settled_at": "2025-03-10T12:00:05Z",
        "block_ref": "0x7ed99bd0"
    }
}`

	var response APIResponse[TransactionReceiptDTO]
	err := json.Unmarshal([]byte(jsonData), &response)
	assert.NoError(t, err)

	assert.True(t, response.Success)
	assert.Equal(t, "9ca4322d-ebd5-4ffa-a340-56fe811bbab1", response.Data.TransactionID)
	assert.Equal(t, "confirmed", response.Data.Status)
	assert.Equal(t, int64(1825), response.Data.NewBalance)
	assert.Equal(t, "0x7ed99bd0", response.Data.BlockRef)
}

func TestServerEventDTO_Parsing(t *testing.T) {
	jsonData := `{
    "type": "reward-received",
    "wallet_address": "0xabc123",
    "new_balance": 2050,
    "amount": 225,
    "reason": "best-answer-bonus",
    "timestamp": "2025-03-10T14:30:00Z"
}`

	var dto ServerEventDTO
	err := json.Unmarshal([]byte(jsonData), &dto)
	assert.NoError(t, err)
	assert.Equal(t, "reward-received", dto.Type)
	assert.Equal(t, int64(2050), dto.NewBalance)
	assert.Equal(t, int64(225), dto.Amount)

	ev := mapServerEvent(dto)
	assert.Equal(t, appsync.ServerEventRewardReceived, ev.Type)
	assert.Equal(t, "0xabc123", ev.ProfileID)
	assert.Equal(t, int64(2050), ev.NewBalance)
}

func testClientConfig(baseURL string) ClientConfig {
	cfg := DefaultClientConfig(baseURL)
	cfg.Timeout = time.Second
	cfg.LimiterConfig = LimiterConfig{RequestsPerSecond: 1000, Burst: 1000, MaxWait: time.Second}
	return cfg
}

func TestClient_Submit(t *testing.T) {
	var received SubmitTransactionDTO
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions", r.URL.Path)
		assert.Equal(t, "Bearer jwt-abc", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(APIResponse[TransactionReceiptDTO]{
			Success: true,
			Data: TransactionReceiptDTO{
				TransactionID: received.TransactionID,
				Status:        "confirmed",
				NewBalance:    500,
			},
		})
	}))
	defer server.Close()

	c := NewClient(testClientConfig(server.URL))
	result, err := c.Submit(context.Background(), appsync.SubmitRequest{
		TransactionID: "tx-1",
		ProfileID:     "0xwallet",
		Action:        "module-completion",
		Amount:        110,
		BurnAmount:    5,
		AuthToken:     "jwt-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), result.NewBalance)
	assert.Equal(t, "0xwallet", received.WalletAddress)
	assert.Equal(t, int64(110), received.Amount)
	assert.Equal(t, int64(5), received.BurnAmount)
}

func TestClient_SubmitDuplicateIsConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"code":  CodeDuplicateTransaction,
			"error": "transaction already settled",
		})
	}))
	defer server.Close()

	c := NewClient(testClientConfig(server.URL))
	_, err := c.Submit(context.Background(), appsync.SubmitRequest{TransactionID: "tx-1"})
	assert.ErrorIs(t, err, shared.ErrLedgerConflict)

	// A rejection is not a ledger outage: the breaker stays closed.
	assert.Equal(t, BreakerClosed, c.breaker.State())
}

func TestClient_SubmitRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient(testClientConfig(server.URL))
	_, err := c.Submit(context.Background(), appsync.SubmitRequest{TransactionID: "tx-1"})
	assert.ErrorIs(t, err, shared.ErrRateLimited)
}

func TestClient_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(testClientConfig(server.URL))
	_, err := c.Submit(context.Background(), appsync.SubmitRequest{TransactionID: "tx-1"})
	assert.ErrorIs(t, err, shared.ErrLedgerUnavailable)
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testClientConfig(server.URL)
	cfg.BreakerConfig = BreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Cooldown: time.Minute}
	c := NewClient(cfg)

	for i := 0; i < 3; i++ {
		_, err := c.Submit(context.Background(), appsync.SubmitRequest{TransactionID: "tx-1"})
		assert.Error(t, err)
	}
	assert.Equal(t, BreakerOpen, c.breaker.State())

	// Open circuit fails fast without touching the network.
	_, err := c.Submit(context.Background(), appsync.SubmitRequest{TransactionID: "tx-1"})
	assert.ErrorIs(t, err, shared.ErrLedgerUnavailable)
}

func TestClient_GetBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/0xwallet/balance", r.URL.Path)
		json.NewEncoder(w).Encode(APIResponse[BalanceDTO]{
			Success: true,
			Data: BalanceDTO{
				WalletAddress:  "0xwallet",
				Balance:        1234,
				LifetimeEarned: 5678,
			},
		})
	}))
	defer server.Close()

	c := NewClient(testClientConfig(server.URL))
	balance, err := c.GetBalance(context.Background(), "0xwallet", "jwt")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), balance.Balance)
	assert.Equal(t, int64(5678), balance.LifetimeEarned)
}

func TestClient_SubscribeDeliversEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		w.Write([]byte("data: {\"type\":\"balance-update\",\"wallet_address\":\"0xw\",\"new_balance\":900}\n\n"))
		w.Write([]byte(": keepalive comment\n"))
		w.Write([]byte("data: {\"type\":\"reward-received\",\"wallet_address\":\"0xw\",\"new_balance\":950,\"amount\":50}\n\n"))
		flusher.Flush()
	}))
	defer server.Close()

	var events []appsync.ServerEvent
	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(testClientConfig(server.URL))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Subscribe(ctx, "0xw", "jwt", func(ev appsync.ServerEvent) {
			events = append(events, ev)
			if len(events) == 2 {
				cancel()
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscribe did not deliver events in time")
	}

	require.Len(t, events, 2)
	assert.Equal(t, appsync.ServerEventBalanceUpdate, events[0].Type)
	assert.Equal(t, int64(900), events[0].NewBalance)
	assert.Equal(t, appsync.ServerEventRewardReceived, events[1].Type)
	assert.Equal(t, int64(50), events[1].Amount)
}

func TestLimiter_AllowsBurstThenThrottles(t *testing.T) {
	l := NewLimiter(LimiterConfig{RequestsPerSecond: 100, Burst: 3, MaxWait: time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.NoError(t, l.Acquire(ctx))
	}
	// Bucket drained: the next acquire cannot finish within MaxWait.
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, shared.ErrRateLimited)
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Cooldown: time.Millisecond})

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.Error(t, b.Allow())

	time.Sleep(5 * time.Millisecond)
	assert.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
}
