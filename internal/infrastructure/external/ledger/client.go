package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	appsync "github.com/t4g-hub/t4g-learn-hub/internal/application/sync"
	"github.com/t4g-hub/t4g-learn-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the ledger client.
type ClientConfig struct {
	// BaseURL is the ledger API base URL.
	BaseURL string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// LimiterConfig throttles outgoing requests.
	LimiterConfig LimiterConfig

	// BreakerConfig protects against a failing ledger.
	BreakerConfig BreakerConfig

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables request logging.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:       baseURL,
		Timeout:       15 * time.Second,
		LimiterConfig: DefaultLimiterConfig(),
		BreakerConfig: DefaultBreakerConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the remote T4G ledger. It implements the sync
// coordinator's Ledger interface; every call is a single attempt and the
// coordinator owns the retry schedule.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *Limiter
	breaker    *Breaker
}

// NewClient creates a ledger API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:  config.Logger.With("component", "ledger_client"),
		limiter: NewLimiter(config.LimiterConfig),
		breaker: NewBreaker(config.BreakerConfig),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// SETTLEMENT
// ──────────────────────────────────────────────────────────────────────────────

// Submit settles one reward transaction. Rejections are classified into
// shared sentinel errors for the coordinator: a "duplicate" receipt maps
// to ErrLedgerConflict, a permanent error that takes the transaction out
// of the retry queue. The ledger settled it in an earlier attempt, so the
// coordinator must stop re-submitting rather than treat it as success
// with a receipt it does not have.
func (c *Client) Submit(ctx context.Context, req appsync.SubmitRequest) (*appsync.SubmitResult, error) {
	body := SubmitTransactionDTO{
		TransactionID: req.TransactionID,
		WalletAddress: req.ProfileID,
		Action:        req.Action,
		Amount:        req.Amount,
		BurnAmount:    req.BurnAmount,
		ClientTime:    time.Now().UTC(),
	}

	var response APIResponse[TransactionReceiptDTO]
	if err := c.doRequest(ctx, http.MethodPost, "/v1/transactions", req.AuthToken, body, &response); err != nil {
		return nil, fmt.Errorf("submit %s: %w", req.TransactionID, err)
	}
	if !response.Success {
		return nil, classifyAPIError(&APIError{Code: response.Code, Message: response.Error})
	}

	return &appsync.SubmitResult{NewBalance: response.Data.NewBalance}, nil
}

// GetBalance fetches the canonical wallet balance.
func (c *Client) GetBalance(ctx context.Context, walletAddress, authToken string) (*BalanceDTO, error) {
	path := "/v1/wallets/" + url.PathEscape(walletAddress) + "/balance"

	var response APIResponse[BalanceDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, authToken, nil, &response); err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	if !response.Success {
		return nil, classifyAPIError(&APIError{Code: response.Code, Message: response.Error})
	}
	return &response.Data, nil
}

// IsHealthy checks if the ledger API is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	var response APIResponse[map[string]interface{}]
	err := c.attempt(ctx, http.MethodGet, "/v1/health", "", nil, &response)
	return err == nil && response.Success
}

// Status describes the client's protective state.
type Status struct {
	BreakerState BreakerState
	IsHealthy    bool
}

// Status returns the current client status.
func (c *Client) Status(ctx context.Context) Status {
	return Status{
		BreakerState: c.breaker.State(),
		IsHealthy:    c.IsHealthy(ctx),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// SERVER PUSH
// ──────────────────────────────────────────────────────────────────────────────

// Subscribe opens the server event stream and delivers pushed events to
// the handler until the context is cancelled. The connection is
// re-established with exponential backoff after stream errors.
func (c *Client) Subscribe(ctx context.Context, walletAddress, authToken string, handler func(appsync.ServerEvent)) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0

	operation := func() error {
		if err := c.readStream(ctx, walletAddress, authToken, handler); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("event stream interrupted, reconnecting", "error", err)
			return err
		}
		return nil
	}
	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) readStream(ctx context.Context, walletAddress, authToken string, handler func(appsync.ServerEvent)) error {
	streamURL := c.config.BaseURL + "/v1/wallets/" + url.PathEscape(walletAddress) + "/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+authToken)

	// The stream client must not time out the long-lived connection.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream status %d: %w", resp.StatusCode, shared.ErrLedgerUnavailable)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var dto ServerEventDTO
		if err := json.Unmarshal([]byte(payload), &dto); err != nil {
			c.logger.Warn("malformed server event skipped", "error", err)
			continue
		}
		handler(mapServerEvent(dto))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("stream closed by server: %w", shared.ErrLedgerUnavailable)
}

// mapServerEvent converts a wire event into the coordinator's type.
func mapServerEvent(dto ServerEventDTO) appsync.ServerEvent {
	return appsync.ServerEvent{
		Type:       appsync.ServerEventType(dto.Type),
		ProfileID:  dto.WalletAddress,
		NewBalance: dto.NewBalance,
		Amount:     dto.Amount,
		Reason:     dto.Reason,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// HTTP PLUMBING
// ──────────────────────────────────────────────────────────────────────────────

// doRequest performs one guarded request: circuit breaker, then rate
// limiter, then a single HTTP attempt.
func (c *Client) doRequest(ctx context.Context, method, path, authToken string, body, result interface{}) error {
	if err := c.breaker.Allow(); err != nil {
		return err
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}

	err := c.attempt(ctx, method, path, authToken, body, result)
	if err == nil {
		c.breaker.RecordSuccess()
		return nil
	}

	if isConflictError(err) {
		// The ledger itself is healthy, it just rejected this transaction.
		c.breaker.RecordSuccess()
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == CodeQuotaExceeded {
			c.limiter.Penalize()
		}
		return err
	}
	c.breaker.RecordFailure()
	return err
}

func (c *Client) attempt(ctx context.Context, method, path, authToken string, body, result interface{}) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	if c.config.Debug {
		c.logger.Debug("ledger api request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("http request: %w", shared.ErrTimeout)
		}
		return fmt.Errorf("http request: %w", shared.ErrLedgerUnavailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.Penalize()
		return fmt.Errorf("status 429: %w", shared.ErrRateLimited)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return classifyAPIError(apiErr)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// classifyAPIError wraps a ledger rejection into the shared taxonomy:
// conflicts and quota hits are permanent for the submitting transaction,
// server errors are transient.
func classifyAPIError(apiErr *APIError) error {
	switch apiErr.Code {
	case CodeDuplicateTransaction, CodeInvalidSignature:
		return fmt.Errorf("%w: %w", shared.ErrLedgerConflict, apiErr)
	case CodeQuotaExceeded:
		return fmt.Errorf("%w: %w", shared.ErrRateLimited, apiErr)
	}
	if apiErr.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %w", shared.ErrLedgerConflict, apiErr)
	}
	if apiErr.StatusCode >= 500 {
		return fmt.Errorf("%w: %w", shared.ErrLedgerUnavailable, apiErr)
	}
	if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return fmt.Errorf("%w: %w", shared.ErrLedgerConflict, apiErr)
	}
	return apiErr
}

func isConflictError(err error) bool {
	return errors.Is(err, shared.ErrLedgerConflict) || errors.Is(err, shared.ErrRateLimited)
}
