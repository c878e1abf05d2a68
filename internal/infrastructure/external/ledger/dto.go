package ledger

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse is the standard envelope of the ledger API.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// SubmitTransactionDTO is the settlement request body.
type SubmitTransactionDTO struct {
	// TransactionID is the client-generated idempotency key.
	TransactionID string `json:"transaction_id"`

	// WalletAddress identifies the earning wallet.
	WalletAddress string `json:"wallet_address"`

	// Action names the rewarded action.
	Action string `json:"action"`

	// Amount is the minted amount in indivisible units.
	Amount int64 `json:"amount"`

	// BurnAmount is the protocol burn reported with the mint.
	BurnAmount int64 `json:"burn_amount"`

	// ClientTime is the local mint timestamp.
	ClientTime time.Time `json:"client_time"`
}

// TransactionReceiptDTO is the ledger's settlement acknowledgement.
type TransactionReceiptDTO struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"` // "confirmed" or "duplicate"
	NewBalance    int64     `json:"new_balance"`
	SettledAt     time.Time `json:"settled_at"`
	BlockRef      string    `json:"block_ref,omitempty"`
}

// BalanceDTO is the wallet balance response.
type BalanceDTO struct {
	WalletAddress  string    `json:"wallet_address"`
	Balance        int64     `json:"balance"`
	LifetimeEarned int64     `json:"lifetime_earned"`
	AsOf           time.Time `json:"as_of"`
}

// ServerEventDTO is one pushed event on the server event stream.
type ServerEventDTO struct {
	// Type is "balance-update" or "reward-received".
	Type string `json:"type"`

	WalletAddress string `json:"wallet_address"`
	NewBalance    int64  `json:"new_balance"`

	// Amount and Reason are set for reward-received events.
	Amount int64  `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a structured error response from the ledger.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("ledger api: %s (%s, status %d)", e.Message, e.Code, e.StatusCode)
}

// Ledger rejection codes that are conflicts, never retried.
const (
	CodeDuplicateTransaction = "DUPLICATE_TRANSACTION"
	CodeInvalidSignature     = "INVALID_SIGNATURE"
	CodeQuotaExceeded        = "QUOTA_EXCEEDED"
)
