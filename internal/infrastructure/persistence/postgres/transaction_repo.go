package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/t4g-hub/t4g-learn-hub/internal/domain/profile"
)

// TransactionRepository implements profile.TransactionRepository for PostgreSQL.
// Pending rows (local, sent, failed) are the replay queue after a restart;
// settled rows (confirmed, conflict) are kept as a bounded per-profile
// history and never re-enter the queue.
type TransactionRepository struct {
	conn *Connection
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(conn *Connection) *TransactionRepository {
	return &TransactionRepository{conn: conn}
}

// Save persists the transaction (upsert by ID).
func (r *TransactionRepository) Save(ctx context.Context, tx *profile.RewardTransaction) error {
	query := `
		INSERT INTO reward_transactions (
			id, profile_id, action, base_amount, final_amount, burn_amount,
			multiplier, sync_state, attempts, created_at, confirmed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT(id) DO UPDATE SET
			sync_state = EXCLUDED.sync_state,
			attempts = EXCLUDED.attempts,
			confirmed_at = EXCLUDED.confirmed_at
	`

	var confirmedAt *time.Time
	if !tx.ConfirmedAt.IsZero() {
		confirmedAt = &tx.ConfirmedAt
	}

	_, err := r.conn.Exec(ctx, query,
		tx.ID,
		tx.ProfileID,
		string(tx.Action),
		int64(tx.BaseAmount),
		int64(tx.FinalAmount),
		int64(tx.BurnAmount),
		tx.Multiplier,
		string(tx.State),
		tx.Attempts,
		tx.CreatedAt,
		confirmedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	return nil
}

// FindPending returns the transactions still awaiting settlement in
// creation order. Terminal rows (confirmed, conflict) are excluded so a
// ledger rejection is never re-submitted after a restart.
func (r *TransactionRepository) FindPending(ctx context.Context, profileID string) ([]*profile.RewardTransaction, error) {
	query := `
		SELECT id, profile_id, action, base_amount, final_amount, burn_amount,
			   multiplier, sync_state, attempts, created_at, confirmed_at
		FROM reward_transactions
		WHERE profile_id = $1 AND sync_state IN ('local', 'sent', 'failed')
		ORDER BY created_at ASC
	`

	rows, err := r.conn.Query(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// History returns the latest limit transactions, newest first.
func (r *TransactionRepository) History(ctx context.Context, profileID string, limit int) ([]*profile.RewardTransaction, error) {
	query := `
		SELECT id, profile_id, action, base_amount, final_amount, burn_amount,
			   multiplier, sync_state, attempts, created_at, confirmed_at
		FROM reward_transactions
		WHERE profile_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction history: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// PruneHistory keeps the newest keep transactions of the profile.
// Pending rows are never pruned, only settled history beyond the window.
func (r *TransactionRepository) PruneHistory(ctx context.Context, profileID string, keep int) error {
	query := `
		DELETE FROM reward_transactions
		WHERE profile_id = $1
		  AND sync_state IN ('confirmed', 'conflict')
		  AND id NOT IN (
			SELECT id FROM reward_transactions
			WHERE profile_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		  )
	`

	_, err := r.conn.Exec(ctx, query, profileID, keep)
	if err != nil {
		return fmt.Errorf("failed to prune transaction history: %w", err)
	}

	return nil
}

// DeletePending removes the profile's unsettled transactions. A profile
// reset calls this so a discarded queue is not replayed on the next start.
func (r *TransactionRepository) DeletePending(ctx context.Context, profileID string) error {
	query := `
		DELETE FROM reward_transactions
		WHERE profile_id = $1 AND sync_state IN ('local', 'sent', 'failed')
	`

	_, err := r.conn.Exec(ctx, query, profileID)
	if err != nil {
		return fmt.Errorf("failed to delete pending transactions: %w", err)
	}

	return nil
}

// ProfilesWithHistory returns the distinct profile IDs that have any
// recorded transactions. The maintenance worker iterates these for the
// periodic history sweep.
func (r *TransactionRepository) ProfilesWithHistory(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT profile_id FROM reward_transactions`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles with history: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan profile id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}

	return ids, nil
}

func scanTransactions(rows pgx.Rows) ([]*profile.RewardTransaction, error) {
	var txs []*profile.RewardTransaction
	for rows.Next() {
		var (
			tx          profile.RewardTransaction
			action      string
			base        int64
			final       int64
			burn        int64
			state       string
			confirmedAt *time.Time
		)

		err := rows.Scan(
			&tx.ID,
			&tx.ProfileID,
			&action,
			&base,
			&final,
			&burn,
			&tx.Multiplier,
			&state,
			&tx.Attempts,
			&tx.CreatedAt,
			&confirmedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		tx.Action = profile.ActionKind(action)
		tx.BaseAmount = profile.Tokens(base)
		tx.FinalAmount = profile.Tokens(final)
		tx.BurnAmount = profile.Tokens(burn)
		tx.State = profile.SyncState(state)
		if confirmedAt != nil {
			tx.ConfirmedAt = *confirmedAt
		}

		txs = append(txs, &tx)
	}

	return txs, rows.Err()
}
