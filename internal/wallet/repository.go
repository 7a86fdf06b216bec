package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Repository reads and mutates wallets. Apply must be atomic.
type Repository interface {
	GetAccount(ctx context.Context, userID int64) (*Account, error)
	CountPendingWithdrawals(ctx context.Context, userID int64) (int, error)
	Apply(ctx context.Context, m *Mutation) (*Applied, error)
}

// PostgresRepository implements Repository with sqlx
type PostgresRepository struct {
	db *sqlx.DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a PostgresRepository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetAccount(ctx context.Context, userID int64) (*Account, error) {
	query := `
		SELECT
			id AS user_id, email, COALESCE(mobile, '') AS mobile, COALESCE(name, '') AS name,
			wallet_balance, pending_cashback
		FROM users
		WHERE id = $1
	`

	var acct Account
	err := r.db.GetContext(ctx, &acct, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &acct, nil
}

func (r *PostgresRepository) CountPendingWithdrawals(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM withdrawals WHERE user_id = $1 AND status = $2`

	var n int
	if err := r.db.GetContext(ctx, &n, query, userID, WithdrawalPending); err != nil {
		return 0, fmt.Errorf("failed to count pending withdrawals: %w", err)
	}
	return n, nil
}

// Apply runs the mutation in one transaction. The balance guard in the
// UPDATE backs up the caller's lock: a mutation that would go negative
// affects no row and fails with ErrInsufficientFunds.
func (r *PostgresRepository) Apply(ctx context.Context, m *Mutation) (*Applied, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if m.CreditRef != "" {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO cashback_credits (reference, user_id, amount, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (reference) DO NOTHING
		`, m.CreditRef, m.UserID, m.PendingDelta, m.At)
		if err != nil {
			return nil, fmt.Errorf("failed to record credit: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return nil, ErrDuplicateCredit
		}
	}

	var applied Applied
	err = tx.QueryRowxContext(ctx, `
		UPDATE users
		SET wallet_balance = wallet_balance + $1, pending_cashback = pending_cashback + $2
		WHERE id = $3 AND wallet_balance + $1 >= 0 AND pending_cashback + $2 >= 0
		RETURNING wallet_balance, pending_cashback
	`, m.BalanceDelta, m.PendingDelta, m.UserID).Scan(&applied.Balance, &applied.PendingCashback)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInsufficientFunds
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	if w := m.Withdrawal; w != nil {
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO withdrawals (
				user_id, amount, method, status,
				upi_id, bank_account_number, bank_ifsc, bank_account_name, created_at
			) VALUES (
				$1, $2, $3, $4,
				NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9
			)
			RETURNING id
		`, m.UserID, w.Amount, w.Method, w.Status,
			w.UPIID, w.BankAccountNumber, w.BankIFSC, w.BankAccountName, m.At,
		).Scan(&applied.WithdrawalID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert withdrawal: %w", err)
		}
		w.ID = applied.WithdrawalID

		if m.Entry != nil && m.Entry.Reference == "" {
			m.Entry.Reference = fmt.Sprintf("withdrawal_pending_%d", w.ID)
		}
	}

	if e := m.Entry; e != nil {
		e.UserID = m.UserID
		e.BalanceAfter = applied.Balance
		e.CreatedAt = m.At

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO wallet_transactions (
				user_id, amount, type, reference, description, balance_after, created_at
			) VALUES (
				$1, $2, $3, NULLIF($4, ''), $5, $6, $7
			)
			RETURNING id
		`, e.UserID, e.Amount, e.Type, e.Reference, e.Description, e.BalanceAfter, e.CreatedAt,
		).Scan(&e.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit wallet mutation: %w", err)
	}

	return &applied, nil
}
