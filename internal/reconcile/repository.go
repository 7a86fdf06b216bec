package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository persists transactions and resolves attribution
type Repository interface {
	// FindTransaction returns ErrNotFound for an unseen (network, external_id)
	FindTransaction(ctx context.Context, network, externalID string) (*Transaction, error)

	// InsertTransaction reports false when (network, external_id) already exists
	InsertTransaction(ctx context.Context, tx *Transaction) (bool, error)

	UpdateStatus(ctx context.Context, id int64, status Status, confirmedAt *time.Time) error

	// LatestClick returns the most recently created click with the id
	LatestClick(ctx context.Context, externalClickID string) (*Click, error)

	// LatestMerchant returns the newest internal merchant mapped to the
	// network's merchant id
	LatestMerchant(ctx context.Context, network, externalMerchantID string) (int64, error)
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

func (r *PostgresRepository) FindTransaction(ctx context.Context, network, externalID string) (*Transaction, error) {
	query := `
		SELECT
			id, network, external_transaction_id, status, amount,
			click_id, user_id, merchant_id, transaction_date, imported_at, confirmed_at
		FROM affiliate_transactions
		WHERE network = $1 AND external_transaction_id = $2
	`

	var tx Transaction
	err := r.db.GetContext(ctx, &tx, query, network, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &tx, nil
}

func (r *PostgresRepository) InsertTransaction(ctx context.Context, tx *Transaction) (bool, error) {
	query := `
		INSERT INTO affiliate_transactions (
			network, external_transaction_id, status, amount,
			click_id, user_id, merchant_id, transaction_date, imported_at, confirmed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (network, external_transaction_id) DO NOTHING
		RETURNING id
	`

	err := r.db.QueryRowxContext(
		ctx,
		query,
		tx.Network,
		tx.ExternalID,
		tx.Status,
		tx.Amount,
		tx.ClickID,
		tx.UserID,
		tx.MerchantID,
		tx.TransactionDate,
		tx.ImportedAt,
		tx.ConfirmedAt,
	).Scan(&tx.ID)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	return true, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status Status, confirmedAt *time.Time) error {
	query := `
		UPDATE affiliate_transactions
		SET status = $1, confirmed_at = COALESCE(confirmed_at, $2)
		WHERE id = $3
	`

	res, err := r.db.ExecContext(ctx, query, status, confirmedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) LatestClick(ctx context.Context, externalClickID string) (*Click, error) {
	query := `
		SELECT id, external_click_id, user_id, merchant_id, offer_id, created_at
		FROM affiliate_clicks
		WHERE external_click_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var c Click
	err := r.db.GetContext(ctx, &c, query, externalClickID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get click: %w", err)
	}

	return &c, nil
}

func (r *PostgresRepository) LatestMerchant(ctx context.Context, network, externalMerchantID string) (int64, error) {
	query := `
		SELECT merchant_id
		FROM affiliate_merchant_map
		WHERE network = $1 AND external_merchant_id = $2
		ORDER BY id DESC
		LIMIT 1
	`

	var merchantID int64
	err := r.db.GetContext(ctx, &merchantID, query, network, externalMerchantID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get merchant mapping: %w", err)
	}

	return merchantID, nil
}
