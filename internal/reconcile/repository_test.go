package reconcile

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresRepository_FindTransaction(t *testing.T) {
	ctx := context.Background()
	query := regexp.QuoteMeta("FROM affiliate_transactions")
	columns := []string{
		"id", "network", "external_transaction_id", "status", "amount",
		"click_id", "user_id", "merchant_id", "transaction_date", "imported_at", "confirmed_at",
	}

	t.Run("found", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		importedAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery(query).
			WithArgs("admitad", "TX1").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(
				9, "admitad", "TX1", "pending", "42.50",
				nil, int64(200), nil, nil, importedAt, nil,
			))

		tx, err := repo.FindTransaction(ctx, "admitad", "TX1")
		require.NoError(t, err)
		assert.Equal(t, int64(9), tx.ID)
		assert.Equal(t, StatusPending, tx.Status)
		assert.True(t, tx.Amount.Equal(decimal.RequireFromString("42.5")))
		require.NotNil(t, tx.UserID)
		assert.Equal(t, int64(200), *tx.UserID)
		assert.Nil(t, tx.ClickID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing maps to ErrNotFound", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(query).
			WithArgs("admitad", "TX404").
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := repo.FindTransaction(ctx, "admitad", "TX404")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepository_InsertTransaction(t *testing.T) {
	ctx := context.Background()
	query := regexp.QuoteMeta("ON CONFLICT (network, external_transaction_id) DO NOTHING")

	newTx := func() *Transaction {
		return &Transaction{
			Network:    "admitad",
			ExternalID: "TX1",
			Status:     StatusConfirmed,
			Amount:     decimal.RequireFromString("42.50"),
			ImportedAt: time.Now().UTC(),
		}
	}

	t.Run("inserted", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(query).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(17))

		tx := newTx()
		inserted, err := repo.InsertTransaction(ctx, tx)
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.Equal(t, int64(17), tx.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict returns false", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(query).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		inserted, err := repo.InsertTransaction(ctx, newTx())
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	query := regexp.QuoteMeta("UPDATE affiliate_transactions")
	confirmedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("updated", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec(query).
			WithArgs(string(StatusConfirmed), confirmedAt, int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateStatus(ctx, 9, StatusConfirmed, &confirmedAt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectExec(query).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateStatus(ctx, 9, StatusRejected, nil)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepository_Attribution(t *testing.T) {
	ctx := context.Background()

	t.Run("latest click", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		createdAt := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC")).
			WithArgs("C1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "external_click_id", "user_id", "merchant_id", "offer_id", "created_at"}).
				AddRow(2, "C1", 200, 5, nil, createdAt))

		click, err := repo.LatestClick(ctx, "C1")
		require.NoError(t, err)
		assert.Equal(t, int64(200), click.UserID)
		require.NotNil(t, click.MerchantID)
		assert.Equal(t, int64(5), *click.MerchantID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("merchant mapping missing", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM affiliate_merchant_map")).
			WithArgs("admitad", "M1").
			WillReturnRows(sqlmock.NewRows([]string{"merchant_id"}))

		_, err := repo.LatestMerchant(ctx, "admitad", "M1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
