package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/cashback-jobs/internal/lock"
	"github.com/cuongbtq/cashback-jobs/internal/queue"
	"github.com/cuongbtq/cashback-jobs/internal/ratelimit"
	"github.com/cuongbtq/cashback-jobs/internal/store"
	"github.com/cuongbtq/cashback-jobs/internal/wallet"
	"github.com/shopspring/decimal"
)

// WalletService is the part of wallet.Ledger the API exposes
type WalletService interface {
	ConvertPendingCashback(ctx context.Context, userID int64, amount *decimal.Decimal) (*wallet.ConvertResult, error)
	RequestWithdrawal(ctx context.Context, req wallet.WithdrawalRequest) (*wallet.WithdrawalResult, error)
}

// HealthChecker is satisfied by the PostgreSQL client
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Store    store.Store
	Database HealthChecker // optional, included in the health check when set
	Queue    *queue.Client
	Locker   *lock.Locker
	Limiter  *ratelimit.Limiter
	Wallet   WalletService
	Queues   []string // queue names the admin routes accept
}

// QueueHandler handles queue and dead-letter administration
type QueueHandler struct {
	logger *slog.Logger
	queue  *queue.Client
	queues map[string]bool
}

// NewQueueHandler creates a new QueueHandler instance
func NewQueueHandler(deps *Dependencies) *QueueHandler {
	known := make(map[string]bool, len(deps.Queues))
	for _, q := range deps.Queues {
		known[q] = true
	}
	return &QueueHandler{
		logger: deps.Logger,
		queue:  deps.Queue,
		queues: known,
	}
}

// OpsHandler handles health, sync triggers and lock administration
type OpsHandler struct {
	logger   *slog.Logger
	store    store.Store
	database HealthChecker
	locker   *lock.Locker
}

// NewOpsHandler creates a new OpsHandler instance
func NewOpsHandler(deps *Dependencies) *OpsHandler {
	return &OpsHandler{
		logger:   deps.Logger,
		store:    deps.Store,
		database: deps.Database,
		locker:   deps.Locker,
	}
}

// WalletHandler handles wallet mutations
type WalletHandler struct {
	logger *slog.Logger
	wallet WalletService
}

// NewWalletHandler creates a new WalletHandler instance
func NewWalletHandler(deps *Dependencies) *WalletHandler {
	return &WalletHandler{
		logger: deps.Logger,
		wallet: deps.Wallet,
	}
}
