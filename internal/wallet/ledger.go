// Package wallet serializes balance mutations per user through the
// distributed lock and keeps an append-only ledger of every change.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/events"
	"github.com/cuongbtq/cashback-jobs/internal/lock"
	"github.com/cuongbtq/cashback-jobs/internal/worker/domain"
	"github.com/shopspring/decimal"
)

const (
	defaultLockTTL               = 10 * time.Second
	defaultMaxPendingWithdrawals = 3
)

// Notifier enqueues notification jobs. queue.Client satisfies it.
type Notifier interface {
	Enqueue(ctx context.Context, queue string, kind domain.Kind, target string, data map[string]interface{}) (string, error)
}

// Config holds ledger configuration
type Config struct {
	Logger     *slog.Logger
	Repository Repository
	Locker     *lock.Locker
	Notifier   Notifier
	LockTTL    time.Duration
	// MinWithdrawal is the smallest accepted withdrawal; zero disables the check
	MinWithdrawal         decimal.Decimal
	MaxPendingWithdrawals int
	Now                   func() time.Time
}

// Ledger applies wallet mutations under the per-user lock
type Ledger struct {
	logger        *slog.Logger
	repo          Repository
	locker        *lock.Locker
	notifier      Notifier
	lockTTL       time.Duration
	minWithdrawal decimal.Decimal
	maxPending    int
	now           func() time.Time
}

// New creates a Ledger
func New(cfg *Config) *Ledger {
	l := &Ledger{
		logger:        cfg.Logger,
		repo:          cfg.Repository,
		locker:        cfg.Locker,
		notifier:      cfg.Notifier,
		lockTTL:       cfg.LockTTL,
		minWithdrawal: cfg.MinWithdrawal,
		maxPending:    cfg.MaxPendingWithdrawals,
		now:           cfg.Now,
	}
	if l.lockTTL <= 0 {
		l.lockTTL = defaultLockTTL
	}
	if l.maxPending <= 0 {
		l.maxPending = defaultMaxPendingWithdrawals
	}
	if l.now == nil {
		l.now = func() time.Time { return time.Now().UTC() }
	}
	return l
}

// LockName is the lock guarding a user's wallet
func LockName(userID int64) string {
	return "wallet:" + strconv.FormatInt(userID, 10)
}

// withUserLock runs fn under the user's lock and never waits for it
func (l *Ledger) withUserLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	err := l.locker.WithLock(ctx, LockName(userID), l.lockTTL, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		l.logger.Warn("Wallet lock contention",
			slog.Int64("user_id", userID),
		)
		return fmt.Errorf("%w: user %d", ErrLockConflict, userID)
	}
	return err
}

// ConvertPendingCashback moves pending cashback into the spendable balance.
// A nil amount converts everything pending.
func (l *Ledger) ConvertPendingCashback(ctx context.Context, userID int64, amount *decimal.Decimal) (*ConvertResult, error) {
	if amount != nil && !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var (
		result ConvertResult
		acct   *Account
	)
	err := l.withUserLock(ctx, userID, func(ctx context.Context) error {
		var err error
		acct, err = l.repo.GetAccount(ctx, userID)
		if err != nil {
			return err
		}

		if !acct.PendingCashback.IsPositive() {
			return ErrNoPendingCashback
		}

		convert := acct.PendingCashback
		if amount != nil {
			convert = *amount
		}
		if convert.GreaterThan(acct.PendingCashback) {
			return fmt.Errorf("%w: %s pending", ErrInsufficientFunds, acct.PendingCashback.StringFixed(2))
		}

		applied, err := l.repo.Apply(ctx, &Mutation{
			UserID:       userID,
			BalanceDelta: convert,
			PendingDelta: convert.Neg(),
			Entry: &LedgerEntry{
				Amount:      convert,
				Type:        EntryCashbackConverted,
				Description: fmt.Sprintf("Converted %s from pending cashback to wallet", convert.StringFixed(2)),
			},
			At: l.now(),
		})
		if err != nil {
			return err
		}

		result = ConvertResult{
			Converted:        convert,
			NewBalance:       applied.Balance,
			RemainingPending: applied.PendingCashback,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Pending cashback converted",
		slog.Int64("user_id", userID),
		slog.String("amount", result.Converted.String()),
		slog.String("new_balance", result.NewBalance.String()),
	)

	l.notify(ctx, domain.QueueEmail, domain.KindCashbackConfirmed, acct.Email, map[string]interface{}{
		"user_name":      acct.DisplayName(),
		"amount":         result.Converted.StringFixed(2),
		"wallet_balance": result.NewBalance.StringFixed(2),
	})

	return &result, nil
}

// RequestWithdrawal holds amount from the balance and records a pending
// withdrawal
func (l *Ledger) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error) {
	if err := l.validateWithdrawal(req); err != nil {
		return nil, err
	}

	var (
		result WithdrawalResult
		acct   *Account
	)
	err := l.withUserLock(ctx, req.UserID, func(ctx context.Context) error {
		var err error
		acct, err = l.repo.GetAccount(ctx, req.UserID)
		if err != nil {
			return err
		}

		if acct.Balance.LessThan(req.Amount) {
			return fmt.Errorf("%w: %s available", ErrInsufficientFunds, acct.Balance.StringFixed(2))
		}

		pending, err := l.repo.CountPendingWithdrawals(ctx, req.UserID)
		if err != nil {
			return err
		}
		if pending >= l.maxPending {
			return ErrTooManyPendingWithdrawals
		}

		w := &Withdrawal{
			UserID:            req.UserID,
			Amount:            req.Amount,
			Method:            req.Method,
			Status:            WithdrawalPending,
			UPIID:             req.UPIID,
			BankAccountNumber: req.BankAccountNumber,
			BankIFSC:          req.BankIFSC,
			BankAccountName:   req.BankAccountName,
		}
		applied, err := l.repo.Apply(ctx, &Mutation{
			UserID:       req.UserID,
			BalanceDelta: req.Amount.Neg(),
			Entry: &LedgerEntry{
				Amount:      req.Amount.Neg(),
				Type:        EntryWithdrawal,
				Description: "Withdrawal request - " + string(req.Method),
			},
			Withdrawal: w,
			At:         l.now(),
		})
		if err != nil {
			return err
		}

		result = WithdrawalResult{
			WithdrawalID: applied.WithdrawalID,
			Amount:       req.Amount,
			Method:       req.Method,
			Status:       WithdrawalPending,
			NewBalance:   applied.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Withdrawal requested",
		slog.Int64("user_id", req.UserID),
		slog.Int64("withdrawal_id", result.WithdrawalID),
		slog.String("amount", req.Amount.String()),
		slog.String("method", string(req.Method)),
	)

	l.notify(ctx, domain.QueueEmail, domain.KindWithdrawalRequested, acct.Email, map[string]interface{}{
		"user_name":     acct.DisplayName(),
		"amount":        req.Amount.StringFixed(2),
		"method":        string(req.Method),
		"withdrawal_id": result.WithdrawalID,
		"status":        WithdrawalPending,
	})
	if acct.Mobile != "" {
		l.notify(ctx, domain.QueueSMS, domain.KindWithdrawalRequested, acct.Mobile, map[string]interface{}{
			"amount": req.Amount.StringFixed(2),
			"method": string(req.Method),
		})
	}

	return &result, nil
}

func (l *Ledger) validateWithdrawal(req WithdrawalRequest) error {
	if !req.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if l.minWithdrawal.IsPositive() && req.Amount.LessThan(l.minWithdrawal) {
		return &ValidationError{Field: "amount", Message: "minimum withdrawal is " + l.minWithdrawal.StringFixed(2)}
	}

	switch req.Method {
	case MethodUPI:
		if req.UPIID == "" {
			return &ValidationError{Field: "upi_id", Message: "UPI ID is required for UPI withdrawals"}
		}
	case MethodBankTransfer:
		if req.BankAccountNumber == "" || req.BankIFSC == "" || req.BankAccountName == "" {
			return &ValidationError{Field: "bank_account", Message: "bank account details are required for bank transfers"}
		}
	default:
		return &ValidationError{Field: "method", Message: fmt.Sprintf("unsupported method %q", req.Method)}
	}
	return nil
}

// CreditPendingCashback adds a confirmed credit to the user's pending
// cashback. It reports false when the event reference was already applied.
func (l *Ledger) CreditPendingCashback(ctx context.Context, ev events.CreditEvent) (bool, error) {
	if !ev.Amount.IsPositive() {
		return false, ErrInvalidAmount
	}

	var (
		applied *Applied
		acct    *Account
	)
	err := l.withUserLock(ctx, ev.UserID, func(ctx context.Context) error {
		var err error
		acct, err = l.repo.GetAccount(ctx, ev.UserID)
		if err != nil {
			return err
		}

		applied, err = l.repo.Apply(ctx, &Mutation{
			UserID:       ev.UserID,
			PendingDelta: ev.Amount,
			CreditRef:    ev.Reference,
			At:           l.now(),
		})
		return err
	})
	if errors.Is(err, ErrDuplicateCredit) {
		l.logger.Info("Credit already applied",
			slog.String("reference", ev.Reference),
			slog.Int64("user_id", ev.UserID),
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	l.logger.Info("Cashback credited",
		slog.String("reference", ev.Reference),
		slog.Int64("user_id", ev.UserID),
		slog.String("amount", ev.Amount.String()),
		slog.String("pending_cashback", applied.PendingCashback.String()),
	)

	l.notify(ctx, domain.QueueEmail, domain.KindCashbackConfirmed, acct.Email, map[string]interface{}{
		"user_name":      acct.DisplayName(),
		"amount":         ev.Amount.StringFixed(2),
		"wallet_balance": applied.Balance.StringFixed(2),
	})
	if acct.Mobile != "" {
		l.notify(ctx, domain.QueueSMS, domain.KindCashbackCredited, acct.Mobile, map[string]interface{}{
			"amount": ev.Amount.StringFixed(2),
		})
	}

	return true, nil
}

// notify enqueues after the mutation committed; failures only get logged
func (l *Ledger) notify(ctx context.Context, queueName string, kind domain.Kind, target string, data map[string]interface{}) {
	if l.notifier == nil || target == "" {
		return
	}
	if _, err := l.notifier.Enqueue(ctx, queueName, kind, target, data); err != nil {
		l.logger.Error("Failed to enqueue notification",
			slog.String("queue", queueName),
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
	}
}
