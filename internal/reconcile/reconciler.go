// Package reconcile imports partner transactions idempotently, attributes
// them to users through recorded clicks and emits cashback-credit events
// when a transaction is confirmed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/events"
	"github.com/cuongbtq/cashback-jobs/internal/lock"
	"github.com/cuongbtq/cashback-jobs/internal/partner"
	"golang.org/x/sync/errgroup"
)

const (
	// SyncLockName guards whole reconciliation runs
	SyncLockName = "cashback_sync"

	defaultLockTTL     = time.Hour
	defaultFetchLimit  = 4
	defaultLookbackDay = 30
)

// ErrSyncInProgress is returned by Run when another run holds the sync lock
var ErrSyncInProgress = errors.New("reconciliation already running")

// Config holds reconciler configuration
type Config struct {
	Logger     *slog.Logger
	Repository Repository
	Sources    []partner.Source
	Emitter    events.Emitter
	Locker     *lock.Locker
	LockTTL    time.Duration
	// FetchConcurrency bounds parallel partner fetches
	FetchConcurrency int
	Now              func() time.Time
}

// Reconciler runs reconciliation passes
type Reconciler struct {
	logger           *slog.Logger
	repo             Repository
	sources          []partner.Source
	emitter          events.Emitter
	locker           *lock.Locker
	lockTTL          time.Duration
	fetchConcurrency int
	now              func() time.Time
}

// New creates a Reconciler
func New(cfg *Config) *Reconciler {
	r := &Reconciler{
		logger:           cfg.Logger,
		repo:             cfg.Repository,
		sources:          cfg.Sources,
		emitter:          cfg.Emitter,
		locker:           cfg.Locker,
		lockTTL:          cfg.LockTTL,
		fetchConcurrency: cfg.FetchConcurrency,
		now:              cfg.Now,
	}
	if r.lockTTL <= 0 {
		r.lockTTL = defaultLockTTL
	}
	if r.fetchConcurrency <= 0 {
		r.fetchConcurrency = defaultFetchLimit
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

// DefaultSince is the lookback used by scheduled runs
func DefaultSince(now time.Time) time.Time {
	return now.AddDate(0, 0, -defaultLookbackDay)
}

// Run fetches from every source and reconciles what came back. Source and
// per-record failures are counted in Summary.Errors; the only errors
// returned are ErrSyncInProgress and context cancellation.
func (r *Reconciler) Run(ctx context.Context, since time.Time) (Summary, error) {
	var summary Summary

	err := r.locker.WithLock(ctx, SyncLockName, r.lockTTL, func(ctx context.Context) error {
		summary = r.run(ctx, since)
		return ctx.Err()
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		r.logger.Info("Reconciliation skipped, another run holds the lock")
		return Summary{}, ErrSyncInProgress
	}

	return summary, err
}

type fetchResult struct {
	network string
	records []partner.Record
	err     error
}

func (r *Reconciler) run(ctx context.Context, since time.Time) Summary {
	start := r.now()
	r.logger.Info("Starting reconciliation",
		slog.Int("sources", len(r.sources)),
		slog.Time("since", since),
	)

	results := make([]fetchResult, len(r.sources))

	var g errgroup.Group
	g.SetLimit(r.fetchConcurrency)
	for i, src := range r.sources {
		i, src := i, src
		g.Go(func() error {
			records, err := src.Fetch(ctx, since)
			results[i] = fetchResult{network: src.Network(), records: records, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var summary Summary
	for _, res := range results {
		if res.err != nil {
			summary.Errors++
			r.logger.Error("Partner fetch failed",
				slog.String("network", res.network),
				slog.Int("partial_records", len(res.records)),
				slog.Any("error", res.err),
			)
		}

		summary.TotalFetched += len(res.records)
		for _, rec := range res.records {
			if ctx.Err() != nil {
				return summary
			}

			outcome, err := r.Reconcile(ctx, rec)
			if err != nil {
				summary.Errors++
				r.logger.Error("Failed to reconcile record",
					slog.String("network", rec.Network),
					slog.String("external_id", rec.ExternalID),
					slog.Any("error", err),
				)
				continue
			}
			summary.add(outcome)
		}
	}

	r.logger.Info("Reconciliation finished",
		slog.Int("imported", summary.Imported),
		slog.Int("updated", summary.Updated),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("conflicts", summary.Conflicts),
		slog.Int("total_fetched", summary.TotalFetched),
		slog.Int("errors", summary.Errors),
		slog.Duration("took", r.now().Sub(start)),
	)
	return summary
}

// Reconcile upserts a single record. The credit event, when due, is emitted
// before the write so a failed write is retried by the next run; consumers
// dedupe on the event reference.
func (r *Reconciler) Reconcile(ctx context.Context, rec partner.Record) (Outcome, error) {
	if rec.ExternalID == "" || rec.Network == "" {
		return "", fmt.Errorf("record needs network and external_id")
	}

	status := NormalizeStatus(rec.Status)

	existing, err := r.repo.FindTransaction(ctx, rec.Network, rec.ExternalID)
	switch {
	case errors.Is(err, ErrNotFound):
		return r.importRecord(ctx, rec, status)
	case err != nil:
		return "", err
	}

	if existing.Status == status {
		return OutcomeUnchanged, nil
	}

	if existing.Status.Terminal() {
		r.logger.Warn("Ignoring status change on settled transaction",
			slog.String("network", rec.Network),
			slog.String("external_id", rec.ExternalID),
			slog.String("stored", string(existing.Status)),
			slog.String("incoming", string(status)),
		)
		return OutcomeConflict, nil
	}

	var confirmedAt *time.Time
	if status == StatusConfirmed && existing.ConfirmedAt == nil {
		now := r.now()
		confirmedAt = &now

		if existing.UserID != nil {
			existing.ConfirmedAt = confirmedAt
			if err := r.emitCredit(ctx, existing); err != nil {
				return "", err
			}
		}
	}

	if err := r.repo.UpdateStatus(ctx, existing.ID, status, confirmedAt); err != nil {
		return "", err
	}

	r.logger.Info("Transaction status updated",
		slog.String("network", rec.Network),
		slog.String("external_id", rec.ExternalID),
		slog.String("from", string(existing.Status)),
		slog.String("to", string(status)),
	)
	return OutcomeUpdated, nil
}

func (r *Reconciler) importRecord(ctx context.Context, rec partner.Record, status Status) (Outcome, error) {
	tx := &Transaction{
		Network:    rec.Network,
		ExternalID: rec.ExternalID,
		Status:     status,
		Amount:     rec.Amount,
		ImportedAt: r.now(),
	}
	if !rec.TransactionDate.IsZero() {
		date := rec.TransactionDate
		tx.TransactionDate = &date
	}

	if err := r.attribute(ctx, rec, tx); err != nil {
		return "", err
	}

	if status == StatusConfirmed {
		confirmedAt := tx.ImportedAt
		tx.ConfirmedAt = &confirmedAt

		if tx.UserID != nil {
			if err := r.emitCredit(ctx, tx); err != nil {
				return "", err
			}
		}
	}

	inserted, err := r.repo.InsertTransaction(ctx, tx)
	if err != nil {
		return "", err
	}
	if !inserted {
		// a concurrent run imported it first
		return OutcomeUnchanged, nil
	}

	r.logger.Info("Transaction imported",
		slog.String("network", rec.Network),
		slog.String("external_id", rec.ExternalID),
		slog.String("status", string(status)),
	)
	return OutcomeImported, nil
}

// attribute resolves click, user and merchant. The latest click with the
// external click id wins; a merchant mapping overrides the click's merchant.
func (r *Reconciler) attribute(ctx context.Context, rec partner.Record, tx *Transaction) error {
	if rec.ClickExtID != "" {
		click, err := r.repo.LatestClick(ctx, rec.ClickExtID)
		switch {
		case errors.Is(err, ErrNotFound):
			r.logger.Debug("No click found for transaction",
				slog.String("network", rec.Network),
				slog.String("click_ext_id", rec.ClickExtID),
			)
		case err != nil:
			return err
		default:
			tx.ClickID = &click.ID
			tx.UserID = &click.UserID
			tx.MerchantID = click.MerchantID
		}
	}

	if rec.MerchantExtID != "" {
		merchantID, err := r.repo.LatestMerchant(ctx, rec.Network, rec.MerchantExtID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			tx.MerchantID = &merchantID
		}
	}

	return nil
}

func (r *Reconciler) emitCredit(ctx context.Context, tx *Transaction) error {
	if !tx.Amount.IsPositive() {
		r.logger.Warn("Skipping credit for non-positive amount",
			slog.String("network", tx.Network),
			slog.String("external_id", tx.ExternalID),
			slog.String("amount", tx.Amount.String()),
		)
		return nil
	}

	ev := events.CreditEvent{
		Reference:   events.Reference(tx.Network, tx.ExternalID),
		UserID:      *tx.UserID,
		Amount:      tx.Amount,
		Network:     tx.Network,
		ExternalID:  tx.ExternalID,
		MerchantID:  tx.MerchantID,
		ConfirmedAt: *tx.ConfirmedAt,
	}

	if err := r.emitter.EmitCredit(ctx, ev); err != nil {
		return fmt.Errorf("emit credit for %s: %w", ev.Reference, err)
	}
	return nil
}
