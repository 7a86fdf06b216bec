package wallet

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/cashback-jobs/internal/events"
	"github.com/cuongbtq/cashback-jobs/internal/queue"
	"github.com/cuongbtq/cashback-jobs/internal/worker"
	"github.com/cuongbtq/cashback-jobs/internal/worker/domain"
)

// Register adds the credit consumer to the cashback queue
func (l *Ledger) Register(r *worker.Router) {
	r.Handle(domain.QueueCashback, domain.KindCashbackCredit, worker.HandlerFunc(l.HandleCredit))
}

// HandleCredit applies one cashback_credit job. Lock contention is retried;
// a missing account or a malformed event is dead-lettered.
func (l *Ledger) HandleCredit(ctx context.Context, env *queue.Envelope) domain.Result {
	ev, err := events.CreditFromEnvelope(env)
	if err != nil {
		return domain.Fatal(err)
	}

	credited, err := l.CreditPendingCashback(ctx, ev)
	switch {
	case errors.Is(err, ErrLockConflict):
		return domain.Retry(err)
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrInvalidAmount):
		return domain.Fatal(err)
	case err != nil:
		return domain.ResultFromError(err)
	}

	if !credited {
		l.logger.Debug("Skipped duplicate credit job",
			slog.String("job_id", env.ID),
			slog.String("reference", ev.Reference),
		)
	}
	return domain.Success()
}
