package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/cashback-jobs/internal/queue"
	"github.com/cuongbtq/cashback-jobs/internal/worker/domain"
)

// ProcessOne claims at most one job from queueName and runs it to an end
// state: discarded on success, requeued at the tail, or dead-lettered.
// processed is false when the queue stayed empty for the poll timeout.
func (w *Worker) ProcessOne(ctx context.Context, queueName string) (bool, error) {
	d, err := w.queue.Claim(ctx, queueName, w.pollTimeout)
	switch {
	case errors.Is(err, queue.ErrEmpty):
		return false, nil
	case errors.Is(err, queue.ErrMalformed):
		w.logger.Warn("Skipped malformed job",
			slog.String("queue", queueName),
			slog.Any("error", err),
		)
		return true, nil
	case err != nil:
		return false, err
	}

	// the processing marker is cleared on every exit path
	defer w.queue.Ack(context.WithoutCancel(ctx), d)

	env := d.Envelope
	w.logger.Info("Processing job",
		slog.String("queue", queueName),
		slog.String("job_id", env.ID),
		slog.String("kind", string(env.Type)),
		slog.Int("attempts", env.Attempts),
	)

	res := w.executeJob(ctx, d)

	if res.Outcome == domain.OutcomeSuccess {
		w.logger.Info("Job completed successfully",
			slog.String("queue", queueName),
			slog.String("job_id", env.ID),
			slog.String("kind", string(env.Type)),
		)
		w.queue.Complete(ctx, d)
		return true, nil
	}

	return true, w.handleFailure(context.WithoutCancel(ctx), d, res)
}

// handleFailure bumps attempts and either requeues or dead-letters the job
func (w *Worker) handleFailure(ctx context.Context, d *queue.Delivery, res domain.Result) error {
	env := d.Envelope
	env.Attempts++

	cause := res.Err
	if cause == nil {
		cause = errors.New("handler reported failure without an error")
	}

	if res.Outcome == domain.OutcomeRetry && env.Attempts < w.maxAttempts {
		w.logger.Warn("Job failed, will be retried",
			slog.String("queue", d.Queue),
			slog.String("job_id", env.ID),
			slog.String("kind", string(env.Type)),
			slog.Int("attempts", env.Attempts),
			slog.Int("max_attempts", w.maxAttempts),
			slog.String("error", cause.Error()),
		)
		if err := w.queue.Requeue(ctx, d, cause); err != nil {
			w.logger.Error("Failed to requeue job",
				slog.String("queue", d.Queue),
				slog.String("job_id", env.ID),
				slog.Any("error", err),
			)
			return err
		}
		return nil
	}

	w.logger.Error("Job failed permanently",
		slog.String("queue", d.Queue),
		slog.String("job_id", env.ID),
		slog.String("kind", string(env.Type)),
		slog.String("outcome", res.Outcome.String()),
		slog.Int("attempts", env.Attempts),
		slog.String("error", cause.Error()),
	)
	if err := w.queue.DeadLetter(ctx, d, cause); err != nil {
		w.logger.Error("Failed to dead-letter job",
			slog.String("queue", d.Queue),
			slog.String("job_id", env.ID),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

// executeJob dispatches to the registered handler, applying the optional
// job timeout and turning a panic into a retryable failure
func (w *Worker) executeJob(ctx context.Context, d *queue.Delivery) (res domain.Result) {
	h, ok := w.router.Lookup(d.Queue, d.Envelope.Type)
	if !ok {
		return domain.Fatal(fmt.Errorf("%w: %s/%s", domain.ErrUnknownKind, d.Queue, d.Envelope.Type))
	}

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res = domain.Retry(fmt.Errorf("%w: %v", domain.ErrHandlerPanic, r))
		}
	}()

	return h.Handle(jobCtx, d.Envelope)
}
