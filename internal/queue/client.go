// Package queue implements named FIFO job queues over store lists, with an
// in-flight visibility set and a dead-letter list per queue.
//
// Delivery is at-least-once. The processing set is informational only: a job
// claimed by a worker that crashes is not recovered automatically.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/store"
	"github.com/cuongbtq/cashback-jobs/internal/worker/domain"
	"github.com/google/uuid"
)

var (
	// ErrEmpty is returned by Claim when nothing arrived within the poll timeout
	ErrEmpty = errors.New("queue empty")

	// ErrMalformed is returned by Claim for an entry that could not be decoded.
	// The entry has already been dead-lettered.
	ErrMalformed = errors.New("malformed queue entry")
)

// Stats holds per-queue counts
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	DeadLetter int64 `json:"dead_letter"`
}

// Delivery is a claimed job
type Delivery struct {
	Queue    string
	Raw      string
	Envelope *Envelope
}

// Event is published on EventsChannel for each job transition
type Event struct {
	Type     string      `json:"type"`
	Queue    string      `json:"queue"`
	JobID    string      `json:"job_id"`
	Kind     domain.Kind `json:"kind"`
	Attempts int         `json:"attempts"`
	Error    string      `json:"error,omitempty"`
	At       time.Time   `json:"at"`
}

// Option configures the Client.
type Option func(*Client)

// WithClock overrides the time source for enqueued_at and failed_at.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client enqueues and inspects jobs
type Client struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewClient creates a queue client over s
func NewClient(s store.Store, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		store:  s,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Enqueue appends a new job to the tail of the named queue and returns its id.
// Store failures are returned to the caller.
func (c *Client) Enqueue(ctx context.Context, queue string, kind domain.Kind, target string, data map[string]interface{}) (string, error) {
	if data == nil {
		data = map[string]interface{}{}
	}

	env := &Envelope{
		ID:         uuid.NewString(),
		Type:       kind,
		Target:     target,
		Data:       data,
		EnqueuedAt: c.now(),
		Attempts:   0,
	}

	raw, err := encode(env)
	if err != nil {
		return "", err
	}

	if err := c.store.RPush(ctx, pendingKey(queue), raw); err != nil {
		c.logger.Error("Failed to enqueue job",
			slog.String("queue", queue),
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	c.logger.Debug("Job enqueued",
		slog.String("queue", queue),
		slog.String("job_id", env.ID),
		slog.String("kind", string(kind)),
	)
	c.publish(ctx, "enqueued", queue, env, "")

	return env.ID, nil
}

// Stats returns pending, processing and dead-letter counts for a queue
func (c *Client) Stats(ctx context.Context, queue string) (Stats, error) {
	var (
		stats Stats
		err   error
	)

	if stats.Pending, err = c.store.LLen(ctx, pendingKey(queue)); err != nil {
		return Stats{}, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	if stats.Processing, err = c.store.SCard(ctx, processingKey(queue)); err != nil {
		return Stats{}, fmt.Errorf("failed to count processing jobs: %w", err)
	}
	if stats.DeadLetter, err = c.store.LLen(ctx, deadLetterKey(queue)); err != nil {
		return Stats{}, fmt.Errorf("failed to count dead-letter jobs: %w", err)
	}

	return stats, nil
}

// Claim pops the head of the queue, waiting up to timeout, and marks it as
// processing. Returns ErrEmpty when nothing arrived.
func (c *Client) Claim(ctx context.Context, queue string, timeout time.Duration) (*Delivery, error) {
	raw, err := c.store.BLPop(ctx, timeout, pendingKey(queue))
	if errors.Is(err, store.ErrNil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	env, err := decode(raw)
	if err != nil {
		c.quarantine(ctx, queue, raw, err)
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if err := c.store.SAdd(ctx, processingKey(queue), raw); err != nil {
		// visibility only, the job is still ours
		c.logger.Warn("Failed to mark job as processing",
			slog.String("queue", queue),
			slog.String("job_id", env.ID),
			slog.Any("error", err),
		)
	}

	return &Delivery{Queue: queue, Raw: raw, Envelope: env}, nil
}

// Ack removes a delivery from the processing set
func (c *Client) Ack(ctx context.Context, d *Delivery) {
	if err := c.store.SRem(ctx, processingKey(d.Queue), d.Raw); err != nil {
		c.logger.Warn("Failed to clear processing marker",
			slog.String("queue", d.Queue),
			slog.String("job_id", d.Envelope.ID),
			slog.Any("error", err),
		)
	}
}

// Complete records a successful job
func (c *Client) Complete(ctx context.Context, d *Delivery) {
	c.publish(ctx, "completed", d.Queue, d.Envelope, "")
}

// Requeue appends the delivery's envelope, with its current attempts, to the
// pending tail
func (c *Client) Requeue(ctx context.Context, d *Delivery, cause error) error {
	raw, err := encode(d.Envelope)
	if err != nil {
		return err
	}
	if err := c.store.RPush(ctx, pendingKey(d.Queue), raw); err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	c.publish(ctx, "retried", d.Queue, d.Envelope, errString(cause))
	return nil
}

// DeadLetter stamps the envelope with failed_at and error and appends it to
// the queue's dead-letter list
func (c *Client) DeadLetter(ctx context.Context, d *Delivery, cause error) error {
	failedAt := c.now()
	d.Envelope.FailedAt = &failedAt
	d.Envelope.Error = errString(cause)

	raw, err := encode(d.Envelope)
	if err != nil {
		return err
	}
	if err := c.store.RPush(ctx, deadLetterKey(d.Queue), raw); err != nil {
		return fmt.Errorf("failed to dead-letter job: %w", err)
	}

	c.logger.Warn("Job moved to dead-letter queue",
		slog.String("queue", d.Queue),
		slog.String("job_id", d.Envelope.ID),
		slog.String("kind", string(d.Envelope.Type)),
		slog.Int("attempts", d.Envelope.Attempts),
		slog.String("error", d.Envelope.Error),
	)
	c.publish(ctx, "dead_lettered", d.Queue, d.Envelope, d.Envelope.Error)
	return nil
}

// DeadLetterList returns the dead-letter entries of a queue in order.
// Entries that fail to decode are returned with only Error and Data["raw"]
// set so positions stay stable for DeadLetterRetry.
func (c *Client) DeadLetterList(ctx context.Context, queue string) ([]Envelope, error) {
	items, err := c.store.LRange(ctx, deadLetterKey(queue), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead-letter jobs: %w", err)
	}

	out := make([]Envelope, 0, len(items))
	for _, raw := range items {
		env, err := decode(raw)
		if err != nil {
			out = append(out, Envelope{
				Data:  map[string]interface{}{"raw": raw},
				Error: err.Error(),
			})
			continue
		}
		out = append(out, *env)
	}
	return out, nil
}

// DeadLetterRetry moves the dead-letter entry at index back to the pending
// tail with attempts reset. It returns false when index is out of range.
//
// The dead-letter list is rebuilt from the remaining entries, so concurrent
// callers working on the same queue can lose or duplicate entries.
func (c *Client) DeadLetterRetry(ctx context.Context, queue string, index int) (bool, error) {
	items, err := c.store.LRange(ctx, deadLetterKey(queue), 0, -1)
	if err != nil {
		return false, fmt.Errorf("failed to read dead-letter jobs: %w", err)
	}
	if index < 0 || index >= len(items) {
		return false, nil
	}

	env, err := decode(items[index])
	if err != nil {
		return false, fmt.Errorf("failed to decode dead-letter job %d: %w", index, err)
	}
	env.Attempts = 0
	env.FailedAt = nil
	env.Error = ""

	raw, err := encode(env)
	if err != nil {
		return false, err
	}

	remaining := make([]string, 0, len(items)-1)
	remaining = append(remaining, items[:index]...)
	remaining = append(remaining, items[index+1:]...)

	if _, err := c.store.Del(ctx, deadLetterKey(queue)); err != nil {
		return false, fmt.Errorf("failed to reset dead-letter queue: %w", err)
	}
	if len(remaining) > 0 {
		if err := c.store.RPush(ctx, deadLetterKey(queue), remaining...); err != nil {
			return false, fmt.Errorf("failed to rebuild dead-letter queue: %w", err)
		}
	}
	if err := c.store.RPush(ctx, pendingKey(queue), raw); err != nil {
		return false, fmt.Errorf("failed to requeue dead-letter job: %w", err)
	}

	c.logger.Info("Dead-letter job requeued",
		slog.String("queue", queue),
		slog.String("job_id", env.ID),
		slog.Int("index", index),
	)
	c.publish(ctx, "dlq_retried", queue, env, "")
	return true, nil
}

// DeadLetterClear deletes a queue's dead-letter list and returns how many
// entries it held
func (c *Client) DeadLetterClear(ctx context.Context, queue string) (int64, error) {
	n, err := c.store.LLen(ctx, deadLetterKey(queue))
	if err != nil {
		return 0, fmt.Errorf("failed to count dead-letter jobs: %w", err)
	}
	if _, err := c.store.Del(ctx, deadLetterKey(queue)); err != nil {
		return 0, fmt.Errorf("failed to clear dead-letter queue: %w", err)
	}

	c.logger.Info("Dead-letter queue cleared",
		slog.String("queue", queue),
		slog.Int64("count", n),
	)
	return n, nil
}

// quarantine dead-letters an entry that could not be decoded
func (c *Client) quarantine(ctx context.Context, queue, raw string, cause error) {
	failedAt := c.now()
	env := &Envelope{
		Data:     map[string]interface{}{"raw": raw},
		FailedAt: &failedAt,
		Error:    cause.Error(),
	}

	encoded, err := encode(env)
	if err == nil {
		err = c.store.RPush(ctx, deadLetterKey(queue), encoded)
	}
	if err != nil {
		c.logger.Error("Failed to quarantine malformed job",
			slog.String("queue", queue),
			slog.Any("error", err),
		)
		return
	}

	c.logger.Warn("Malformed job moved to dead-letter queue",
		slog.String("queue", queue),
		slog.String("error", cause.Error()),
	)
}

// publish emits a best-effort lifecycle event
func (c *Client) publish(ctx context.Context, typ, queue string, env *Envelope, errMsg string) {
	b, err := json.Marshal(Event{
		Type:     typ,
		Queue:    queue,
		JobID:    env.ID,
		Kind:     env.Type,
		Attempts: env.Attempts,
		Error:    errMsg,
		At:       c.now(),
	})
	if err != nil {
		return
	}

	if err := c.store.Publish(ctx, EventsChannel, string(b)); err != nil {
		c.logger.Debug("Failed to publish queue event",
			slog.String("event", typ),
			slog.Any("error", err),
		)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
