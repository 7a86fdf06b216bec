package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SyncChannel carries on-demand reconciliation requests
const SyncChannel = "cashback:sync"

// SyncRequest asks the worker service for an immediate run
type SyncRequest struct {
	// Since overrides the default lookback
	Since       *time.Time `json:"since,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
}

// Publisher is satisfied by store.Store
type Publisher interface {
	Publish(ctx context.Context, channel, message string) error
}

// Subscriber is satisfied by store.Store
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan string, error)
}

// RequestSync publishes a SyncRequest. Delivery is fire-and-forget: with no
// worker listening the request is lost.
func RequestSync(ctx context.Context, p Publisher, req SyncRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode sync request: %w", err)
	}
	if err := p.Publish(ctx, SyncChannel, string(body)); err != nil {
		return fmt.Errorf("failed to publish sync request: %w", err)
	}
	return nil
}

// Listen runs a reconciliation for every SyncRequest received until ctx is
// done. Requests arriving while a run is in progress are skipped by the lock.
func (r *Reconciler) Listen(ctx context.Context, sub Subscriber) error {
	msgs, err := sub.Subscribe(ctx, SyncChannel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", SyncChannel, err)
	}

	r.logger.Info("Listening for sync requests", slog.String("channel", SyncChannel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.handleTrigger(ctx, msg)
		}
	}
}

func (r *Reconciler) handleTrigger(ctx context.Context, msg string) {
	var req SyncRequest
	if err := json.Unmarshal([]byte(msg), &req); err != nil {
		r.logger.Warn("Ignoring malformed sync request",
			slog.String("payload", msg),
			slog.Any("error", err),
		)
		return
	}

	since := DefaultSince(r.now())
	if req.Since != nil {
		since = *req.Since
	}

	r.logger.Info("Sync requested",
		slog.String("requested_by", req.RequestedBy),
		slog.Time("since", since),
	)

	if _, err := r.Run(ctx, since); err != nil && !errors.Is(err, ErrSyncInProgress) {
		r.logger.Error("Requested sync failed", slog.Any("error", err))
	}
}
