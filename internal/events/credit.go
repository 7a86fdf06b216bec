// Package events carries cashback-credit events from the reconciler to the
// wallet ledger and to downstream subscribers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/queue"
	"github.com/cuongbtq/cashback-jobs/internal/worker/domain"
	"github.com/shopspring/decimal"
)

// CreditEvent announces cashback that became payable for a user.
// Reference is stable per external transaction so consumers can dedupe.
type CreditEvent struct {
	Reference   string          `json:"reference"`
	UserID      int64           `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Network     string          `json:"network"`
	ExternalID  string          `json:"external_id"`
	MerchantID  *int64          `json:"merchant_id,omitempty"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

// Reference builds the dedupe key for a partner transaction
func Reference(network, externalID string) string {
	return network + ":" + externalID
}

// Emitter publishes credit events
type Emitter interface {
	EmitCredit(ctx context.Context, ev CreditEvent) error
}

// QueueEmitter enqueues credit events onto the cashback queue for the
// wallet ledger consumer
type QueueEmitter struct {
	queue *queue.Client
}

// NewQueueEmitter creates a QueueEmitter
func NewQueueEmitter(q *queue.Client) *QueueEmitter {
	return &QueueEmitter{queue: q}
}

func (e *QueueEmitter) EmitCredit(ctx context.Context, ev CreditEvent) error {
	data, err := toData(ev)
	if err != nil {
		return err
	}

	if _, err := e.queue.Enqueue(ctx, domain.QueueCashback, domain.KindCashbackCredit, strconv.FormatInt(ev.UserID, 10), data); err != nil {
		return fmt.Errorf("failed to enqueue credit event: %w", err)
	}
	return nil
}

// Publisher is satisfied by the RabbitMQ client
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// BrokerEmitter publishes credit events as JSON to a message broker
type BrokerEmitter struct {
	publisher Publisher
}

// NewBrokerEmitter creates a BrokerEmitter
func NewBrokerEmitter(p Publisher) *BrokerEmitter {
	return &BrokerEmitter{publisher: p}
}

func (e *BrokerEmitter) EmitCredit(ctx context.Context, ev CreditEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode credit event: %w", err)
	}
	if err := e.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish credit event: %w", err)
	}
	return nil
}

// Multi emits to every emitter and joins their errors
type Multi []Emitter

func (m Multi) EmitCredit(ctx context.Context, ev CreditEvent) error {
	var errs []error
	for _, e := range m {
		if err := e.EmitCredit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CreditFromEnvelope decodes a cashback_credit job
func CreditFromEnvelope(env *queue.Envelope) (CreditEvent, error) {
	b, err := json.Marshal(env.Data)
	if err != nil {
		return CreditEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	var ev CreditEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return CreditEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if ev.Reference == "" || ev.UserID == 0 {
		return CreditEvent{}, fmt.Errorf("%w: credit event needs reference and user_id", domain.ErrInvalidPayload)
	}
	if !ev.Amount.IsPositive() {
		return CreditEvent{}, fmt.Errorf("%w: credit amount must be positive", domain.ErrInvalidPayload)
	}
	return ev, nil
}

func toData(ev CreditEvent) (map[string]interface{}, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credit event: %w", err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("failed to encode credit event: %w", err)
	}
	return data, nil
}
