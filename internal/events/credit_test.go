package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/queue"
	"github.com/cuongbtq/cashback-jobs/internal/store/memory"
	"github.com/cuongbtq/cashback-jobs/internal/worker/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	bodies [][]byte
	err    error
}

func (p *fakePublisher) PublishWithRetry(_ context.Context, body []byte, contentType string) error {
	p.bodies = append(p.bodies, body)
	return p.err
}

type failingEmitter struct{ err error }

func (f failingEmitter) EmitCredit(context.Context, CreditEvent) error { return f.err }

func sampleEvent() CreditEvent {
	merchant := int64(9)
	return CreditEvent{
		Reference:   Reference("admitad", "TX1"),
		UserID:      42,
		Amount:      decimal.RequireFromString("42.50"),
		Network:     "admitad",
		ExternalID:  "TX1",
		MerchantID:  &merchant,
		ConfirmedAt: time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
	}
}

func TestQueueEmitter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	q := queue.NewClient(memory.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, NewQueueEmitter(q).EmitCredit(ctx, sampleEvent()))

	d, err := q.Claim(ctx, domain.QueueCashback, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.KindCashbackCredit, d.Envelope.Type)
	assert.Equal(t, "42", d.Envelope.Target)

	ev, err := CreditFromEnvelope(d.Envelope)
	require.NoError(t, err)
	assert.Equal(t, "admitad:TX1", ev.Reference)
	assert.Equal(t, int64(42), ev.UserID)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("42.5")))
	require.NotNil(t, ev.MerchantID)
	assert.Equal(t, int64(9), *ev.MerchantID)
}

func TestCreditFromEnvelope_Validation(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
	}{
		{name: "missing reference", data: map[string]interface{}{"user_id": 1, "amount": "10"}},
		{name: "missing user", data: map[string]interface{}{"reference": "n:1", "amount": "10"}},
		{name: "zero amount", data: map[string]interface{}{"reference": "n:1", "user_id": 1, "amount": "0"}},
		{name: "bad amount", data: map[string]interface{}{"reference": "n:1", "user_id": 1, "amount": "ten"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreditFromEnvelope(&queue.Envelope{Data: tt.data})
			assert.ErrorIs(t, err, domain.ErrInvalidPayload)
		})
	}
}

func TestBrokerEmitter(t *testing.T) {
	p := &fakePublisher{}

	require.NoError(t, NewBrokerEmitter(p).EmitCredit(context.Background(), sampleEvent()))

	require.Len(t, p.bodies, 1)
	var got CreditEvent
	require.NoError(t, json.Unmarshal(p.bodies[0], &got))
	assert.Equal(t, "admitad:TX1", got.Reference)

	p.err = errors.New("channel closed")
	err := NewBrokerEmitter(p).EmitCredit(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "channel closed")
}

func TestMulti(t *testing.T) {
	p := &fakePublisher{}
	boom := errors.New("boom")

	err := Multi{failingEmitter{err: boom}, NewBrokerEmitter(p)}.EmitCredit(context.Background(), sampleEvent())

	assert.ErrorIs(t, err, boom)
	assert.Len(t, p.bodies, 1, "later emitters still run after a failure")
}
