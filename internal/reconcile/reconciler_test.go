package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/events"
	"github.com/cuongbtq/cashback-jobs/internal/lock"
	"github.com/cuongbtq/cashback-jobs/internal/partner"
	"github.com/cuongbtq/cashback-jobs/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

type mappingKey struct{ network, extID string }

// memoryRepository is an in-process Repository that counts writes
type memoryRepository struct {
	mu        sync.Mutex
	nextID    int64
	txs       map[mappingKey]*Transaction
	clicks    []Click
	merchants map[mappingKey]int64
	inserts   int
	updates   int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		txs:       make(map[mappingKey]*Transaction),
		merchants: make(map[mappingKey]int64),
	}
}

func (m *memoryRepository) FindTransaction(_ context.Context, network, externalID string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[mappingKey{network, externalID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *memoryRepository) InsertTransaction(_ context.Context, tx *Transaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := mappingKey{tx.Network, tx.ExternalID}
	if _, ok := m.txs[key]; ok {
		return false, nil
	}
	m.nextID++
	tx.ID = m.nextID
	cp := *tx
	m.txs[key] = &cp
	m.inserts++
	return true, nil
}

func (m *memoryRepository) UpdateStatus(_ context.Context, id int64, status Status, confirmedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range m.txs {
		if tx.ID == id {
			tx.Status = status
			if tx.ConfirmedAt == nil {
				tx.ConfirmedAt = confirmedAt
			}
			m.updates++
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryRepository) LatestClick(_ context.Context, externalClickID string) (*Click, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *Click
	for i := range m.clicks {
		c := &m.clicks[i]
		if c.ExternalClickID != externalClickID {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memoryRepository) LatestMerchant(_ context.Context, network, externalMerchantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.merchants[mappingKey{network, externalMerchantID}]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (m *memoryRepository) get(network, externalID string) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs[mappingKey{network, externalID}]
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.CreditEvent
	err    error
}

func (e *recordingEmitter) EmitCredit(_ context.Context, ev events.CreditEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, ev)
	return nil
}

type staticSource struct {
	network string
	records []partner.Record
	err     error
}

func (s staticSource) Network() string { return s.network }

func (s staticSource) Fetch(context.Context, time.Time) ([]partner.Record, error) {
	return s.records, s.err
}

func int64p(v int64) *int64 { return &v }

type fixture struct {
	repo       *memoryRepository
	emitter    *recordingEmitter
	locker     *lock.Locker
	reconciler *Reconciler
}

func newFixture(sources ...partner.Source) *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemoryRepository()
	repo.clicks = []Click{
		{ID: 1, ExternalClickID: "C1", UserID: 100, MerchantID: int64p(5), CreatedAt: testNow.Add(-48 * time.Hour)},
		{ID: 2, ExternalClickID: "C1", UserID: 200, MerchantID: int64p(5), CreatedAt: testNow.Add(-24 * time.Hour)},
	}
	repo.merchants[mappingKey{"admitad", "M1"}] = 7

	emitter := &recordingEmitter{}
	locker := lock.New(memory.New(), logger)

	return &fixture{
		repo:    repo,
		emitter: emitter,
		locker:  locker,
		reconciler: New(&Config{
			Logger:     logger,
			Repository: repo,
			Sources:    sources,
			Emitter:    emitter,
			Locker:     locker,
			Now:        func() time.Time { return testNow },
		}),
	}
}

func scenarioRecord() partner.Record {
	return partner.Record{
		ExternalID:    "TX1",
		Status:        "approved",
		Amount:        decimal.RequireFromString("42.50"),
		ClickExtID:    "C1",
		MerchantExtID: "M1",
		Network:       "admitad",
	}
}

func TestReconcile_ImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	outcome, err := f.reconciler.Reconcile(ctx, scenarioRecord())
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, outcome)

	tx := f.repo.get("admitad", "TX1")
	require.NotNil(t, tx)
	assert.Equal(t, StatusConfirmed, tx.Status)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("42.5")))
	require.NotNil(t, tx.UserID)
	assert.Equal(t, int64(200), *tx.UserID, "most recent click wins")
	require.NotNil(t, tx.ClickID)
	assert.Equal(t, int64(2), *tx.ClickID)
	require.NotNil(t, tx.MerchantID)
	assert.Equal(t, int64(7), *tx.MerchantID, "merchant mapping overrides click merchant")
	require.NotNil(t, tx.ConfirmedAt)
	assert.Equal(t, testNow, *tx.ConfirmedAt)

	require.Len(t, f.emitter.events, 1)
	ev := f.emitter.events[0]
	assert.Equal(t, "admitad:TX1", ev.Reference)
	assert.Equal(t, int64(200), ev.UserID)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("42.50")))

	outcome, err = f.reconciler.Reconcile(ctx, scenarioRecord())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)

	assert.Equal(t, 1, f.repo.inserts)
	assert.Equal(t, 0, f.repo.updates)
	assert.Len(t, f.emitter.events, 1)
}

func TestReconcile_StatusTransitions(t *testing.T) {
	tests := []struct {
		name        string
		first       string
		second      string
		wantOutcome Outcome
		wantStatus  Status
		wantUpdates int
		wantCredits int
	}{
		{
			name:        "pending to confirmed credits once",
			first:       "pending",
			second:      "approved",
			wantOutcome: OutcomeUpdated,
			wantStatus:  StatusConfirmed,
			wantUpdates: 1,
			wantCredits: 1,
		},
		{
			name:        "pending to declined",
			first:       "pending",
			second:      "declined",
			wantOutcome: OutcomeUpdated,
			wantStatus:  StatusRejected,
			wantUpdates: 1,
		},
		{
			name:        "unknown vocabulary stays pending",
			first:       "pending",
			second:      "on_hold",
			wantOutcome: OutcomeUnchanged,
			wantStatus:  StatusPending,
		},
		{
			name:        "confirmed never regresses",
			first:       "confirmed",
			second:      "pending",
			wantOutcome: OutcomeConflict,
			wantStatus:  StatusConfirmed,
			wantCredits: 1,
		},
		{
			name:        "rejected is terminal",
			first:       "rejected",
			second:      "approved",
			wantOutcome: OutcomeConflict,
			wantStatus:  StatusRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture()

			rec := scenarioRecord()
			rec.Status = tt.first
			_, err := f.reconciler.Reconcile(ctx, rec)
			require.NoError(t, err)

			rec.Status = tt.second
			outcome, err := f.reconciler.Reconcile(ctx, rec)
			require.NoError(t, err)

			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Equal(t, tt.wantStatus, f.repo.get("admitad", "TX1").Status)
			assert.Equal(t, 1, f.repo.inserts)
			assert.Equal(t, tt.wantUpdates, f.repo.updates)
			assert.Len(t, f.emitter.events, tt.wantCredits)
		})
	}
}

func TestReconcile_NoClickMeansNoCredit(t *testing.T) {
	f := newFixture()

	rec := scenarioRecord()
	rec.ClickExtID = "unknown"
	outcome, err := f.reconciler.Reconcile(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, OutcomeImported, outcome)
	tx := f.repo.get("admitad", "TX1")
	assert.Nil(t, tx.UserID)
	assert.Equal(t, int64(7), *tx.MerchantID)
	assert.Empty(t, f.emitter.events)
}

func TestReconcile_EmitFailureLeavesRecordForNextRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.emitter.err = errors.New("redis down")

	_, err := f.reconciler.Reconcile(ctx, scenarioRecord())
	require.Error(t, err)
	assert.Nil(t, f.repo.get("admitad", "TX1"))

	f.emitter.err = nil
	outcome, err := f.reconciler.Reconcile(ctx, scenarioRecord())
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, outcome)
	assert.Len(t, f.emitter.events, 1)
}

func TestReconcile_RejectsIncompleteRecord(t *testing.T) {
	f := newFixture()

	_, err := f.reconciler.Reconcile(context.Background(), partner.Record{Network: "admitad"})
	assert.Error(t, err)
}

func TestRun_AggregatesAcrossSources(t *testing.T) {
	good := staticSource{network: "admitad", records: []partner.Record{
		scenarioRecord(),
		{ExternalID: "TX2", Status: "pending", Amount: decimal.NewFromInt(10), Network: "admitad"},
	}}
	partial := staticSource{
		network: "cuelinks",
		records: []partner.Record{{ExternalID: "TX9", Status: "rejected", Amount: decimal.NewFromInt(3), Network: "cuelinks"}},
		err:     errors.New("page 2: timeout"),
	}
	broken := staticSource{network: "vcommission", err: errors.New("401 unauthorized")}

	f := newFixture(good, partial, broken)

	summary, err := f.reconciler.Run(context.Background(), DefaultSince(testNow))
	require.NoError(t, err)

	assert.Equal(t, Summary{Imported: 3, TotalFetched: 3, Errors: 2}, summary)

	summary, err = f.reconciler.Run(context.Background(), DefaultSince(testNow))
	require.NoError(t, err)
	assert.Equal(t, Summary{Unchanged: 3, TotalFetched: 3, Errors: 2}, summary)
}

func TestRun_SkipsWhenLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(staticSource{network: "admitad", records: []partner.Record{scenarioRecord()}})

	h, ok, err := f.locker.Acquire(ctx, SyncLockName, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.reconciler.Run(ctx, testNow)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Nil(t, f.repo.get("admitad", "TX1"))

	f.locker.Release(ctx, h)

	summary, err := f.reconciler.Run(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]Status{
		"pending":   StatusPending,
		"approved":  StatusConfirmed,
		"Confirmed": StatusConfirmed,
		" rejected": StatusRejected,
		"declined":  StatusRejected,
		"hold":      StatusPending,
		"":          StatusPending,
	}

	for native, want := range tests {
		assert.Equal(t, want, NormalizeStatus(native), "native %q", native)
	}
}

func TestListen_RunsOnRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := memory.New()
	f := newFixture(staticSource{network: "admitad", records: []partner.Record{scenarioRecord()}})

	done := make(chan error, 1)
	go func() { done <- f.reconciler.Listen(ctx, s) }()

	require.Eventually(t, func() bool {
		// keep publishing until the subscriber is attached
		_ = RequestSync(ctx, s, SyncRequest{RequestedBy: "test", RequestedAt: testNow})
		return f.repo.get("admitad", "TX1") != nil
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, s.Publish(ctx, SyncChannel, "not json"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Len(t, f.emitter.events, 1)
}
