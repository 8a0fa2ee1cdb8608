package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/pkg/logger"
	"github.com/jwalitptl/physiocapture-api/pkg/metrics"
)

type statusUpdate struct {
	status  model.OutboxStatus
	errMsg  *string
	retryAt *time.Time
}

type fakeOutboxRepo struct {
	mu      sync.Mutex
	events  []*model.OutboxEvent
	updates map[uuid.UUID]statusUpdate
}

func (r *fakeOutboxRepo) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return fn(nil)
}

func (r *fakeOutboxRepo) Create(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *fakeOutboxRepo) GetPendingEventsWithLock(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.OutboxEvent, error) {
	if len(r.events) > limit {
		return r.events[:limit], nil
	}
	return r.events, nil
}

func (r *fakeOutboxRepo) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OutboxStatus, errMsg *string, retryAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updates == nil {
		r.updates = map[uuid.UUID]statusUpdate{}
	}
	r.updates[id] = statusUpdate{status: status, errMsg: errMsg, retryAt: retryAt}
	return nil
}

func (r *fakeOutboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeBroker struct {
	fail      map[string]bool
	published []string
}

func (b *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	if b.fail[channel] {
		return errors.New("redis unavailable")
	}
	b.published = append(b.published, channel)
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBroker) Close() error { return nil }

func newEvent(t *testing.T, eventType string, retries int) *model.OutboxEvent {
	t.Helper()
	evt, err := model.NewOutboxEvent(eventType, map[string]string{"k": "v"})
	require.NoError(t, err)
	evt.RetryCount = retries
	return evt
}

func newProcessor(t *testing.T, repo *fakeOutboxRepo, broker *fakeBroker) (*OutboxProcessor, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewWithRegistry(prometheus.NewRegistry(), "physio", "test")
	p, err := NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		MaxRetries:    3,
	}, logger.Nop(), m)
	require.NoError(t, err)
	return p, m
}

func TestOutboxProcessor_PublishesAndMarksProcessed(t *testing.T) {
	transferred := newEvent(t, model.EventPatientTransferred, 0)
	created := newEvent(t, model.EventTransferRequestCreated, 0)
	repo := &fakeOutboxRepo{events: []*model.OutboxEvent{transferred, created}}
	broker := &fakeBroker{}
	p, m := newProcessor(t, repo, broker)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{model.EventPatientTransferred, model.EventTransferRequestCreated}, broker.published)
	assert.Equal(t, model.OutboxStatusProcessed, repo.updates[transferred.ID].status)
	assert.Equal(t, model.OutboxStatusProcessed, repo.updates[created.ID].status)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxEventsProcessed))
}

func TestOutboxProcessor_ReschedulesThenFails(t *testing.T) {
	fresh := newEvent(t, model.EventTransferRequestApproved, 0)
	exhausted := newEvent(t, model.EventTransferRequestApproved, 2)
	repo := &fakeOutboxRepo{events: []*model.OutboxEvent{fresh, exhausted}}
	broker := &fakeBroker{fail: map[string]bool{model.EventTransferRequestApproved: true}}
	p, m := newProcessor(t, repo, broker)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	retried := repo.updates[fresh.ID]
	assert.Equal(t, model.OutboxStatusRetry, retried.status)
	require.NotNil(t, retried.retryAt)
	assert.Equal(t, now.Add(time.Second), *retried.retryAt)
	require.NotNil(t, retried.errMsg)
	assert.Contains(t, *retried.errMsg, "redis unavailable")

	assert.Equal(t, model.OutboxStatusFailed, repo.updates[exhausted.ID].status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxEventsFailed))
}

func TestOutboxProcessor_PayloadIsForwardedVerbatim(t *testing.T) {
	evt := newEvent(t, model.EventPatientTransferred, 0)
	var forwarded interface{}
	repo := &fakeOutboxRepo{events: []*model.OutboxEvent{evt}}
	p, _ := newProcessor(t, repo, &fakeBroker{})
	p.broker = brokerFunc(func(channel string, message interface{}) error {
		forwarded = message
		return nil
	})

	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	raw, ok := forwarded.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"k":"v"}`, string(raw))
}

func TestNewOutboxProcessor_RejectsInvalidConfig(t *testing.T) {
	_, err := NewOutboxProcessor(&fakeOutboxRepo{}, &fakeBroker{}, OutboxProcessorConfig{}, logger.Nop(), nil)
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, backoff(time.Second, 0))
	assert.Equal(t, 4*time.Second, backoff(time.Second, 2))
	assert.Equal(t, 64*time.Second, backoff(time.Second, 10))
}

type brokerFunc func(channel string, message interface{}) error

func (f brokerFunc) Publish(ctx context.Context, channel string, message interface{}) error {
	return f(channel, message)
}

func (f brokerFunc) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (f brokerFunc) Close() error { return nil }
