package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/physiocapture-api/pkg/logger"
)

func TestRetentionWorkerRunOnce(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	var auditCutoff time.Time
	outboxCalls := 0

	w := NewRetentionWorker(time.Hour, logger.Nop(),
		RetentionTask{
			Name:      "audit_logs",
			Retention: 24 * time.Hour,
			Purge: func(_ context.Context, before time.Time) (int64, error) {
				auditCutoff = before
				return 3, nil
			},
		},
		RetentionTask{
			Name:      "outbox_events",
			Retention: 0,
			Purge: func(context.Context, time.Time) (int64, error) {
				outboxCalls++
				return 0, nil
			},
		},
	)
	w.now = func() time.Time { return now }

	require.NoError(t, w.RunOnce(context.Background()))
	assert.Equal(t, now.Add(-24*time.Hour), auditCutoff)
	assert.Zero(t, outboxCalls, "a task without retention is disabled")
}

func TestRetentionWorkerKeepsGoingAfterFailure(t *testing.T) {
	ran := false
	w := NewRetentionWorker(time.Hour, logger.Nop(),
		RetentionTask{
			Name:      "audit_logs",
			Retention: time.Hour,
			Purge: func(context.Context, time.Time) (int64, error) {
				return 0, errors.New("db down")
			},
		},
		RetentionTask{
			Name:      "outbox_events",
			Retention: time.Hour,
			Purge: func(context.Context, time.Time) (int64, error) {
				ran = true
				return 1, nil
			},
		},
	)

	err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit_logs")
	assert.True(t, ran)
}
