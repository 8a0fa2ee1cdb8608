package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
	"github.com/jwalitptl/physiocapture-api/pkg/logger"
)

// RetentionTask deletes rows older than Retention.
type RetentionTask struct {
	Name      string
	Retention time.Duration
	Purge     func(ctx context.Context, before time.Time) (int64, error)
}

// RetentionWorker runs its tasks every interval.
type RetentionWorker struct {
	tasks    []RetentionTask
	interval time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

func NewRetentionWorker(interval time.Duration, l *logger.Logger, tasks ...RetentionTask) *RetentionWorker {
	return &RetentionWorker{
		tasks:    tasks,
		interval: interval,
		logger:   l.WithComponent("retention"),
		now:      time.Now,
	}
}

func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error(err, "Retention run failed")
			}
		}
	}
}

// RunOnce runs every task even when an earlier one fails.
func (w *RetentionWorker) RunOnce(ctx context.Context) error {
	var errs []error
	for _, task := range w.tasks {
		if task.Retention <= 0 {
			continue
		}
		cutoff := w.now().Add(-task.Retention)
		rows, err := task.Purge(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to clean up %s: %w", task.Name, err))
			continue
		}
		w.logger.Info("Cleaned up old rows", "task", task.Name, "rows", rows, "cutoff", cutoff)
	}
	return errors.Join(errs...)
}

func isNotFound(err error) bool {
	return apperrors.Is(err, apperrors.ErrNotFound)
}
