// Package indexer drains the search-vector outbox in the background.
package indexer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/store"
)

// Worker claims vector tasks, refreshes them, and reschedules failures with
// exponential backoff. Several workers may share one database; leases keep
// them from refreshing the same task concurrently.
type Worker struct {
	db        *store.DB
	logger    *slog.Logger
	owner     string
	poll      time.Duration
	batch     int
	lease     time.Duration
	retryBase time.Duration
	retryMax  time.Duration
	wake      chan struct{}
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithPollInterval sets how often the worker looks for due tasks unprompted.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.poll = d }
}

// WithBatchSize sets how many tasks one claim leases.
func WithBatchSize(n int) Option {
	return func(w *Worker) { w.batch = n }
}

// WithLease sets how long a claimed task stays reserved.
func WithLease(d time.Duration) Option {
	return func(w *Worker) { w.lease = d }
}

// WithRetry sets the first retry delay and the ceiling it doubles up to.
func WithRetry(base, ceiling time.Duration) Option {
	return func(w *Worker) {
		w.retryBase = base
		w.retryMax = ceiling
	}
}

// NewWorker creates a worker with a unique lease owner id.
func NewWorker(db *store.DB, opts ...Option) *Worker {
	w := &Worker{
		db:        db,
		logger:    slog.Default(),
		owner:     uuid.NewString(),
		poll:      2 * time.Second,
		batch:     50,
		lease:     30 * time.Second,
		retryBase: time.Second,
		retryMax:  5 * time.Minute,
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(slog.String("component", "indexer"), slog.String("worker", w.owner))
	return w
}

// Notify wakes the worker early. It never blocks.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	w.logger.Info("vector worker started", slog.Duration("poll", w.poll))
	for {
		if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("vector drain failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("vector worker stopped")
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// Drain refreshes due tasks batch by batch until none are left and returns
// how many were refreshed. Failed tasks are rescheduled, not counted.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	done := 0
	for ctx.Err() == nil {
		tasks, err := w.db.ClaimVectorTasks(ctx, w.owner, w.batch, w.lease)
		if err != nil {
			return done, err
		}
		if len(tasks) == 0 {
			return done, nil
		}
		failed := 0
		for _, task := range tasks {
			if err := w.db.RefreshVector(ctx, task); err != nil {
				failed++
				w.retry(ctx, task, err)
				continue
			}
			done++
		}
		if failed == len(tasks) {
			// Everything in the batch was rescheduled; wait for the next tick.
			return done, nil
		}
	}
	return done, ctx.Err()
}

func (w *Worker) retry(ctx context.Context, task store.VectorTask, cause error) {
	delay := Backoff(w.retryBase, w.retryMax, task.Attempts)
	w.logger.Warn("vector refresh failed",
		slog.Int64("contact_id", task.ContactID),
		slog.Int("attempts", task.Attempts+1),
		slog.Duration("retry_in", delay),
		slog.Bool("index_maintenance", errors.Is(cause, apperr.ErrIndexMaintenance)),
		slog.String("error", cause.Error()),
	)
	if err := w.db.RetryVectorTask(ctx, task.ID, delay, cause); err != nil {
		// The lease will lapse and the task becomes claimable again.
		w.logger.Error("reschedule vector task", slog.Int64("task_id", task.ID), slog.String("error", err.Error()))
	}
}

// Backoff returns base doubled once per previous attempt, capped at ceiling.
func Backoff(base, ceiling time.Duration, attempts int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= ceiling || d <= 0 {
			return ceiling
		}
	}
	return min(d, ceiling)
}
