package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/starford/dossier/internal/store"
)

// Sweeper periodically re-enqueues contacts whose vector was never computed
// and that have no pending task, then wakes the worker.
type Sweeper struct {
	db      *store.DB
	logger  *slog.Logger
	cron    *cron.Cron
	timeout time.Duration
	after   func()
}

// NewSweeper schedules a sweep on spec, a cron expression or descriptor such
// as "@every 5m". after, if non-nil, runs when a sweep enqueued anything.
func NewSweeper(db *store.DB, spec string, logger *slog.Logger, after func()) (*Sweeper, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Sweeper{
		db:      db,
		logger:  logger.With(slog.String("component", "sweeper")),
		cron:    cron.New(cron.WithParser(parser)),
		timeout: time.Minute,
		after:   after,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep enqueues stale contacts once and returns how many were enqueued.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.db.EnqueueStale(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("enqueued stale vectors", slog.Int("count", n))
		if s.after != nil {
			s.after()
		}
	}
	return n, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Warn("sweep failed", slog.String("error", err.Error()))
	}
}
