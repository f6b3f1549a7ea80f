package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bdobrica/Anima/common/trace"
	"github.com/bdobrica/Anima/internal/anima/sleep"
)

// Sleeper runs one consolidation cycle.
type Sleeper interface {
	RunSleepCycle(ctx context.Context) (sleep.Result, error)
}

// Scheduler runs sleep cycles on a fixed interval while the server is up.
type Scheduler struct {
	sleeper  Sleeper
	interval time.Duration
	logger   *slog.Logger

	stopMu sync.Mutex
	stopCh chan struct{}
}

// NewScheduler returns a scheduler ticking every interval. A non-positive
// interval defaults to one hour.
func NewScheduler(s Sleeper, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sleeper:  s,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled or Stop is called. Call it in a
// goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sleep scheduler: started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	ctx = trace.Ensure(ctx)
	logger := s.logger.With("trace_id", trace.FromContext(ctx))

	res, err := s.sleeper.RunSleepCycle(ctx)
	switch {
	case errors.Is(err, sleep.ErrRunning):
		logger.Debug("sleep scheduler: cycle already running, skipping tick")
	case err != nil:
		logger.Warn("sleep scheduler: cycle failed", "err", err)
	case res.Status == sleep.StatusNoop:
		logger.Debug("sleep scheduler: nothing to consolidate")
	default:
		logger.Info("sleep scheduler: cycle complete",
			"cycle_id", res.CycleID,
			"episodes", res.EpisodesProcessed,
			"insights", res.InsightsGenerated,
			"traits", res.TraitsUpdated,
		)
	}
}
