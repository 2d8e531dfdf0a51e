package system

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives the fixed-rate game loop. One goroutine runs the tick;
// when a tick overruns its budget the next one fires immediately, and the
// counter always advances by exactly one per run, so tick-denominated timers
// (cast times, cooldowns, duel countdowns) never see a skipped tick.
type Scheduler struct {
	interval time.Duration
	runner   *Runner
	log      *zap.Logger

	tick     atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

func NewScheduler(interval time.Duration, runner *Runner, log *zap.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		runner:   runner,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// CurrentTick returns the number of the most recently started tick. Safe to
// read from any goroutine.
func (s *Scheduler) CurrentTick() int64 { return s.tick.Load() }

// Run blocks, executing ticks until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case <-timer.C:
		}

		start := time.Now()
		tick := s.tick.Add(1)
		s.runner.Tick(tick)

		elapsed := time.Since(start)
		next := s.interval - elapsed
		if next < 0 {
			s.log.Warn("tick overran budget",
				zap.Int64("tick", tick),
				zap.Duration("elapsed", elapsed),
				zap.Duration("budget", s.interval))
			next = 0
		}
		timer.Reset(next)
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
