package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweepScheduler periodically purges expired counters from stores that do not
// expire keys on their own (PostgreSQL, memory). Redis needs no sweeping.
type SweepScheduler struct {
	sweeper  Sweeper
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
	mu       sync.Mutex
	running  bool
}

// NewSweepScheduler creates a scheduler running sweeper on schedule, a
// standard cron expression or descriptor such as "@every 5m".
func NewSweepScheduler(sweeper Sweeper, schedule string, logger *zap.Logger) *SweepScheduler {
	return &SweepScheduler{
		sweeper:  sweeper,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start schedules the sweep. An empty schedule disables it.
func (s *SweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping")

		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("sweep scheduler started", zap.String("schedule", s.schedule))

	return nil
}

// RunOnce performs a single sweep and returns the number of counters removed.
func (s *SweepScheduler) RunOnce(ctx context.Context) int64 {
	deleted, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("sweep failed", zap.Error(err))

		return 0
	}

	s.logger.Debug("sweep completed", zap.Int64("deleted", deleted))

	return deleted
}

// Shutdown stops the scheduler and waits for a running sweep to finish.
func (s *SweepScheduler) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("sweep scheduler stopped")
	}

	return nil
}

// Running reports whether the scheduler has been started.
func (s *SweepScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}
