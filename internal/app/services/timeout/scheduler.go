package timeout

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/taskforge/platform/pkg/logger"
)

// DefaultSchedule runs the sweep every five minutes.
const DefaultSchedule = "*/5 * * * *"

// Scheduler runs the sweep on a cron schedule as a lifecycle-managed service.
type Scheduler struct {
	scanner  *Scanner
	schedule string
	log      *logger.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewScheduler wraps a scanner. An empty schedule falls back to
// DefaultSchedule.
func NewScheduler(scanner *Scanner, schedule string, log *logger.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if log == nil {
		log = logger.NewDefault("timeout-scheduler")
	}
	return &Scheduler{scanner: scanner, schedule: schedule, log: log}
}

// Name implements system.Service.
func (s *Scheduler) Name() string { return "timeout-sweep" }

// Start begins the schedule. The first sweep runs at the first tick, not
// immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if _, err := s.scanner.Sweep(runCtx); err != nil {
			s.log.WithError(err).Error("scheduled sweep failed")
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("parse schedule %q: %w", s.schedule, err)
	}

	s.cron = c
	s.cancel = cancel
	c.Start()
	s.log.WithField("schedule", s.schedule).Info("deadline sweep scheduled")
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	s.cancel()
	s.cron = nil
	s.cancel = nil

	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
