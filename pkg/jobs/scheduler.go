package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SchedulerConfig configures a Scheduler
type SchedulerConfig struct {
	// ProducerSchedule is the cron spec of producer ticks
	ProducerSchedule string
	// PurgeSchedule is the cron spec of the authentication request purge
	PurgeSchedule string
	// RequestTTL is how long authentication requests are kept
	RequestTTL time.Duration
	// Backoff pauses the producer after a failed tick
	Backoff BackoffConfig
}

// DefaultSchedulerConfig returns the default schedules
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ProducerSchedule: "@every 3s",
		PurgeSchedule:    "@hourly",
		RequestTTL:       24 * time.Hour,
		Backoff: BackoffConfig{
			Base:  3 * time.Minute,
			Max:   30 * time.Minute,
			Alarm: 30 * time.Minute,
		},
	}
}

// ProducerTicker is the periodic producer
type ProducerTicker interface {
	Tick(ctx context.Context) error
}

// RequestPurger deletes stale authentication requests
type RequestPurger interface {
	PurgeStale(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Scheduler runs the producer and housekeeping on cron schedules
type Scheduler struct {
	cron     *cron.Cron
	producer ProducerTicker
	purger   RequestPurger
	ttl      time.Duration
	logger   logrus.FieldLogger
	now      func() time.Time

	mu          sync.Mutex
	ctx         context.Context
	backoff     *Backoff
	pausedUntil time.Time
}

// NewScheduler creates a Scheduler. purger may be nil.
func NewScheduler(producer ProducerTicker, purger RequestPurger, config SchedulerConfig, logger logrus.FieldLogger) (*Scheduler, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	defaults := DefaultSchedulerConfig()
	if config.ProducerSchedule == "" {
		config.ProducerSchedule = defaults.ProducerSchedule
	}
	if config.PurgeSchedule == "" {
		config.PurgeSchedule = defaults.PurgeSchedule
	}
	if config.RequestTTL <= 0 {
		config.RequestTTL = defaults.RequestTTL
	}
	if config.Backoff.Base <= 0 {
		config.Backoff = defaults.Backoff
	}

	logger = logger.WithField("component", "scheduler")
	s := &Scheduler{
		producer: producer,
		purger:   purger,
		ttl:      config.RequestTTL,
		logger:   logger,
		now:      time.Now,
		ctx:      context.Background(),
		backoff:  NewBackoff(config.Backoff),
	}

	s.cron = cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(logger)),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	if _, err := s.cron.AddFunc(config.ProducerSchedule, s.runProducer); err != nil {
		return nil, fmt.Errorf("failed to schedule producer: %w", err)
	}
	if purger != nil {
		if _, err := s.cron.AddFunc(config.PurgeSchedule, s.runPurge); err != nil {
			return nil, fmt.Errorf("failed to schedule request purge: %w", err)
		}
	}
	return s, nil
}

// Start runs the scheduled jobs with ctx until Stop
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop stops scheduling and waits for running jobs or ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// runProducer ticks the producer unless it is backing off
func (s *Scheduler) runProducer() {
	s.mu.Lock()
	paused := s.now().Before(s.pausedUntil)
	ctx := s.ctx
	s.mu.Unlock()
	if paused {
		return
	}

	err := s.producer.Tick(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.backoff.Reset()
		s.pausedUntil = time.Time{}
		return
	}

	delay := s.backoff.Next()
	s.pausedUntil = s.now().Add(delay)
	entry := s.logger.WithError(err).WithField("backoff", delay.String())
	if s.backoff.Alarming(delay) {
		entry.Error("Producer still failing, pausing")
	} else {
		entry.Warn("Producer tick failed, pausing")
	}
}

func (s *Scheduler) runPurge() {
	if _, err := s.purger.PurgeStale(s.context(), s.ttl); err != nil {
		s.logger.WithError(err).Warn("Failed to purge authentication requests")
	}
}
