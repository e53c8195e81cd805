package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/rollcall/pkg/observability"
)

var jobsTracer = otel.Tracer("rollcall/jobs")

const (
	// SuccessDelay is the pause after a handled request
	SuccessDelay = 100 * time.Millisecond
	// IdleTimeout is the longest wait for a wake signal when the queue is empty
	IdleTimeout = 3 * time.Second
)

// Lease guards a queue so only one driver drains it
type Lease interface {
	// Hold acquires or renews the lease and reports whether it is held
	Hold(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// DriverConfig configures a Driver
type DriverConfig struct {
	// Name labels logs, metrics and spans, usually the queue kind
	Name    string
	Ticker  Ticker
	Wake    <-chan struct{}
	Backoff BackoffConfig
	// Lease is optional; without it the driver assumes it is the only one
	Lease   Lease
	Logger  logrus.FieldLogger
	Metrics *observability.Metrics
}

// Driver runs a Ticker until its context is cancelled
type Driver struct {
	name    string
	ticker  Ticker
	wake    <-chan struct{}
	backoff *Backoff
	lease   Lease
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	now     func() time.Time
	after   func(time.Duration) <-chan time.Time
}

// NewDriver creates a Driver
func NewDriver(cfg DriverConfig) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Driver{
		name:    cfg.Name,
		ticker:  cfg.Ticker,
		wake:    cfg.Wake,
		backoff: NewBackoff(cfg.Backoff),
		lease:   cfg.Lease,
		logger:  logger.WithField("kind", cfg.Name),
		metrics: cfg.Metrics,
		now:     time.Now,
		after:   time.After,
	}
}

// Run loops until ctx is cancelled. A tick in progress is finished first.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("Driver started")
	defer d.stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		delay, wakeable := d.step(ctx)
		if !d.wait(ctx, delay, wakeable) {
			return nil
		}
	}
}

func (d *Driver) stop() {
	if d.lease != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.lease.Release(ctx); err != nil {
			d.logger.WithError(err).Warn("Failed to release lease")
		}
	}
	d.logger.Info("Driver stopped")
}

// step runs one tick and returns how long to wait before the next one and
// whether a wake signal may cut the wait short
func (d *Driver) step(ctx context.Context) (time.Duration, bool) {
	if d.lease != nil {
		held, err := d.lease.Hold(ctx)
		if err != nil {
			d.logger.WithError(err).Warn("Failed to hold lease")
			return IdleTimeout, false
		}
		if !held {
			return IdleTimeout, false
		}
	}

	ctx, span := jobsTracer.Start(ctx, "jobs.Tick")
	span.SetAttributes(attribute.String("kind", d.name))
	defer span.End()

	start := d.now()
	outcome, err := d.ticker.Tick(ctx)
	d.metrics.RecordTick(d.name, outcome.String(), d.now().Sub(start))
	span.SetAttributes(attribute.String("outcome", outcome.String()))

	switch outcome {
	case Success:
		if d.backoff.Failures() > 0 {
			d.logger.WithField("failures", d.backoff.Failures()).Info("Recovered after failures")
		}
		d.backoff.Reset()
		d.metrics.SetBackoff(d.name, 0)
		return SuccessDelay, false

	case NoRequestToHandle:
		return IdleTimeout, true

	default:
		if ctx.Err() != nil {
			return 0, false
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		delay := d.backoff.Next()
		d.metrics.SetBackoff(d.name, delay)
		entry := d.logger.WithError(err).WithFields(logrus.Fields{
			"failures": d.backoff.Failures(),
			"backoff":  delay.String(),
		})
		if d.backoff.Alarming(delay) {
			entry.Error("Sync still failing, backing off")
		} else {
			entry.Warn("Sync temporarily unavailable, backing off")
		}
		return delay, false
	}
}

func (d *Driver) wait(ctx context.Context, delay time.Duration, wakeable bool) bool {
	var wake <-chan struct{}
	if wakeable {
		wake = d.wake
	}
	select {
	case <-ctx.Done():
		return false
	case <-d.after(delay):
		return true
	case <-wake:
		return true
	}
}
