package jobs

import "time"

const (
	// DefaultBackoffBase is the first delay after a failure
	DefaultBackoffBase = 3 * time.Second
	// DefaultBackoffMax caps the delay
	DefaultBackoffMax = time.Hour
	// DefaultBackoffAlarm is the delay from which failures are logged as errors
	DefaultBackoffAlarm = 30 * time.Minute
)

// BackoffConfig configures a Backoff
type BackoffConfig struct {
	Base  time.Duration
	Max   time.Duration
	Alarm time.Duration
}

// DefaultBackoffConfig returns the worker backoff settings
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:  DefaultBackoffBase,
		Max:   DefaultBackoffMax,
		Alarm: DefaultBackoffAlarm,
	}
}

// Backoff is an exponential delay that doubles on each consecutive failure
// and resets on success. It is not safe for concurrent use.
type Backoff struct {
	config   BackoffConfig
	failures int
}

// NewBackoff creates a Backoff, filling unset fields with defaults
func NewBackoff(config BackoffConfig) *Backoff {
	if config.Base <= 0 {
		config.Base = DefaultBackoffBase
	}
	if config.Max < config.Base {
		config.Max = DefaultBackoffMax
		if config.Max < config.Base {
			config.Max = config.Base
		}
	}
	if config.Alarm <= 0 {
		config.Alarm = config.Max
	}
	return &Backoff{config: config}
}

// Next records a failure and returns how long to wait
func (b *Backoff) Next() time.Duration {
	delay := b.config.Base
	for i := 0; i < b.failures && delay < b.config.Max; i++ {
		delay *= 2
	}
	if delay > b.config.Max {
		delay = b.config.Max
	}
	b.failures++
	return delay
}

// Reset forgets previous failures
func (b *Backoff) Reset() {
	b.failures = 0
}

// Failures is the number of consecutive failures
func (b *Backoff) Failures() int {
	return b.failures
}

// Alarming reports whether delay is long enough to be worth an error log
func (b *Backoff) Alarming(delay time.Duration) bool {
	return delay >= b.config.Alarm
}
