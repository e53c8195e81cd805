package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rollcall/pkg/observability"
)

type step struct {
	outcome Outcome
	err     error
}

type scriptedTicker struct {
	steps  []step
	cancel context.CancelFunc
	ticks  int
}

func (s *scriptedTicker) Tick(ctx context.Context) (Outcome, error) {
	if s.ticks >= len(s.steps) {
		s.cancel()
		return NoRequestToHandle, nil
	}
	st := s.steps[s.ticks]
	s.ticks++
	return st.outcome, st.err
}

type recordingAfter struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingAfter) after(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func runScript(t *testing.T, steps []step, lease Lease) ([]time.Duration, *test.Hook, *observability.Metrics) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, hook := test.NewNullLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	ticker := &scriptedTicker{steps: steps, cancel: cancel}
	rec := &recordingAfter{}

	d := NewDriver(DriverConfig{
		Name:    "role_sync",
		Ticker:  ticker,
		Backoff: DefaultBackoffConfig(),
		Lease:   lease,
		Logger:  logger,
		Metrics: metrics,
	})
	d.after = rec.after

	require.NoError(t, d.Run(ctx))
	return rec.delays, hook, metrics
}

func TestDriver_Delays(t *testing.T) {
	transient := errors.New("platform down")
	delays, _, _ := runScript(t, []step{
		{Success, nil},
		{NoRequestToHandle, nil},
		{TemporaryUnavailable, transient},
		{TemporaryUnavailable, transient},
		{TemporaryUnavailable, transient},
		{Success, nil},
		{TemporaryUnavailable, transient},
	}, nil)

	assert.Equal(t, []time.Duration{
		SuccessDelay,
		IdleTimeout,
		3 * time.Second,
		6 * time.Second,
		12 * time.Second,
		SuccessDelay,
		3 * time.Second,
		IdleTimeout,
	}, delays)
}

func TestDriver_LogsLoudlyWhenBackoffIsLong(t *testing.T) {
	steps := make([]step, 12)
	for i := range steps {
		steps[i] = step{TemporaryUnavailable, errors.New("down")}
	}
	delays, hook, metrics := runScript(t, steps, nil)

	require.Len(t, delays, 13)
	assert.Equal(t, 1536*time.Second, delays[9])
	assert.Equal(t, 3072*time.Second, delays[10])
	assert.Equal(t, time.Hour, delays[11])

	var levels []logrus.Level
	for _, entry := range hook.AllEntries() {
		if entry.Data["backoff"] != nil {
			levels = append(levels, entry.Level)
		}
	}
	require.Len(t, levels, 12)
	assert.Equal(t, logrus.WarnLevel, levels[9])
	assert.Equal(t, logrus.ErrorLevel, levels[10])
	assert.Equal(t, logrus.ErrorLevel, levels[11])
	assert.Equal(t, float64(12), testutil.ToFloat64(
		metrics.JobsProcessedTotal.WithLabelValues("role_sync", "unavailable")))
}

func TestDriver_WakeCutsIdleWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wake := make(chan struct{}, 1)
	ticker := &scriptedTicker{steps: []step{{NoRequestToHandle, nil}, {NoRequestToHandle, nil}}, cancel: cancel}
	d := NewDriver(DriverConfig{Name: "role_sync", Ticker: ticker, Wake: wake})
	d.after = func(time.Duration) <-chan time.Time {
		wake <- struct{}{}
		return make(chan time.Time)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not stop")
	}
	assert.Equal(t, 2, ticker.ticks)
}

type fakeLease struct {
	held     []bool
	calls    int
	released bool
}

func (l *fakeLease) Hold(ctx context.Context) (bool, error) {
	held := l.held[l.calls%len(l.held)]
	l.calls++
	return held, nil
}

func (l *fakeLease) Release(ctx context.Context) error {
	l.released = true
	return nil
}

func TestDriver_WaitsForLease(t *testing.T) {
	lease := &fakeLease{held: []bool{false, true}}
	delays, _, _ := runScript(t, []step{{Success, nil}}, lease)

	assert.Equal(t, []time.Duration{IdleTimeout, SuccessDelay, IdleTimeout, IdleTimeout}, delays)
	assert.True(t, lease.released)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "idle", NoRequestToHandle.String())
	assert.Equal(t, "unavailable", TemporaryUnavailable.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
