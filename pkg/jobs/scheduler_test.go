package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProducer struct {
	ticks int
	err   error
}

func (c *countingProducer) Tick(ctx context.Context) error {
	c.ticks++
	return c.err
}

type fakePurger struct {
	maxAge time.Duration
	calls  int
}

func (f *fakePurger) PurgeStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	f.calls++
	f.maxAge = maxAge
	return 0, nil
}

func TestScheduler_BacksOffAfterFailure(t *testing.T) {
	producer := &countingProducer{err: errors.New("db down")}
	s, err := NewScheduler(producer, nil, DefaultSchedulerConfig(), nil)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.runProducer()
	assert.Equal(t, 1, producer.ticks)

	now = now.Add(2 * time.Minute)
	s.runProducer()
	assert.Equal(t, 1, producer.ticks, "paused for the first backoff")

	now = now.Add(time.Minute)
	s.runProducer()
	assert.Equal(t, 2, producer.ticks)

	now = now.Add(5 * time.Minute)
	s.runProducer()
	assert.Equal(t, 2, producer.ticks, "second backoff doubles to six minutes")

	producer.err = nil
	now = now.Add(time.Minute)
	s.runProducer()
	assert.Equal(t, 3, producer.ticks)

	s.runProducer()
	assert.Equal(t, 4, producer.ticks, "success clears the pause")
}

func TestScheduler_Purge(t *testing.T) {
	purger := &fakePurger{}
	s, err := NewScheduler(&countingProducer{}, purger, SchedulerConfig{RequestTTL: time.Hour}, nil)
	require.NoError(t, err)

	s.runPurge()
	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, time.Hour, purger.maxAge)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	_, err := NewScheduler(&countingProducer{}, nil, SchedulerConfig{ProducerSchedule: "not a schedule"}, nil)
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	producer := &countingProducer{}
	s, err := NewScheduler(producer, &fakePurger{}, SchedulerConfig{ProducerSchedule: "@every 1s"}, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
