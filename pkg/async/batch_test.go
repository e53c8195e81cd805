package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	executed := atomic.Int32{}

	errs := Batch(context.Background(), items, 2, "test batch", time.Second, func(ctx context.Context, item int) error {
		executed.Add(1)
		return nil
	})

	assert.Empty(t, errs)
	assert.Equal(t, int32(5), executed.Load())
}

func TestBatch_WithErrors(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	errs := Batch(context.Background(), items, 2, "test batch", time.Second, func(ctx context.Context, item int) error {
		if item%2 == 0 {
			return errors.New("even number error")
		}
		return nil
	})

	assert.Len(t, errs, 2)
}

func TestBatch_KeepsEveryError(t *testing.T) {
	items := make([]int, 500)

	errs := Batch(context.Background(), items, 3, "test batch", time.Second, func(ctx context.Context, item int) error {
		return errors.New("failed")
	})

	assert.Len(t, errs, 500)
}

func TestBatch_BoundsConcurrency(t *testing.T) {
	items := make([]int, 20)
	var inFlight, peak atomic.Int32

	Batch(context.Background(), items, 3, "test batch", time.Second, func(ctx context.Context, item int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestBatch_Timeout(t *testing.T) {
	errs := Batch(context.Background(), []int{1}, 1, "test batch", 50*time.Millisecond, func(ctx context.Context, item int) error {
		select {
		case <-time.After(2 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
}

func TestBatch_PanicRecovery(t *testing.T) {
	errs := Batch(context.Background(), []int{1, 2}, 2, "test batch", time.Second, func(ctx context.Context, item int) error {
		if item == 2 {
			panic("boom")
		}
		return nil
	})

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "panic: boom")
}

func TestBatch_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	executed := atomic.Int32{}

	errs := Batch(ctx, []int{1, 2, 3, 4, 5}, 2, "test batch", time.Second, func(ctx context.Context, item int) error {
		executed.Add(1)
		return nil
	})

	assert.Equal(t, int32(0), executed.Load())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}
