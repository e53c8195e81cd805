package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Batch calls fn for every item with at most workers calls in flight and
// returns the errors of the failed calls. Items not started before ctx is
// cancelled are reported as one context error.
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	sem := make(chan struct{}, workers)
submit:
	for i, item := range items {
		notStarted := func() {
			record(fmt.Errorf("%s: %d of %d tasks not started: %w", taskName, len(items)-i, len(items), ctx.Err()))
		}
		if ctx.Err() != nil {
			notStarted()
			break
		}
		select {
		case <-ctx.Done():
			notStarted()
			break submit
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := run(ctx, taskName, timeout, func(ctx context.Context) error {
				return fn(ctx, item)
			}); err != nil {
				record(err)
			}
		}(item)
	}

	wg.Wait()
	return errs
}

// run calls fn with a timeout, turning a panic into an error
func run(parent context.Context, taskName string, timeout time.Duration, fn func(context.Context) error) (err error) {
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"task":  taskName,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Recovered from panic in task")
			err = fmt.Errorf("%s: panic: %v", taskName, r)
		}
	}()

	return fn(ctx)
}
