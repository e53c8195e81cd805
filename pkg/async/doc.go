// Package async provides bounded fan-out with panic recovery.
//
// Batch runs a function over a slice of items with a fixed number of
// concurrent workers. Every call gets its own timeout, a panic in one call
// is recovered and reported as that call's error, and all errors are
// returned to the caller instead of being logged and dropped.
//
//	errs := async.Batch(ctx, changes, 4, "role changes", 10*time.Second,
//		func(ctx context.Context, change Change) error {
//			return apply(ctx, change)
//		})
package async
