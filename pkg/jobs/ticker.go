package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/rollcall/pkg/queue"
)

// Outcome is the result of a single tick
type Outcome int

const (
	// Success means one request was handled
	Success Outcome = iota
	// NoRequestToHandle means both tiers were empty
	NoRequestToHandle
	// TemporaryUnavailable means a collaborator failed and the driver should back off
	TemporaryUnavailable
)

// String returns the metric label of an outcome
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case NoRequestToHandle:
		return "idle"
	case TemporaryUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Ticker handles at most one request per call
type Ticker interface {
	Tick(ctx context.Context) (Outcome, error)
}

// Source is the read side of a queue
type Source interface {
	Kind() queue.Kind
	Wake() <-chan struct{}
	PopOldest(ctx context.Context, lowPriority bool) (*queue.Request, error)
	WaitSettled(ctx context.Context, req *queue.Request) error
}

var errNoRequest = errors.New("no request to handle")

// popNext takes the oldest high priority request, falling back to the low
// priority tier, and waits for it to settle
func popNext(ctx context.Context, src Source) (*queue.Request, error) {
	for _, low := range []bool{false, true} {
		req, err := src.PopOldest(ctx, low)
		if err != nil {
			return nil, err
		}
		if req == nil {
			continue
		}
		if err := src.WaitSettled(ctx, req); err != nil {
			return nil, fmt.Errorf("failed waiting for %s request to settle: %w", src.Kind(), err)
		}
		return req, nil
	}
	return nil, errNoRequest
}
