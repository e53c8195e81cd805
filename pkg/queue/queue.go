package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/rollcall/pkg/observability"
)

const (
	// SettleDelay is how long a request must sit in the queue before it is handled
	SettleDelay = 400 * time.Millisecond
	// SettlePollInterval is the step used while waiting for a request to settle
	SettlePollInterval = 100 * time.Millisecond
	// WakeCapacity bounds the number of buffered wake signals
	WakeCapacity = 24

	maxPopAttempts = 3
)

// Kind names a sync request queue
type Kind string

const (
	// RoleSync requests reconcile a subject's roles
	RoleSync Kind = "role_sync"
	// UserInfoSync requests refresh a subject's profile from the identity provider
	UserInfoSync Kind = "user_info_sync"
)

// Table is the table backing the queue
func (k Kind) Table() string {
	return string(k) + "_requests"
}

// Request is a pending sync request
type Request struct {
	SubjectID   string
	QueuedAt    time.Time
	LowPriority bool
}

// Enqueuer is the write side of a queue
type Enqueuer interface {
	Enqueue(ctx context.Context, subjectID string, lowPriority bool) error
}

// Queue is a durable two-tier FIFO of sync requests for one Kind
type Queue struct {
	db      *sql.DB
	kind    Kind
	wake    chan struct{}
	now     func() time.Time
	after   func(time.Duration) <-chan time.Time
	metrics *observability.Metrics
}

// Option configures a Queue
type Option func(*Queue)

// WithClock replaces the clock used for queued_at and the settle delay
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
		if after != nil {
			q.after = after
		}
	}
}

// WithMetrics records queue writes and pops
func WithMetrics(m *observability.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// New creates a queue for kind on db
func New(db *sql.DB, kind Kind, opts ...Option) *Queue {
	q := &Queue{
		db:    db,
		kind:  kind,
		wake:  make(chan struct{}, WakeCapacity),
		now:   time.Now,
		after: time.After,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Kind returns the queue kind
func (q *Queue) Kind() Kind {
	return q.kind
}

// Wake delivers a signal after every successful enqueue. Signals are
// dropped while the channel is full.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) timestamp() time.Time {
	return q.now().UTC().Truncate(time.Microsecond)
}

// Enqueue writes a request for subjectID. A low priority request is a no-op
// when any request for the subject is pending. A high priority request
// promotes a pending one and refreshes its queued_at.
func (q *Queue) Enqueue(ctx context.Context, subjectID string, lowPriority bool) error {
	if subjectID == "" {
		return errors.New("subject id is required")
	}

	var query string
	if lowPriority {
		query = fmt.Sprintf(`
			INSERT INTO %s (subject_id, queued_at, low_priority)
			VALUES ($1, $2, true)
			ON CONFLICT (subject_id) DO NOTHING
		`, q.kind.Table())
	} else {
		query = fmt.Sprintf(`
			INSERT INTO %s (subject_id, queued_at, low_priority)
			VALUES ($1, $2, false)
			ON CONFLICT (subject_id) DO UPDATE SET queued_at = $2, low_priority = false
		`, q.kind.Table())
	}

	if _, err := q.db.ExecContext(ctx, query, subjectID, q.timestamp()); err != nil {
		return fmt.Errorf("failed to enqueue %s request: %w", q.kind, err)
	}

	q.metrics.RecordEnqueue(string(q.kind), lowPriority)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// PopOldest removes and returns the oldest request of a tier, or nil when
// the tier is empty. The delete only matches the selected row as read, so a
// request promoted or refreshed in between stays pending.
func (q *Queue) PopOldest(ctx context.Context, lowPriority bool) (*Request, error) {
	selectQuery := fmt.Sprintf(`
		SELECT subject_id, queued_at, low_priority FROM %s
		WHERE low_priority = $1
		ORDER BY queued_at
		LIMIT 1
	`, q.kind.Table())
	deleteQuery := fmt.Sprintf(`
		DELETE FROM %s
		WHERE subject_id = $1 AND low_priority = $2 AND queued_at = $3
	`, q.kind.Table())

	for attempt := 0; attempt < maxPopAttempts; attempt++ {
		var req Request
		err := q.db.QueryRowContext(ctx, selectQuery, lowPriority).
			Scan(&req.SubjectID, &req.QueuedAt, &req.LowPriority)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select %s request: %w", q.kind, err)
		}

		result, err := q.db.ExecContext(ctx, deleteQuery, req.SubjectID, req.LowPriority, req.QueuedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to delete %s request: %w", q.kind, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to delete %s request: %w", q.kind, err)
		}
		if rows == 0 {
			continue
		}

		q.metrics.RecordPop(string(q.kind), lowPriority)
		return &req, nil
	}

	return nil, nil
}

// WaitSettled blocks until the request has been queued for SettleDelay
func (q *Queue) WaitSettled(ctx context.Context, req *Request) error {
	due := req.QueuedAt.Add(SettleDelay)
	for q.now().Before(due) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.after(SettlePollInterval):
		}
	}
	return nil
}

// Pending counts pending requests per tier
func (q *Queue) Pending(ctx context.Context) (high, low int, err error) {
	query := fmt.Sprintf(`SELECT low_priority, COUNT(*) FROM %s GROUP BY low_priority`, q.kind.Table())

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count %s requests: %w", q.kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var lowPriority bool
		var count int
		if err := rows.Scan(&lowPriority, &count); err != nil {
			return 0, 0, fmt.Errorf("failed to scan %s count: %w", q.kind, err)
		}
		if lowPriority {
			low = count
		} else {
			high = count
		}
	}
	return high, low, rows.Err()
}
