package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// MaxRecent caps the number of events Recent returns
const MaxRecent = 200

// DBLogger stores audit events in the audit_events table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db}
}

// Log inserts the event and sets its ID
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO audit_events (
			timestamp, event_type, status, subject_id,
			request_id, ip_address, user_agent,
			method, route, status_code, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp.UTC(), event.EventType, event.Status, nullString(event.SubjectID),
		event.RequestID, event.IPAddress, event.UserAgent,
		event.Method, event.Route, event.StatusCode, event.DurationMS,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events first, optionally for one subject
func (l *DBLogger) Recent(ctx context.Context, subjectID string, limit int) ([]*Event, error) {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}

	query := `
		SELECT id, timestamp, event_type, status, COALESCE(subject_id, ''),
			request_id, ip_address, user_agent,
			method, route, status_code, duration_ms
		FROM audit_events
		WHERE ($1 = '' OR subject_id = $1)
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`

	rows, err := l.db.QueryContext(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.EventType, &e.Status, &e.SubjectID,
			&e.RequestID, &e.IPAddress, &e.UserAgent,
			&e.Method, &e.Route, &e.StatusCode, &e.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
