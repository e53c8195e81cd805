package audit

import (
	"context"
	"net/http"
	"time"
)

// EventType represents the admin operation that was attempted
type EventType string

const (
	EventTypeLoginLink    EventType = "admin.login_link"
	EventTypeRefreshRoles EventType = "admin.refresh_roles"
	EventTypeRefreshInfo  EventType = "admin.refresh_info"
	EventTypeViewSubject  EventType = "admin.view_subject"
	EventTypeViewAudit    EventType = "admin.view_audit"
	EventTypeViewStats    EventType = "admin.view_stats"
	EventTypeUnknown      EventType = "admin.unknown"
)

// EventStatus represents the outcome of an audited operation
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// StatusFromCode maps an HTTP status code to an event status
func StatusFromCode(code int) EventStatus {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusTooManyRequests:
		return EventStatusDenied
	case code >= http.StatusBadRequest:
		return EventStatusFailure
	default:
		return EventStatusSuccess
	}
}

// Event is one audited admin operation
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// SubjectID is the subject the operation targeted, if any
	SubjectID string `json:"subject_id,omitempty"`

	RequestID  string `json:"request_id,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	Method     string `json:"method"`
	Route      string `json:"route"`
	StatusCode int    `json:"status_code"`
	DurationMS int64  `json:"duration_ms"`
}

// Logger records audit events
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// Reader lists recorded audit events
type Reader interface {
	Recent(ctx context.Context, subjectID string, limit int) ([]*Event, error)
}
