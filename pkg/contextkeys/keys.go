// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// packages never collide on ad hoc keys.
//
//	ctx = contextkeys.WithRequestID(ctx, requestID)
//	requestID := contextkeys.GetRequestID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: request logging
	// Type: string
	RequestIDKey Key = "request_id"

	// SubjectIDKey contains the platform subject id of an admin request
	// Set by: api handlers for /api/v1/subjects/{id}
	// Used by: rate limiting, logging
	// Type: string
	SubjectIDKey Key = "subject_id"

	// LoggerKey contains the request scoped logrus.FieldLogger
	// Set by: httputil.RequestIDMiddleware
	// Used by: handlers that log with request context
	// Type: logrus.FieldLogger
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSubjectID adds a subject ID to the context
func WithSubjectID(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, SubjectIDKey, subjectID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetSubjectID retrieves the subject ID from context
func GetSubjectID(ctx context.Context) string {
	if subjectID, ok := ctx.Value(SubjectIDKey).(string); ok {
		return subjectID
	}
	return ""
}

// GetLogger retrieves the logger from context, nil when absent
func GetLogger(ctx context.Context) interface{} {
	return ctx.Value(LoggerKey)
}
