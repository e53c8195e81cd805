package audit

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/rollcall/pkg/contextkeys"
)

// eventTypes maps admin route templates to event types
var eventTypes = map[string]EventType{
	"/api/v1/subjects/{id:[0-9]+}/login":         EventTypeLoginLink,
	"/api/v1/subjects/{id:[0-9]+}/refresh-roles": EventTypeRefreshRoles,
	"/api/v1/subjects/{id:[0-9]+}/refresh-info":  EventTypeRefreshInfo,
	"/api/v1/subjects/{id:[0-9]+}":               EventTypeViewSubject,
	"/api/v1/subjects/{id:[0-9]+}/audit":         EventTypeViewAudit,
	"/api/v1/stats":                              EventTypeViewStats,
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Middleware records every admin request, including denied ones. It must
// run inside a mux router so the route template is known. Failing to record
// an event never fails the request.
func Middleware(logger Logger, log logrus.FieldLogger) mux.MiddlewareFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			event := &Event{
				Timestamp:  start.UTC(),
				EventType:  EventTypeUnknown,
				Status:     StatusFromCode(wrapped.statusCode),
				SubjectID:  mux.Vars(r)["id"],
				RequestID:  contextkeys.GetRequestID(r.Context()),
				IPAddress:  clientIP(r),
				UserAgent:  r.UserAgent(),
				Method:     r.Method,
				Route:      r.URL.Path,
				StatusCode: wrapped.statusCode,
				DurationMS: time.Since(start).Milliseconds(),
			}
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					event.Route = tpl
					if t, ok := eventTypes[tpl]; ok {
						event.EventType = t
					}
				}
			}

			if err := logger.Log(r.Context(), event); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"event_type": event.EventType,
					"subject_id": event.SubjectID,
				}).Warn("Failed to record audit event")
			}
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
