// Package audit records who did what through the admin API.
//
// Every admin request, including rejected ones, becomes an Event stored in
// the audit_events table:
//
//	logger := audit.NewDBLogger(db)
//	admin.Use(audit.Middleware(logger, log))
//
// Events are read back newest first:
//
//	events, err := logger.Recent(ctx, "1234567890", 50)
package audit
