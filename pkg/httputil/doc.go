// Package httputil provides HTTP helpers shared by the handlers.
//
// Response helpers write JSON bodies ({"error": "..."} for failures) or
// short plain text pages for browser facing endpoints. Middleware adds
// request ids, access logs through logrus and panic recovery:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//	)(router)
package httputil
