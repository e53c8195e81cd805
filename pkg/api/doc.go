// Package api serves the login callback and the admin API over HTTP.
//
// # Public routes
//
//	GET /oauth/callback?code=...&state=...   complete a login (also /callback)
//	GET /healthz                              liveness
//	GET /readyz                               readiness (database, redis)
//	GET /metrics                              Prometheus metrics
//
// # Admin routes
//
// Admin routes require "Authorization: Bearer <admin token>". When an audit
// logger is configured every admin request is recorded, including rejected
// ones.
//
//	POST /api/v1/subjects/{id}/login           create a login link
//	POST /api/v1/subjects/{id}/refresh-roles   queue a role sync
//	POST /api/v1/subjects/{id}/refresh-info    queue a user info sync (rate limited)
//	GET  /api/v1/subjects/{id}                 identity of a subject
//	GET  /api/v1/subjects/{id}/audit           recent admin operations on a subject
//	GET  /api/v1/stats                         identity and queue counts
//
// # Usage
//
//	server := api.NewServer(api.Config{
//		Flow:       flow,
//		Service:    service,
//		Messenger:  discordClient,
//		AdminToken: cfg.Admin.Token,
//		Logger:     logger,
//	})
//	http.ListenAndServe(":8080", server)
package api
