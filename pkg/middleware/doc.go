// Package middleware provides HTTP middleware for admin authentication and
// rate limiting.
//
// AdminAuth checks a static bearer token in constant time:
//
//	admin.Use(middleware.AdminAuth(cfg.AdminToken))
//
// RateLimit limits requests per key with any Limiter. RateLimiter keeps
// fixed windows in memory for a single replica; DistributedRateLimiter
// keeps them in Redis so every replica shares the same budget:
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, middleware.DefaultRateLimitConfig(), "rollcall:ratelimit:refresh-info")
//	route.Handler(middleware.RateLimit(limiter, middleware.SubjectKey, logger)(handler))
//
// Limiter errors fail open: the request is served and the error logged.
package middleware
