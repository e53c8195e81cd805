// Package postgres opens the PostgreSQL database and Redis client the
// service runs on and applies the schema migrations.
//
//	db, err := postgres.Open(ctx, postgres.Config{URL: cfg.Database.URL})
//	if err := postgres.Migrate(ctx, db, logger); err != nil { ... }
//	rdb, err := postgres.NewRedisClient(ctx, cfg.Redis.URL, cfg.Redis.PoolSize)
//
// The identity and queue stores in pkg/identity and pkg/queue run their
// queries against the *sql.DB returned by Open.
package postgres
