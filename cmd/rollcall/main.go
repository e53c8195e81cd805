package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/rollcall/pkg/api"
	"github.com/platinummonkey/rollcall/pkg/audit"
	"github.com/platinummonkey/rollcall/pkg/auth"
	"github.com/platinummonkey/rollcall/pkg/config"
	"github.com/platinummonkey/rollcall/pkg/discord"
	"github.com/platinummonkey/rollcall/pkg/identity"
	"github.com/platinummonkey/rollcall/pkg/jobs"
	"github.com/platinummonkey/rollcall/pkg/lease"
	"github.com/platinummonkey/rollcall/pkg/middleware"
	"github.com/platinummonkey/rollcall/pkg/observability"
	"github.com/platinummonkey/rollcall/pkg/queue"
	"github.com/platinummonkey/rollcall/pkg/roles"
	"github.com/platinummonkey/rollcall/pkg/sso"
	"github.com/platinummonkey/rollcall/pkg/storage/postgres"
)

func main() {
	migrateOnly := flag.Bool("migrate", false, "Apply database migrations and exit")
	flag.Parse()

	if err := run(*migrateOnly); err != nil {
		logrus.WithError(err).Fatal("rollcall exited with an error")
	}
}

func run(migrateOnly bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, observability.LogFormat(cfg.Observability.LogFormat), os.Stderr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, postgres.Config{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxOpenConns,
		MinConns:    cfg.Database.MaxIdleConns,
		MaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if migrateOnly || cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			return err
		}
		if migrateOnly {
			return nil
		}
	}

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = postgres.NewRedisClient(ctx, cfg.Redis.URL, cfg.Redis.PoolSize)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("Redis is not configured, assuming a single replica")
	}

	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return err
	}
	platform := discord.NewClient(session, cfg.Discord.GuildID, logger, metrics)

	provider, err := sso.NewAzureProvider(ctx, cfg.SSO, nil)
	if err != nil {
		return fmt.Errorf("failed to create identity provider: %w", err)
	}
	tokens := sso.NewTokenManager(provider, sso.DefaultRefreshMargin)

	identities := identity.NewStore(db)
	roleQueue := queue.New(db, queue.RoleSync, queue.WithMetrics(metrics))
	infoQueue := queue.New(db, queue.UserInfoSync, queue.WithMetrics(metrics))

	catalog := policy.Catalog()
	roleTable := roles.NewCohortRoleTable(platform, catalog, policy.RolePolicy())

	flow := auth.NewFlow(auth.FlowConfig{
		Store:      identities,
		Provider:   provider,
		Catalog:    catalog,
		RoleQueue:  roleQueue,
		InviteLink: policy.InviteLink,
		Logger:     logger,
		Metrics:    metrics,
	})
	service := auth.NewService(identities, roleQueue, infoQueue, logger)

	g, gctx := errgroup.WithContext(ctx)

	limiterConfig := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Admin.RefreshPerMin,
		WindowDuration:    middleware.DefaultRateLimitConfig().WindowDuration,
	}
	var limiter middleware.Limiter
	if rdb != nil && cfg.Admin.RateLimitRedis {
		limiter = middleware.NewDistributedRateLimiter(rdb, limiterConfig, "")
	} else {
		local := middleware.NewRateLimiter(limiterConfig)
		local.StartCleanup(gctx)
		limiter = local
	}

	var gatherer prometheus.Gatherer
	if cfg.Observability.MetricsEnabled {
		gatherer = registry
	}

	auditLog := audit.NewDBLogger(db)
	server := api.NewServer(api.Config{
		Flow:           flow,
		Service:        service,
		Messenger:      platform,
		Health:         observability.NewHealthChecker(db, redisOrNil(rdb)),
		Metrics:        metrics,
		Gatherer:       gatherer,
		AdminToken:     cfg.Admin.Token,
		RefreshLimiter: limiter,
		Audit:          auditLog,
		AuditReader:    auditLog,
		Logger:         logger,
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	drivers := []*jobs.Driver{
		newDriver(roleQueue, jobs.NewRoleSync(roleQueue, identities, platform, roleTable, logger), rdb, cfg.Redis, logger, metrics),
		newDriver(infoQueue, jobs.NewUserInfoSync(jobs.UserInfoSyncConfig{
			Source:     infoQueue,
			Identities: identities,
			Tokens:     tokens,
			Profiles:   provider,
			Catalog:    catalog,
			RoleQueue:  roleQueue,
			Logger:     logger,
		}), rdb, cfg.Redis, logger, metrics),
	}

	producer := jobs.NewProducer(identities, platform, roleQueue, infoQueue, logger, metrics)
	schedulerConfig := jobs.DefaultSchedulerConfig()
	schedulerConfig.ProducerSchedule = cfg.Jobs.ProducerSchedule
	schedulerConfig.PurgeSchedule = cfg.Jobs.PurgeSchedule
	schedulerConfig.RequestTTL = cfg.Jobs.RequestTTL
	scheduler, err := jobs.NewScheduler(producer, flow, schedulerConfig, logger)
	if err != nil {
		return err
	}

	for _, d := range drivers {
		g.Go(func() error { return d.Run(gctx) })
	}
	scheduler.Start(gctx)
	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	sm := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	sm.Register("http", httpServer.Shutdown)
	sm.Register("scheduler", scheduler.Stop)
	sm.Register("workers", func(ctx context.Context) error {
		cancel()
		done := make(chan error, 1)
		go func() { done <- g.Wait() }()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	sm.Register("tracing", func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp)
	})
	if rdb != nil {
		sm.Register("redis", func(context.Context) error { return rdb.Close() })
	}

	sm.WaitForSignal(gctx)
	return sm.Shutdown(context.Background())
}

func newDriver(source *queue.Queue, ticker jobs.Ticker, rdb *redis.Client, cfg config.RedisConfig, logger logrus.FieldLogger, metrics *observability.Metrics) *jobs.Driver {
	var l jobs.Lease
	if rdb != nil {
		l = lease.New(rdb, string(source.Kind()), cfg.LeaseTTL)
	}
	return jobs.NewDriver(jobs.DriverConfig{
		Name:    string(source.Kind()),
		Ticker:  ticker,
		Wake:    source.Wake(),
		Backoff: jobs.DefaultBackoffConfig(),
		Lease:   l,
		Logger:  logger,
		Metrics: metrics,
	})
}

// redisOrNil keeps a nil *redis.Client from becoming a non-nil interface
func redisOrNil(rdb *redis.Client) redis.UniversalClient {
	if rdb == nil {
		return nil
	}
	return rdb
}
