package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/textgate/textgate/internal/account"
	"github.com/textgate/textgate/internal/api"
	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/clock"
	"github.com/textgate/textgate/internal/config"
	"github.com/textgate/textgate/internal/database"
	"github.com/textgate/textgate/internal/governance"
	"github.com/textgate/textgate/internal/governance/audit"
	"github.com/textgate/textgate/internal/governance/quota"
	mw "github.com/textgate/textgate/internal/middleware"
	inats "github.com/textgate/textgate/internal/nats"
	iredis "github.com/textgate/textgate/internal/redis"
	"github.com/textgate/textgate/internal/server"
	"github.com/textgate/textgate/internal/textops"
	"github.com/textgate/textgate/internal/throttle"
	"github.com/textgate/textgate/internal/tier"
	"github.com/textgate/textgate/internal/users"
	"github.com/textgate/textgate/migrations"
)

func main() {
	if err := run(); err != nil {
		slog.Error("textgate exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		return err
	}
	api.ExposeErrorDetail(cfg.App.Development())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.System()

	location, err := time.LoadLocation(cfg.Quota.TimeZone)
	if err != nil {
		return fmt.Errorf("loading quota time zone: %w", err)
	}

	// PostgreSQL
	if err := database.Migrate(cfg.DB.DSN(), migrations.FS); err != nil {
		return err
	}
	pool, err := database.Connect(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	checks := map[string]server.HealthCheck{
		"database": func(ctx context.Context) error { return database.Check(ctx, pool) },
	}

	g, gctx := errgroup.WithContext(ctx)

	// NATS is optional; without it audit events are dropped.
	var (
		events    *audit.Emitter
		auditRepo = audit.NewRepository(pool)
	)
	if cfg.NATS.URL != "" {
		nc, err := inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			return err
		}
		defer nc.Close()

		events = audit.NewEmitter(inats.NewPublisher(nc.JetStream()))
		consumer := audit.NewConsumer(auditRepo, nc)
		g.Go(func() error { return consumer.Start(gctx) })

		checks["nats"] = func(context.Context) error {
			if !nc.Healthy() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	} else {
		slog.Warn("NATS_URL is empty, audit events are disabled")
	}

	// Throttle
	limiter, err := newLimiter(gctx, g, cfg, clk, checks)
	if err != nil {
		return err
	}

	// Users and auth
	userSvc := users.NewService(users.NewRepository(pool))
	codec, err := auth.NewTokenCodec(cfg.JWT.Secret, cfg.JWT.Expiry, clk)
	if err != nil {
		return err
	}
	resolver := auth.NewResolver(codec, userSvc)
	hasher := auth.NewPasswordHasher(auth.DefaultHashCost)
	authHandler := auth.NewHandler(userSvc, codec, hasher)

	// Quota
	usageRepo := quota.NewRepository(pool)
	tracker := quota.NewTracker(usageRepo, clk, quota.Limits{
		Monthly: map[quota.Action]int{
			quota.ActionSummary:     cfg.Quota.SummaryMonthly,
			quota.ActionTranslation: cfg.Quota.TranslationMonthly,
		},
		Daily:    cfg.Quota.Daily,
		Location: location,
	})
	enforcer := quota.NewEnforcer(tracker, events)
	recorder := quota.NewRecorder(usageRepo, clk, events)

	// Text services
	var textHandler *textops.Handler
	if cfg.Text.URL != "" {
		client := textops.NewClient(cfg.Text.URL, cfg.Text.Timeout)
		textHandler = textops.NewHandler(client, client, recorder, enforcer)
	} else {
		textHandler = textops.NewHandler(nil, nil, recorder, enforcer)
	}

	accountHandler := account.NewHandler(userSvc, tracker, hasher, events, clk)
	governanceHandler := governance.NewHandler(auditRepo)

	router := server.NewRouter(server.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		TrustProxy:         cfg.Server.TrustProxy,
		Throttle:           mw.Throttle(limiter),
		Checks:             checks,
	}, server.Handlers{
		Register: authHandler.Register,
		Login:    authHandler.Login,

		Profile:        accountHandler.Profile,
		UpdateProfile:  accountHandler.UpdateProfile,
		ChangePassword: accountHandler.ChangePassword,
		DeleteAccount:  accountHandler.DeleteAccount,
		Stats:          accountHandler.Stats,
		Usage:          accountHandler.Usage,
		Upgrade:        accountHandler.Upgrade,
		Downgrade:      accountHandler.Downgrade,

		Summarize:        textHandler.Summarize,
		Translate:        textHandler.Translate,
		TranslateSummary: textHandler.TranslateSummary,
		BulkTranslate:    textHandler.BulkTranslate,
		Languages:        textHandler.Languages,

		ListAuditLogs: governanceHandler.ListAuditLogs,

		RequireAuth:      auth.Middleware(resolver),
		OptionalAuth:     auth.OptionalMiddleware(resolver),
		RequirePro:       tier.Middleware(users.TierPro, events),
		SummaryQuota:     enforcer.Middleware(quota.ActionSummary),
		TranslationQuota: enforcer.Middleware(quota.ActionTranslation),
	})

	srv := server.New(cfg.Server, router)
	g.Go(func() error { return srv.Run(gctx) })

	return g.Wait()
}

// newLimiter builds the configured throttle backend. Background work (the
// memory janitor, closing the redis client) runs in g until ctx ends.
func newLimiter(ctx context.Context, g *errgroup.Group, cfg *config.Config, clk clock.Clock, checks map[string]server.HealthCheck) (throttle.Limiter, error) {
	tcfg := throttle.Config{
		Points:  cfg.Throttle.Points,
		Window:  cfg.Throttle.Duration,
		MaxKeys: cfg.Throttle.MaxKeys,
	}

	if cfg.Throttle.Backend == "redis" {
		rdb, err := iredis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		g.Go(func() error {
			<-ctx.Done()
			return rdb.Close()
		})
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		return throttle.NewRedis(rdb, tcfg, clk), nil
	}

	mem := throttle.NewMemory(tcfg, clk)
	g.Go(func() error { return mem.Run(ctx) })
	return mem, nil
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
