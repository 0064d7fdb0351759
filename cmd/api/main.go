package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"driveassist_backend/internal/accounts"
	"driveassist_backend/internal/adapters"
	"driveassist_backend/internal/allowance"
	"driveassist_backend/internal/appointments"
	"driveassist_backend/internal/diagnosis"
	diagengine "driveassist_backend/internal/diagnosis/engine"
	"driveassist_backend/internal/email"
	"driveassist_backend/internal/events"
	apphttp "driveassist_backend/internal/http"
	"driveassist_backend/internal/http/router"
	"driveassist_backend/internal/leads"
	"driveassist_backend/internal/notification"
	"driveassist_backend/platform/config"
	"driveassist_backend/platform/db"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/redislock"
	"driveassist_backend/platform/settings"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	engagementSettings, err := settings.NewStore(cfg.GetEngagementPolicyPath())
	if err != nil {
		log.Error("failed to load engagement settings", "error", err)
		panic("failed to load engagement settings: " + err.Error())
	}
	reloadSettingsOnSIGHUP(ctx, engagementSettings, log)

	eventBus := events.NewInMemoryBus(log)

	slotLocker := initSlotLocker(cfg, log)

	sender := email.NewSender(cfg)

	diagnosticEngine, err := diagengine.New(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize diagnostic engine", "error", err)
		panic("failed to initialize diagnostic engine: " + err.Error())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	allowanceModule := allowance.NewModule(pool, engagementSettings, eventBus, log)
	accountsModule := accounts.NewModule(pool, cfg, allowanceModule.Service(), eventBus, log)

	providerDirectory := adapters.NewProviderDirectory(accountsModule.Repository())
	leadCredits := adapters.NewLeadCredits(allowanceModule.Service())

	leadsModule := leads.NewModule(pool, leadCredits, providerDirectory, engagementSettings, eventBus, log)
	appointmentsModule := appointments.NewModule(pool, providerDirectory, slotLocker, engagementSettings, eventBus, log)
	diagnosisModule := diagnosis.NewModule(pool, allowanceModule.Service(), leadsModule.Service(), diagnosticEngine, eventBus, log)

	// Notification module subscribes to domain events (not HTTP-facing)
	notificationModule := notification.New(pool, sender, accountsModule.Repository(),
		diagnosisModule.Repository(), appointmentsModule.Repository(), log)
	notificationModule.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			accountsModule,
			allowanceModule,
			diagnosisModule,
			leadsModule,
			appointmentsModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initSlotLocker builds the Redis advisory lock used during booking. Without
// Redis the partial unique index still guarantees slot exclusivity, so a
// missing REDIS_URL only costs the early-conflict fast path.
func initSlotLocker(cfg config.LockConfig, log *logger.Logger) redislock.Locker {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; slot booking relies on the database constraint only")
		return redislock.Noop()
	}

	client, err := redislock.NewClient(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to connect to redis for slot locks", "error", err)
		return redislock.Noop()
	}
	return redislock.New(client, cfg.GetSlotLockTTL())
}

// reloadSettingsOnSIGHUP re-reads the engagement policy file when the process
// receives SIGHUP, so limits can change without a restart.
func reloadSettingsOnSIGHUP(ctx context.Context, st *settings.Store, log *logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := st.Reload(); err != nil {
					log.Error("engagement settings reload failed", "error", err)
					continue
				}
				log.Info("engagement settings reloaded")
			}
		}
	}()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < attempts {
			delay := baseDelay * time.Duration(attempt)
			log.Warn(name+" failed, retrying", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s: %w", name, lastErr)
}
