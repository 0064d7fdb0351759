package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	accountsrepo "driveassist_backend/internal/accounts/repository"
	"driveassist_backend/internal/adapters"
	allowancerepo "driveassist_backend/internal/allowance/repository"
	allowanceservice "driveassist_backend/internal/allowance/service"
	appointmentsrepo "driveassist_backend/internal/appointments/repository"
	diagnosisrepo "driveassist_backend/internal/diagnosis/repository"
	"driveassist_backend/internal/email"
	"driveassist_backend/internal/events"
	"driveassist_backend/internal/notification"
	"driveassist_backend/internal/scheduler"
	"driveassist_backend/platform/config"
	"driveassist_backend/platform/db"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/settings"
)

// The worker process owns the periodic maintenance loops: expiring credit
// packages, sending appointment reminders and draining the notification
// outbox. It shares the database and the notification wiring with the API
// but runs no HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	engagementSettings, err := settings.NewStore(cfg.GetEngagementPolicyPath())
	if err != nil {
		log.Error("failed to load engagement settings", "error", err)
		panic("failed to load engagement settings: " + err.Error())
	}

	eventBus := events.NewInMemoryBus(log)
	sender := email.NewSender(cfg)

	allowances := allowanceservice.New(allowancerepo.New(pool), engagementSettings, eventBus, log)
	appointments := appointmentsrepo.New(pool)

	notificationModule := notification.New(pool, sender, accountsrepo.New(pool),
		diagnosisrepo.New(pool), appointments, log)
	notificationModule.RegisterHandlers(eventBus)

	worker, err := scheduler.NewWorker(cfg, allowances,
		adapters.NewReminderSource(appointments), notificationModule, eventBus, engagementSettings, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("worker stopped")
}
