// Package scheduler runs the background maintenance loops on asynq: expiring
// purchased credit packages, sending appointment reminders and draining the
// notification outbox.
package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"driveassist_backend/internal/events"
	"driveassist_backend/platform/config"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/settings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// AllowanceSweeper expires overdue credit packages.
type AllowanceSweeper interface {
	ExpirePurchases(ctx context.Context) (int, error)
}

// ReminderSource lists confirmed appointments whose reminder is due and
// records that one went out.
type ReminderSource interface {
	ListDueForReminder(ctx context.Context, from, to time.Time) ([]Reminder, error)
	MarkReminded(ctx context.Context, id uuid.UUID) error
}

// Reminder is the slice of an appointment the reminder sweep needs.
type Reminder struct {
	AppointmentID uuid.UUID
	OccursAt      time.Time
}

// OutboxDispatcher drains pending notifications.
type OutboxDispatcher interface {
	DispatchPending(ctx context.Context, limit int) (int, error)
}

type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux

	allowances    AllowanceSweeper
	reminders     ReminderSource
	notifications OutboxDispatcher
	bus           events.Bus
	settings      *settings.Store
	log           *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, allowances AllowanceSweeper, reminders ReminderSource, notifications OutboxDispatcher, bus events.Bus, st *settings.Store, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	sweepInterval := cfg.GetExpirySweepInterval()
	if sweepInterval < time.Minute {
		sweepInterval = 10 * time.Minute
	}

	sched := asynq.NewScheduler(opt, nil)
	queueOpt := asynq.Queue(queue)
	if _, err := sched.Register(fmt.Sprintf("@every %s", sweepInterval), NewAllowanceExpireTask(), queueOpt); err != nil {
		return nil, fmt.Errorf("register expiry sweep: %w", err)
	}
	if _, err := sched.Register("@every 1m", NewAppointmentRemindersTask(), queueOpt); err != nil {
		return nil, fmt.Errorf("register reminder sweep: %w", err)
	}
	if _, err := sched.Register("@every 10s", NewNotificationDispatchTask(), queueOpt); err != nil {
		return nil, fmt.Errorf("register outbox sweep: %w", err)
	}

	mux := asynq.NewServeMux()
	w := &Worker{
		server:        server,
		scheduler:     sched,
		mux:           mux,
		allowances:    allowances,
		reminders:     reminders,
		notifications: notifications,
		bus:           bus,
		settings:      st,
		log:           log,
	}

	mux.HandleFunc(TaskAllowanceExpire, w.handleAllowanceExpire)
	mux.HandleFunc(TaskAppointmentReminders, w.handleAppointmentReminders)
	mux.HandleFunc(TaskNotificationDispatch, w.handleNotificationDispatch)

	return w, nil
}

func (w *Worker) handleAllowanceExpire(ctx context.Context, _ *asynq.Task) error {
	expired, err := w.allowances.ExpirePurchases(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		w.log.Info("expired credit packages", "count", expired)
	}
	return nil
}

func (w *Worker) handleAppointmentReminders(ctx context.Context, _ *asynq.Task) error {
	lead := w.settings.Engagement().ReminderLeadTime
	now := time.Now().UTC()

	due, err := w.reminders.ListDueForReminder(ctx, now, now.Add(lead))
	if err != nil {
		return err
	}

	for _, r := range due {
		if err := w.reminders.MarkReminded(ctx, r.AppointmentID); err != nil {
			w.log.Error("mark reminded", "appointment", r.AppointmentID, "error", err)
			continue
		}
		w.bus.Publish(ctx, events.AppointmentReminderDue{
			BaseEvent:     events.NewBaseEvent(),
			AppointmentID: r.AppointmentID,
			OccursAt:      r.OccursAt,
		})
	}
	return nil
}

func (w *Worker) handleNotificationDispatch(ctx context.Context, _ *asynq.Task) error {
	sent, err := w.notifications.DispatchPending(ctx, 50)
	if err != nil {
		return err
	}
	if sent > 0 {
		w.log.Info("dispatched notifications", "count", sent)
	}
	return nil
}

// Run starts the periodic scheduler and the task server, blocking until the
// context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		w.scheduler.Shutdown()
		w.server.Shutdown()
	}()

	go func() {
		if err := w.scheduler.Run(); err != nil {
			w.log.Error("periodic scheduler stopped", "error", err)
		}
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
