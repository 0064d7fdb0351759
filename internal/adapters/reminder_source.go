package adapters

import (
	"context"
	"time"

	"github.com/google/uuid"

	appointmentsrepo "driveassist_backend/internal/appointments/repository"
	"driveassist_backend/internal/scheduler"
)

// ReminderSource adapts the appointments repository for the reminder sweep.
type ReminderSource struct {
	repo *appointmentsrepo.Repository
}

func NewReminderSource(repo *appointmentsrepo.Repository) *ReminderSource {
	return &ReminderSource{repo: repo}
}

func (a *ReminderSource) ListDueForReminder(ctx context.Context, from, to time.Time) ([]scheduler.Reminder, error) {
	due, err := a.repo.ListDueForReminder(ctx, from, to)
	if err != nil {
		return nil, err
	}

	reminders := make([]scheduler.Reminder, 0, len(due))
	for i := range due {
		appt := &due[i]
		occursAt, err := time.Parse("2006-01-02 15:04", appt.ScheduledDate+" "+appt.ScheduledTime)
		if err != nil {
			continue
		}
		reminders = append(reminders, scheduler.Reminder{
			AppointmentID: appt.ID,
			OccursAt:      occursAt,
		})
	}
	return reminders, nil
}

func (a *ReminderSource) MarkReminded(ctx context.Context, id uuid.UUID) error {
	return a.repo.MarkReminded(ctx, id)
}

var _ scheduler.ReminderSource = (*ReminderSource)(nil)
