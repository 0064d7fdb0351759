package scheduler

import "github.com/hibiken/asynq"

// Periodic maintenance tasks. All three are parameterless sweeps: the handler
// re-derives its work from the database, so a dropped or duplicated task is
// harmless.
const (
	TaskAllowanceExpire      = "allowance.expire"
	TaskAppointmentReminders = "appointments.reminders"
	TaskNotificationDispatch = "notifications.dispatch"
)

func NewAllowanceExpireTask() *asynq.Task {
	return asynq.NewTask(TaskAllowanceExpire, nil)
}

func NewAppointmentRemindersTask() *asynq.Task {
	return asynq.NewTask(TaskAppointmentReminders, nil)
}

func NewNotificationDispatchTask() *asynq.Task {
	return asynq.NewTask(TaskNotificationDispatch, nil)
}
