package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"driveassist_backend/internal/appointments/domain"
	"driveassist_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, reference, requester_id, provider_id, vehicle_id, lead_id, status,
	scheduled_date, scheduled_time, duration_minutes, estimated_cost_cents, final_cost_cents,
	description, cancelled_by, status_reason,
	confirmed_at, started_at, completed_at, created_at, updated_at`

func scan(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Reference, &a.RequesterID, &a.ProviderID, &a.VehicleID, &a.LeadID, &a.Status,
		&a.ScheduledDate, &a.ScheduledTime, &a.DurationMinutes, &a.EstimatedCostCents, &a.FinalCostCents,
		&a.Description, &a.CancelledBy, &a.StatusReason,
		&a.ConfirmedAt, &a.StartedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("appointment not found")
		}
		return nil, fmt.Errorf("failed to scan appointment: %w", err)
	}
	return &a, nil
}

// Insert creates a pending appointment and its offering line items in one
// transaction. The partial unique index on (provider_id, scheduled_date,
// scheduled_time) over slot-holding statuses is the authoritative exclusivity
// check; a violation maps to SlotConflict.
func (r *Repository) Insert(ctx context.Context, a *Appointment, offerings []Offering) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO appointments (id, reference, requester_id, provider_id, vehicle_id, lead_id, status,
		   scheduled_date, scheduled_time, duration_minutes, estimated_cost_cents, description,
		   cancelled_by, status_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, '', '', now(), now())`,
		a.ID, a.Reference, a.RequesterID, a.ProviderID, a.VehicleID, a.LeadID, a.Status,
		a.ScheduledDate, a.ScheduledTime, a.DurationMinutes, a.EstimatedCostCents, a.Description,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.SlotConflict("slot is already booked")
		}
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	for _, o := range offerings {
		if _, err := tx.Exec(ctx,
			`INSERT INTO appointment_offerings (id, appointment_id, name, cost_cents, duration_minutes, sort_order, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, now())`,
			o.ID, o.AppointmentID, o.Name, o.CostCents, o.DurationMinutes, o.SortOrder,
		); err != nil {
			return fmt.Errorf("failed to insert appointment offering: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListOfferings returns the line items of one appointment in booking order.
func (r *Repository) ListOfferings(ctx context.Context, appointmentID uuid.UUID) ([]Offering, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, appointment_id, name, cost_cents, duration_minutes, sort_order, created_at
		 FROM appointment_offerings WHERE appointment_id = $1 ORDER BY sort_order`,
		appointmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list offerings: %w", err)
	}
	defer rows.Close()

	var items []Offering
	for rows.Next() {
		var o Offering
		if err := rows.Scan(&o.ID, &o.AppointmentID, &o.Name, &o.CostCents, &o.DurationMinutes, &o.SortOrder, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan offering: %w", err)
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+columns+` FROM appointments WHERE id = $1`, id)
	return scan(row)
}

func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID, status domain.Status) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+columns+` FROM appointments
		 WHERE (requester_id = $1 OR provider_id = $1) AND ($2 = '' OR status = $2)
		 ORDER BY scheduled_date DESC, scheduled_time DESC`,
		accountID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var items []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.Reference, &a.RequesterID, &a.ProviderID, &a.VehicleID, &a.LeadID, &a.Status,
			&a.ScheduledDate, &a.ScheduledTime, &a.DurationMinutes, &a.EstimatedCostCents, &a.FinalCostCents,
			&a.Description, &a.CancelledBy, &a.StatusReason,
			&a.ConfirmedAt, &a.StartedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// SlotTaken checks the advisory way, before insert. The unique index remains
// the last word under true concurrency.
func (r *Repository) SlotTaken(ctx context.Context, providerID uuid.UUID, date, timeSlot string) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM appointments
		   WHERE provider_id = $1 AND scheduled_date = $2 AND scheduled_time = $3
		     AND status IN ('pending', 'confirmed')
		 )`,
		providerID, date, timeSlot,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return taken, nil
}

// SlotTakenByOther is SlotTaken for reschedules: the appointment being moved
// does not conflict with itself.
func (r *Repository) SlotTakenByOther(ctx context.Context, providerID uuid.UUID, date, timeSlot string, exclude uuid.UUID) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM appointments
		   WHERE provider_id = $1 AND scheduled_date = $2 AND scheduled_time = $3
		     AND status IN ('pending', 'confirmed') AND id <> $4
		 )`,
		providerID, date, timeSlot, exclude,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return taken, nil
}

// UpdateStatusFrom performs a compare-and-set transition. When the row exists
// but no longer sits at the expected status the caller lost a race and gets
// InvalidTransition, not NotFound.
func (r *Repository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to domain.Status, at time.Time, actor, reason string) (*Appointment, error) {
	stamp := ""
	switch to {
	case domain.StatusConfirmed:
		stamp = "confirmed_at"
	case domain.StatusInProgress:
		stamp = "started_at"
	case domain.StatusCompleted:
		stamp = "completed_at"
	}

	set := `status = $3, status_reason = $5, cancelled_by = CASE WHEN $3 = 'cancelled' THEN $6 ELSE cancelled_by END, updated_at = now()`
	if stamp != "" {
		set += fmt.Sprintf(`, %s = COALESCE(%s, $4)`, stamp, stamp)
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE appointments SET `+set+`
		 WHERE id = $1 AND status = $2
		 RETURNING `+columns,
		id, from, to, at, reason, actor,
	)
	a, err := scan(row)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.InvalidTransition(fmt.Sprintf("appointment is no longer %s", from))
		}
		return nil, err
	}
	return a, nil
}

// Complete flips an in-progress appointment to completed and settles the
// final cost, defaulting it to the estimate when the provider gives none.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, at time.Time, finalCostCents *int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE appointments
		 SET status = 'completed',
		     final_cost_cents = COALESCE($3, estimated_cost_cents),
		     completed_at = COALESCE(completed_at, $2),
		     updated_at = now()
		 WHERE id = $1 AND status = 'in_progress'
		 RETURNING `+columns,
		id, at, finalCostCents,
	)
	a, err := scan(row)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.InvalidTransition("appointment is not in progress")
		}
		return nil, err
	}
	return a, nil
}

// Reschedule moves a slot-holding appointment to a new slot and drops it back
// to pending for re-confirmation. The unique index guards the new slot.
func (r *Repository) Reschedule(ctx context.Context, id uuid.UUID, from domain.Status, date, timeSlot string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE appointments
		 SET scheduled_date = $3, scheduled_time = $4, status = 'pending', confirmed_at = NULL, updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+columns,
		id, from, date, timeSlot,
	)
	a, err := scan(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.SlotConflict("slot is already booked")
		}
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.InvalidTransition(fmt.Sprintf("appointment is no longer %s", from))
		}
		return nil, err
	}
	return a, nil
}

// ListDueForReminder returns confirmed appointments whose slot falls inside
// the window and which have not been reminded yet.
func (r *Repository) ListDueForReminder(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+columns+` FROM appointments
		 WHERE status = 'confirmed' AND reminded_at IS NULL
		   AND (scheduled_date || ' ' || scheduled_time)::timestamp BETWEEN $1 AND $2`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	defer rows.Close()

	var items []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.Reference, &a.RequesterID, &a.ProviderID, &a.VehicleID, &a.LeadID, &a.Status,
			&a.ScheduledDate, &a.ScheduledTime, &a.DurationMinutes, &a.EstimatedCostCents, &a.FinalCostCents,
			&a.Description, &a.CancelledBy, &a.StatusReason,
			&a.ConfirmedAt, &a.StartedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// MarkReminded records that a reminder went out so the sweep is idempotent.
func (r *Repository) MarkReminded(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE appointments SET reminded_at = now() WHERE id = $1 AND reminded_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to mark reminded: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
