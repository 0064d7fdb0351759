package repository

import (
	"time"

	"driveassist_backend/internal/appointments/domain"

	"github.com/google/uuid"
)

// Appointment is one booked slot between a requester and a provider.
// ScheduledDate is a calendar date (2006-01-02) and ScheduledTime a wall
// clock time (15:04) in the provider's local zone; keeping them split makes
// the slot uniqueness constraint a plain column tuple.
type Appointment struct {
	ID                 uuid.UUID     `db:"id"`
	Reference          string        `db:"reference"`
	RequesterID        uuid.UUID     `db:"requester_id"`
	ProviderID         uuid.UUID     `db:"provider_id"`
	VehicleID          *uuid.UUID    `db:"vehicle_id"`
	LeadID             *uuid.UUID    `db:"lead_id"`
	Status             domain.Status `db:"status"`
	ScheduledDate      string        `db:"scheduled_date"`
	ScheduledTime      string        `db:"scheduled_time"`
	DurationMinutes    int           `db:"duration_minutes"`
	EstimatedCostCents int64         `db:"estimated_cost_cents"`
	FinalCostCents     *int64        `db:"final_cost_cents"`
	Description        string        `db:"description"`
	CancelledBy        string        `db:"cancelled_by"`
	StatusReason       string        `db:"status_reason"`
	ConfirmedAt        *time.Time    `db:"confirmed_at"`
	StartedAt          *time.Time    `db:"started_at"`
	CompletedAt        *time.Time    `db:"completed_at"`
	CreatedAt          time.Time     `db:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at"`
}

// Offering is one service line item attached to an appointment at booking
// time. Estimated cost and duration on the appointment are the sums over
// its offerings.
type Offering struct {
	ID              uuid.UUID `db:"id"`
	AppointmentID   uuid.UUID `db:"appointment_id"`
	Name            string    `db:"name"`
	CostCents       int64     `db:"cost_cents"`
	DurationMinutes int       `db:"duration_minutes"`
	SortOrder       int       `db:"sort_order"`
	CreatedAt       time.Time `db:"created_at"`
}

// SlotKey identifies one bookable slot.
func (a *Appointment) SlotKey() string {
	return a.ProviderID.String() + ":" + a.ScheduledDate + ":" + a.ScheduledTime
}
