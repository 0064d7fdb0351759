package repository

import (
	"time"

	"github.com/google/uuid"
)

// Status is the diagnosis persistence state. Rows sit at dispatching while
// their leads are being fanned out and stay hidden from read endpoints until
// they leave that state. An engine outage is persisted as failed, with the
// credit spent; a failed fan-out deletes the row entirely.
type Status string

const (
	StatusDispatching Status = "dispatching"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Diagnosis is one assessed complaint together with its outcome.
type Diagnosis struct {
	ID                 uuid.UUID  `db:"id"`
	RequesterID        uuid.UUID  `db:"requester_id"`
	VehicleID          *uuid.UUID `db:"vehicle_id"`
	Status             Status     `db:"status"`
	Complaint          string     `db:"complaint"`
	Region             string     `db:"region"`
	Summary            string     `db:"summary"`
	ProbableCauses     []string   `db:"probable_causes"`
	RecommendedActions []string   `db:"recommended_actions"`
	Urgency            string     `db:"urgency"`
	Specialty          string     `db:"specialty"`
	Confidence         float64    `db:"confidence"`
	LeadCount          int        `db:"lead_count"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}
