package repository

import (
	"time"

	"driveassist_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// Lead introduces a diagnosis to one provider. A preview lead was delivered
// without consuming a credit and hides the requester's contact details.
type Lead struct {
	ID          uuid.UUID     `db:"id"`
	DiagnosisID uuid.UUID     `db:"diagnosis_id"`
	RequesterID uuid.UUID     `db:"requester_id"`
	ProviderID  uuid.UUID     `db:"provider_id"`
	Status      domain.Status `db:"status"`
	IsPreview   bool          `db:"is_preview"`
	ViewedAt    *time.Time    `db:"viewed_at"`
	ContactedAt *time.Time    `db:"contacted_at"`
	ConvertedAt *time.Time    `db:"converted_at"`
	ClosedAt    *time.Time    `db:"closed_at"`
	CloseReason string        `db:"close_reason"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

// Activity is one append-only log entry on a lead. Entries are never updated
// or deleted.
type Activity struct {
	ID        uuid.UUID `db:"id"`
	LeadID    uuid.UUID `db:"lead_id"`
	ActorID   uuid.UUID `db:"actor_id"`
	Action    string    `db:"action"`
	Note      string    `db:"note"`
	CreatedAt time.Time `db:"created_at"`
}
