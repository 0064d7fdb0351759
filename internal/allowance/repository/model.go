package repository

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which meter an allowance row tracks.
type Kind string

const (
	// KindDiagnosis meters diagnostic submissions by requesters.
	KindDiagnosis Kind = "diagnosis"
	// KindLead meters lead deliveries to providers.
	KindLead Kind = "lead"
)

// PurchaseType distinguishes the payment target a purchase row came from.
type PurchaseType string

const (
	// TypePackage is a finite block of purchased units.
	TypePackage PurchaseType = "package"
	// TypeSubscription grants unmetered use until it expires.
	TypeSubscription PurchaseType = "subscription"
)

// PurchaseStatus is the lifecycle of a purchase row.
type PurchaseStatus string

const (
	StatusActive    PurchaseStatus = "active"
	StatusExhausted PurchaseStatus = "exhausted"
	StatusExpired   PurchaseStatus = "expired"
)

// Source identifies which pool a consumed unit was drawn from.
type Source string

const (
	SourceComplimentary Source = "complimentary"
	SourcePurchase      Source = "purchase"
	SourceSubscription  Source = "subscription"
)

// Allowance is the per-account counter row for one meter.
// Rows are created at provisioning and zeroed, never deleted.
type Allowance struct {
	AccountID              uuid.UUID `db:"account_id"`
	Kind                   Kind      `db:"kind"`
	ComplimentaryRemaining int       `db:"complimentary_remaining"`
	TotalConsumed          int       `db:"total_consumed"`
	CreatedAt              time.Time `db:"created_at"`
	UpdatedAt              time.Time `db:"updated_at"`
}

// Purchase is a block of purchased credits, kept forever for audit.
type Purchase struct {
	ID             uuid.UUID      `db:"id"`
	AccountID      uuid.UUID      `db:"account_id"`
	Kind           Kind           `db:"kind"`
	Type           PurchaseType   `db:"type"`
	Reference      string         `db:"reference"`
	UnitsPurchased int            `db:"units_purchased"`
	UnitsRemaining int            `db:"units_remaining"`
	Status         PurchaseStatus `db:"status"`
	ExpiresAt      *time.Time     `db:"expires_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// ActiveAt reports whether the purchase can still serve a unit at the given time.
func (p *Purchase) ActiveAt(now time.Time) bool {
	if p.Status != StatusActive {
		return false
	}
	if p.ExpiresAt != nil && p.ExpiresAt.Before(now) {
		return false
	}
	if p.Type == TypeSubscription {
		return true
	}
	return p.UnitsRemaining > 0
}
