// Package transport defines request/response DTOs for the allowance module.
package transport

import (
	"time"

	"driveassist_backend/internal/allowance/repository"

	"github.com/google/uuid"
)

// GrantRequest is posted by the payment settlement callback.
type GrantRequest struct {
	AccountID uuid.UUID  `json:"accountId" binding:"required"`
	Kind      string     `json:"kind" binding:"required,oneof=diagnosis lead"`
	Type      string     `json:"type" binding:"required,oneof=package subscription"`
	Reference string     `json:"reference" binding:"required,max=128"`
	Units     int        `json:"units" binding:"omitempty,min=1,max=1000"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// PurchaseResponse is one purchase row in a balance view.
type PurchaseResponse struct {
	ID             uuid.UUID  `json:"id"`
	Type           string     `json:"type"`
	Reference      string     `json:"reference"`
	UnitsPurchased int        `json:"unitsPurchased"`
	UnitsRemaining int        `json:"unitsRemaining"`
	Status         string     `json:"status"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// BalanceResponse is the meter read model for one kind.
type BalanceResponse struct {
	Kind                   string             `json:"kind"`
	ComplimentaryRemaining int                `json:"complimentaryRemaining"`
	PurchasedRemaining     int                `json:"purchasedRemaining"`
	SubscriptionActive     bool               `json:"subscriptionActive"`
	TotalConsumed          int                `json:"totalConsumed"`
	Purchases              []PurchaseResponse `json:"purchases"`
}

// ToPurchaseResponse maps a purchase row to its API shape.
func ToPurchaseResponse(p *repository.Purchase) PurchaseResponse {
	return PurchaseResponse{
		ID:             p.ID,
		Type:           string(p.Type),
		Reference:      p.Reference,
		UnitsPurchased: p.UnitsPurchased,
		UnitsRemaining: p.UnitsRemaining,
		Status:         string(p.Status),
		ExpiresAt:      p.ExpiresAt,
		CreatedAt:      p.CreatedAt,
	}
}
