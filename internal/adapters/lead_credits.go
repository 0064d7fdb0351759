package adapters

import (
	"context"

	"github.com/google/uuid"

	allowancerepo "driveassist_backend/internal/allowance/repository"
	allowanceservice "driveassist_backend/internal/allowance/service"
	leadsservice "driveassist_backend/internal/leads/service"
)

// LeadCredits adapts the allowance service to the lead meter the leads module
// consumes from. The consumption travels back to the caller so an unwound
// engagement can restore the unit to the source that served it.
type LeadCredits struct {
	allowance *allowanceservice.Service
}

func NewLeadCredits(allowance *allowanceservice.Service) *LeadCredits {
	return &LeadCredits{allowance: allowance}
}

func (a *LeadCredits) ConsumeLead(ctx context.Context, providerID uuid.UUID) (*allowanceservice.Consumption, error) {
	return a.allowance.Consume(ctx, providerID, allowancerepo.KindLead)
}

func (a *LeadCredits) RefundLead(ctx context.Context, c *allowanceservice.Consumption) error {
	return a.allowance.Refund(ctx, c)
}

var _ leadsservice.LeadCredits = (*LeadCredits)(nil)
