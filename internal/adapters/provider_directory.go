// Package adapters bridges the module boundaries: each adapter wraps one
// module's repository or service so another module can depend on its own
// narrow interface instead of the concrete type.
package adapters

import (
	"context"

	"github.com/google/uuid"

	accountsrepo "driveassist_backend/internal/accounts/repository"
	appointmentsservice "driveassist_backend/internal/appointments/service"
	leadsservice "driveassist_backend/internal/leads/service"
	"driveassist_backend/platform/apperr"
)

// ProviderDirectory adapts the accounts repository for the leads and
// appointments modules.
type ProviderDirectory struct {
	repo *accountsrepo.Repository
}

func NewProviderDirectory(repo *accountsrepo.Repository) *ProviderDirectory {
	return &ProviderDirectory{repo: repo}
}

// ListCandidates returns the available, verified providers serving the given
// region and specialty, projected to the attributes match ordering needs.
func (a *ProviderDirectory) ListCandidates(ctx context.Context, region, specialty string) ([]leadsservice.Candidate, error) {
	profiles, err := a.repo.ListCandidates(ctx, region, specialty)
	if err != nil {
		return nil, err
	}

	candidates := make([]leadsservice.Candidate, 0, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		candidates = append(candidates, leadsservice.Candidate{
			ProviderID:      p.AccountID,
			BusinessName:    p.BusinessName,
			PriorityListing: p.PriorityListing,
			Rating:          p.Rating,
			CompletedJobs:   p.CompletedJobs,
			Latitude:        p.Latitude,
			Longitude:       p.Longitude,
		})
	}
	return candidates, nil
}

// IsBookable reports whether the provider is currently taking appointments.
// A provider that never completed a profile is simply not bookable.
func (a *ProviderDirectory) IsBookable(ctx context.Context, providerID uuid.UUID) (bool, error) {
	profile, err := a.repo.GetProfile(ctx, providerID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return profile.Available && profile.Verified, nil
}

func (a *ProviderDirectory) IncrementCompletedJobs(ctx context.Context, providerID uuid.UUID) error {
	return a.repo.IncrementCompletedJobs(ctx, providerID)
}

var _ leadsservice.ProviderDirectory = (*ProviderDirectory)(nil)
var _ appointmentsservice.ProviderDirectory = (*ProviderDirectory)(nil)
