package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	allowanceservice "driveassist_backend/internal/allowance/service"
	"driveassist_backend/internal/events"
	"driveassist_backend/internal/leads/domain"
	"driveassist_backend/internal/leads/repository"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/settings"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, l *repository.Lead) error
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Lead, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, status domain.Status) ([]repository.Lead, error)
	ListByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) ([]repository.Lead, error)
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to domain.Status, at time.Time, closeReason string) (*repository.Lead, error)
	ClearPreview(ctx context.Context, id, providerID uuid.UUID) (*repository.Lead, error)
	AppendActivity(ctx context.Context, a *repository.Activity) error
	ListActivities(ctx context.Context, leadID uuid.UUID) ([]repository.Activity, error)
}

// LeadCredits consumes one lead credit from a provider's meter. The returned
// consumption identifies the source the unit came from so RefundLead can put
// it back when a lead does not survive.
type LeadCredits interface {
	ConsumeLead(ctx context.Context, providerID uuid.UUID) (*allowanceservice.Consumption, error)
	RefundLead(ctx context.Context, c *allowanceservice.Consumption) error
}

// Candidate is a provider eligible to receive leads, with the attributes
// match ordering needs.
type Candidate struct {
	ProviderID      uuid.UUID
	BusinessName    string
	PriorityListing bool
	Rating          float64
	CompletedJobs   int
	Latitude        *float64
	Longitude       *float64
}

// ProviderDirectory is implemented by the accounts module.
type ProviderDirectory interface {
	ListCandidates(ctx context.Context, region, specialty string) ([]Candidate, error)
	IncrementCompletedJobs(ctx context.Context, providerID uuid.UUID) error
}

// EventBus publishes domain events.
type EventBus interface {
	Publish(ctx context.Context, event events.Event)
}

type Service struct {
	store     Store
	credits   LeadCredits
	directory ProviderDirectory
	settings  *settings.Store
	bus       EventBus
	logger    *logger.Logger
	now       func() time.Time
}

func New(store Store, credits LeadCredits, directory ProviderDirectory, st *settings.Store, bus EventBus, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		credits:   credits,
		directory: directory,
		settings:  st,
		bus:       bus,
		logger:    log,
		now:       time.Now,
	}
}

// MatchQuery narrows the candidate pool for one diagnosis.
type MatchQuery struct {
	Region    string
	Specialty string
	Latitude  *float64
	Longitude *float64
	Limit     int
}

// MatchProviders is a pure read: it selects and orders eligible providers
// without consuming credits or creating leads. Priority listings come first,
// then closest, then best rated, then most experienced.
func (s *Service) MatchProviders(ctx context.Context, q MatchQuery) ([]Candidate, error) {
	candidates, err := s.directory.ListCandidates(ctx, q.Region, q.Specialty)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.PriorityListing != b.PriorityListing {
			return a.PriorityListing
		}
		da, db := distanceTo(q, a), distanceTo(q, b)
		if da != db {
			return da < db
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.CompletedJobs > b.CompletedJobs
	})

	limit := q.Limit
	max := s.settings.Engagement().MaxLeadsPerDiagnosis
	if limit <= 0 || limit > max {
		limit = max
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// distanceTo returns the haversine distance in kilometers, or +Inf when
// either side has no coordinates so located providers sort first.
func distanceTo(q MatchQuery, c Candidate) float64 {
	if q.Latitude == nil || q.Longitude == nil || c.Latitude == nil || c.Longitude == nil {
		return math.Inf(1)
	}

	const earthRadiusKm = 6371.0
	lat1 := *q.Latitude * math.Pi / 180
	lat2 := *c.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (*c.Longitude - *q.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// CreateLeadInput introduces one diagnosis to one provider.
type CreateLeadInput struct {
	DiagnosisID uuid.UUID
	RequesterID uuid.UUID
	ProviderID  uuid.UUID
}

// ErrSkipped marks a provider silently passed over under the skip policy.
var errSkipped = apperr.OutOfCredit("provider has no lead credit and previews are disabled")

// CreateLead consumes one lead credit from the provider and delivers the
// lead. A provider without credit gets a masked preview or is skipped,
// depending on the configured policy. The consumed credit, nil for a
// preview, is returned so a failed engagement can restore it.
func (s *Service) CreateLead(ctx context.Context, in CreateLeadInput) (*repository.Lead, *allowanceservice.Consumption, error) {
	credit, err := s.credits.ConsumeLead(ctx, in.ProviderID)
	if err != nil {
		if !apperr.Is(err, apperr.KindOutOfCredit) {
			return nil, nil, err
		}
		if s.settings.Engagement().FreeLeadPolicy == settings.FreeLeadSkip {
			return nil, nil, errSkipped
		}
		credit = nil
	}

	lead := &repository.Lead{
		ID:          uuid.New(),
		DiagnosisID: in.DiagnosisID,
		RequesterID: in.RequesterID,
		ProviderID:  in.ProviderID,
		Status:      domain.StatusNew,
		IsPreview:   credit == nil,
	}
	if err := s.store.Insert(ctx, lead); err != nil {
		s.refundLead(ctx, credit)
		return nil, nil, err
	}

	s.appendActivity(ctx, lead.ID, in.RequesterID, "created", "")

	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      lead.ID,
		DiagnosisID: in.DiagnosisID,
		ProviderID:  in.ProviderID,
		IsPreview:   lead.IsPreview,
	})

	return lead, credit, nil
}

// Advance moves a provider's lead one stage forward, or closes it from any
// non-terminal stage. Timestamps are recorded once; replays lose the status
// guard and surface as InvalidTransition.
func (s *Service) Advance(ctx context.Context, leadID, providerID uuid.UUID, to domain.Status, note string) (*repository.Lead, error) {
	lead, err := s.getOwned(ctx, leadID, providerID)
	if err != nil {
		return nil, err
	}

	if err := domain.Advance(lead.Status, to); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateStatusFrom(ctx, leadID, lead.Status, to, s.now(), note)
	if err != nil {
		return nil, err
	}

	s.appendActivity(ctx, leadID, providerID, string(to), note)

	if to == domain.StatusConverted {
		if err := s.directory.IncrementCompletedJobs(ctx, providerID); err != nil {
			s.logger.Error("failed to increment completed jobs", "provider_id", providerID, "error", err)
		}
		s.bus.Publish(ctx, events.LeadConverted{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     leadID,
			ProviderID: providerID,
		})
	}

	return updated, nil
}

// Unlock converts a preview lead into a full lead by consuming a credit now.
func (s *Service) Unlock(ctx context.Context, leadID, providerID uuid.UUID) (*repository.Lead, error) {
	lead, err := s.getOwned(ctx, leadID, providerID)
	if err != nil {
		return nil, err
	}
	if !lead.IsPreview {
		return nil, apperr.Conflict("lead is not a locked preview")
	}

	credit, err := s.credits.ConsumeLead(ctx, providerID)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.ClearPreview(ctx, leadID, providerID)
	if err != nil {
		s.refundLead(ctx, credit)
		return nil, err
	}

	s.appendActivity(ctx, leadID, providerID, "unlocked", "")
	return updated, nil
}

func (s *Service) GetLead(ctx context.Context, leadID, providerID uuid.UUID) (*repository.Lead, error) {
	return s.getOwned(ctx, leadID, providerID)
}

func (s *Service) ListForProvider(ctx context.Context, providerID uuid.UUID, status domain.Status) ([]repository.Lead, error) {
	if status != "" && !domain.IsKnown(status) {
		return nil, apperr.Validation(fmt.Sprintf("unknown lead status %q", status))
	}
	return s.store.ListByProvider(ctx, providerID, status)
}

func (s *Service) ListByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) ([]repository.Lead, error) {
	return s.store.ListByDiagnosis(ctx, diagnosisID)
}

func (s *Service) ListActivities(ctx context.Context, leadID, providerID uuid.UUID) ([]repository.Activity, error) {
	if _, err := s.getOwned(ctx, leadID, providerID); err != nil {
		return nil, err
	}
	return s.store.ListActivities(ctx, leadID)
}

func (s *Service) getOwned(ctx context.Context, leadID, providerID uuid.UUID) (*repository.Lead, error) {
	lead, err := s.store.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.ProviderID != providerID {
		// Not-found hides other providers' leads.
		return nil, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (s *Service) refundLead(ctx context.Context, c *allowanceservice.Consumption) {
	if c == nil {
		return
	}
	if err := s.credits.RefundLead(ctx, c); err != nil {
		s.logger.Error("failed to refund lead credit", "provider_id", c.AccountID, "error", err)
	}
}

func (s *Service) appendActivity(ctx context.Context, leadID, actorID uuid.UUID, action, note string) {
	err := s.store.AppendActivity(ctx, &repository.Activity{
		ID:      uuid.New(),
		LeadID:  leadID,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
	if err != nil {
		s.logger.Error("failed to append lead activity", "lead_id", leadID, "error", err)
	}
}
