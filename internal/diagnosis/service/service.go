package service

import (
	"context"
	"sync"
	"time"

	allowancerepo "driveassist_backend/internal/allowance/repository"
	allowanceservice "driveassist_backend/internal/allowance/service"
	"driveassist_backend/internal/diagnosis/engine"
	"driveassist_backend/internal/diagnosis/repository"
	"driveassist_backend/internal/events"
	leadsrepo "driveassist_backend/internal/leads/repository"
	leadsservice "driveassist_backend/internal/leads/service"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const dispatchConcurrency = 4

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, d *repository.Diagnosis) error
	MarkCompleted(ctx context.Context, id uuid.UUID, leadCount int) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Diagnosis, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]repository.Diagnosis, error)
}

// CreditLedger consumes and refunds diagnosis credits.
type CreditLedger interface {
	Consume(ctx context.Context, accountID uuid.UUID, kind allowancerepo.Kind) (*allowanceservice.Consumption, error)
	Refund(ctx context.Context, c *allowanceservice.Consumption) error
}

// LeadDispatcher matches providers and delivers leads. CreateLead returns
// the lead credit it consumed, if any, so a failed engagement can restore it.
type LeadDispatcher interface {
	MatchProviders(ctx context.Context, q leadsservice.MatchQuery) ([]leadsservice.Candidate, error)
	CreateLead(ctx context.Context, in leadsservice.CreateLeadInput) (*leadsrepo.Lead, *allowanceservice.Consumption, error)
	ListByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) ([]leadsrepo.Lead, error)
}

// EventBus publishes domain events.
type EventBus interface {
	Publish(ctx context.Context, event events.Event)
}

// Service orchestrates one engagement: consume a credit, run the diagnostic
// engine, persist the result and fan leads out to matched providers. Every
// step after the consume compensates on failure so a requester is never
// charged for an engagement that produced nothing.
type Service struct {
	store   Store
	ledger  CreditLedger
	leads   LeadDispatcher
	engine  engine.Engine
	bus     EventBus
	logger  *logger.Logger
	timeout time.Duration
}

func New(store Store, ledger CreditLedger, leads LeadDispatcher, eng engine.Engine, bus EventBus, log *logger.Logger) *Service {
	return &Service{
		store:   store,
		ledger:  ledger,
		leads:   leads,
		engine:  eng,
		bus:     bus,
		logger:  log,
		timeout: 60 * time.Second,
	}
}

// SubmitInput is one engagement request.
type SubmitInput struct {
	RequesterID  uuid.UUID
	VehicleID    *uuid.UUID
	Complaint    string
	Region       string
	Latitude     *float64
	Longitude    *float64
	VehicleMake  string
	VehicleModel string
	VehicleYear  int
}

// Submit runs the full engagement. An engine outage is recorded as a failed
// diagnosis with the credit spent. Past that point the row is inserted at
// dispatching, which read endpoints hide, and only flips to completed after
// the leads are out; a failure between those points deletes the row and
// refunds every credit the engagement consumed.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*repository.Diagnosis, []leadsrepo.Lead, error) {
	if len(in.Complaint) < 10 {
		return nil, nil, apperr.Validation("complaint is too short to assess")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	consumption, err := s.ledger.Consume(ctx, in.RequesterID, allowancerepo.KindDiagnosis)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.engine.Diagnose(ctx, engine.Input{
		Complaint:    in.Complaint,
		VehicleMake:  in.VehicleMake,
		VehicleModel: in.VehicleModel,
		VehicleYear:  in.VehicleYear,
	})
	if err != nil {
		s.recordFailure(ctx, in)
		return nil, nil, apperr.Wrap(apperr.KindUnavailable, "diagnostic engine is unavailable", err)
	}

	diagnosis := &repository.Diagnosis{
		ID:                 uuid.New(),
		RequesterID:        in.RequesterID,
		VehicleID:          in.VehicleID,
		Status:             repository.StatusDispatching,
		Complaint:          in.Complaint,
		Region:             in.Region,
		Summary:            result.Summary,
		ProbableCauses:     result.ProbableCauses,
		RecommendedActions: result.RecommendedActions,
		Urgency:            result.Urgency,
		Specialty:          result.Specialty,
		Confidence:         result.Confidence,
	}
	if err := s.store.Insert(ctx, diagnosis); err != nil {
		s.refund(ctx, consumption)
		return nil, nil, err
	}

	dispatched, leadCredits, err := s.dispatch(ctx, diagnosis, in)
	if err != nil {
		s.compensate(ctx, diagnosis.ID, consumption, leadCredits)
		return nil, nil, err
	}

	if err := s.store.MarkCompleted(ctx, diagnosis.ID, len(dispatched)); err != nil {
		s.compensate(ctx, diagnosis.ID, consumption, leadCredits)
		return nil, nil, err
	}
	diagnosis.Status = repository.StatusCompleted
	diagnosis.LeadCount = len(dispatched)

	s.bus.Publish(ctx, events.DiagnosisCompleted{
		BaseEvent:   events.NewBaseEvent(),
		DiagnosisID: diagnosis.ID,
		RequesterID: in.RequesterID,
		Urgency:     diagnosis.Urgency,
		LeadCount:   len(dispatched),
	})

	return diagnosis, dispatched, nil
}

// dispatch fans leads out to matched providers concurrently. Providers
// skipped by the lead policy are not failures; any other error aborts the
// engagement. The credits consumed by leads that did go out are returned
// even on error so the caller can restore them.
func (s *Service) dispatch(ctx context.Context, d *repository.Diagnosis, in SubmitInput) ([]leadsrepo.Lead, []*allowanceservice.Consumption, error) {
	candidates, err := s.leads.MatchProviders(ctx, leadsservice.MatchQuery{
		Region:    in.Region,
		Specialty: d.Specialty,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
	})
	if err != nil {
		return nil, nil, err
	}

	var mu sync.Mutex
	var dispatched []leadsrepo.Lead
	var leadCredits []*allowanceservice.Consumption

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dispatchConcurrency)

	for _, candidate := range candidates {
		providerID := candidate.ProviderID
		g.Go(func() error {
			lead, credit, err := s.leads.CreateLead(gctx, leadsservice.CreateLeadInput{
				DiagnosisID: d.ID,
				RequesterID: d.RequesterID,
				ProviderID:  providerID,
			})
			if err != nil {
				if apperr.Is(err, apperr.KindOutOfCredit) {
					// Skip policy in effect for this provider.
					return nil
				}
				return err
			}

			mu.Lock()
			dispatched = append(dispatched, *lead)
			if credit != nil {
				leadCredits = append(leadCredits, credit)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return dispatched, leadCredits, err
	}
	return dispatched, leadCredits, nil
}

func (s *Service) refund(ctx context.Context, c *allowanceservice.Consumption) {
	if err := s.ledger.Refund(ctx, c); err != nil {
		s.logger.Error("failed to refund credit", "account_id", c.AccountID, "kind", c.Kind, "error", err)
	}
}

// recordFailure keeps an engine outage visible in the requester's history.
// The credit stays spent; the row carries no assessment. The insert runs
// outside the engagement deadline, which an engine timeout may have spent.
func (s *Service) recordFailure(ctx context.Context, in SubmitInput) {
	ctx = context.WithoutCancel(ctx)
	failed := &repository.Diagnosis{
		ID:          uuid.New(),
		RequesterID: in.RequesterID,
		VehicleID:   in.VehicleID,
		Status:      repository.StatusFailed,
		Complaint:   in.Complaint,
		Region:      in.Region,
	}
	if err := s.store.Insert(ctx, failed); err != nil {
		s.logger.Error("failed to record failed diagnosis", "requester_id", in.RequesterID, "error", err)
	}
}

// compensate unwinds a dispatch failure: the hidden row is removed and every
// credit the engagement consumed, the requester's and the providers', goes
// back to its source.
func (s *Service) compensate(ctx context.Context, diagnosisID uuid.UUID, c *allowanceservice.Consumption, leadCredits []*allowanceservice.Consumption) {
	if err := s.store.Delete(ctx, diagnosisID); err != nil {
		s.logger.Error("failed to delete diagnosis after dispatch failure", "diagnosis_id", diagnosisID, "error", err)
	}
	s.refund(ctx, c)
	for _, credit := range leadCredits {
		s.refund(ctx, credit)
	}
}

func (s *Service) Get(ctx context.Context, diagnosisID, requesterID uuid.UUID) (*repository.Diagnosis, error) {
	d, err := s.store.GetByID(ctx, diagnosisID)
	if err != nil {
		return nil, err
	}
	if d.RequesterID != requesterID {
		return nil, apperr.NotFound("diagnosis not found")
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, requesterID uuid.UUID) ([]repository.Diagnosis, error) {
	return s.store.ListByRequester(ctx, requesterID)
}

// ListLeads is the requester's read-only view of the leads their diagnosis
// produced. Ownership is checked the same way Get checks it.
func (s *Service) ListLeads(ctx context.Context, diagnosisID, requesterID uuid.UUID) ([]leadsrepo.Lead, error) {
	if _, err := s.Get(ctx, diagnosisID, requesterID); err != nil {
		return nil, err
	}
	return s.leads.ListByDiagnosis(ctx, diagnosisID)
}
