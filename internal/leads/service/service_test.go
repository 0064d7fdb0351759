package service

import (
	"context"
	"errors"
	"testing"
	"time"

	allowancerepo "driveassist_backend/internal/allowance/repository"
	allowanceservice "driveassist_backend/internal/allowance/service"
	"driveassist_backend/internal/leads/domain"
	"driveassist_backend/internal/leads/repository"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/events"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/settings"

	"github.com/google/uuid"
)

type fakeStore struct {
	leads      map[uuid.UUID]*repository.Lead
	activities []repository.Activity
	insertErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{leads: make(map[uuid.UUID]*repository.Lead)}
}

func (s *fakeStore) Insert(ctx context.Context, l *repository.Lead) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	cp := *l
	s.leads[l.ID] = &cp
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*repository.Lead, error) {
	l, ok := s.leads[id]
	if !ok {
		return nil, apperr.NotFound("lead not found")
	}
	cp := *l
	return &cp, nil
}

func (s *fakeStore) ListByProvider(ctx context.Context, providerID uuid.UUID, status domain.Status) ([]repository.Lead, error) {
	var out []repository.Lead
	for _, l := range s.leads {
		if l.ProviderID == providerID && (status == "" || l.Status == status) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *fakeStore) ListByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) ([]repository.Lead, error) {
	var out []repository.Lead
	for _, l := range s.leads {
		if l.DiagnosisID == diagnosisID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to domain.Status, at time.Time, closeReason string) (*repository.Lead, error) {
	l, ok := s.leads[id]
	if !ok || l.Status != from {
		return nil, apperr.InvalidTransition("lead is no longer " + string(from))
	}
	l.Status = to
	switch to {
	case domain.StatusViewed:
		if l.ViewedAt == nil {
			l.ViewedAt = &at
		}
	case domain.StatusContacted:
		if l.ContactedAt == nil {
			l.ContactedAt = &at
		}
	case domain.StatusConverted:
		if l.ConvertedAt == nil {
			l.ConvertedAt = &at
		}
	case domain.StatusClosed:
		if l.ClosedAt == nil {
			l.ClosedAt = &at
		}
		l.CloseReason = closeReason
	}
	cp := *l
	return &cp, nil
}

func (s *fakeStore) ClearPreview(ctx context.Context, id, providerID uuid.UUID) (*repository.Lead, error) {
	l, ok := s.leads[id]
	if !ok || l.ProviderID != providerID || !l.IsPreview {
		return nil, apperr.Conflict("lead is not a locked preview")
	}
	l.IsPreview = false
	cp := *l
	return &cp, nil
}

func (s *fakeStore) AppendActivity(ctx context.Context, a *repository.Activity) error {
	s.activities = append(s.activities, *a)
	return nil
}

func (s *fakeStore) ListActivities(ctx context.Context, leadID uuid.UUID) ([]repository.Activity, error) {
	var out []repository.Activity
	for _, a := range s.activities {
		if a.LeadID == leadID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeCredits struct {
	remaining map[uuid.UUID]int
	consumed  int
	refunded  int
}

func (c *fakeCredits) ConsumeLead(ctx context.Context, providerID uuid.UUID) (*allowanceservice.Consumption, error) {
	if c.remaining[providerID] <= 0 {
		return nil, apperr.OutOfCredit("no lead credit remaining")
	}
	c.remaining[providerID]--
	c.consumed++
	return &allowanceservice.Consumption{
		AccountID: providerID,
		Kind:      allowancerepo.KindLead,
		Source:    allowancerepo.SourceComplimentary,
	}, nil
}

func (c *fakeCredits) RefundLead(ctx context.Context, r *allowanceservice.Consumption) error {
	c.remaining[r.AccountID]++
	c.refunded++
	return nil
}

type fakeDirectory struct {
	candidates []Candidate
	completed  map[uuid.UUID]int
}

func (d *fakeDirectory) ListCandidates(ctx context.Context, region, specialty string) ([]Candidate, error) {
	return d.candidates, nil
}

func (d *fakeDirectory) IncrementCompletedJobs(ctx context.Context, providerID uuid.UUID) error {
	if d.completed == nil {
		d.completed = make(map[uuid.UUID]int)
	}
	d.completed[providerID]++
	return nil
}

type noopBus struct{}

func (noopBus) Publish(ctx context.Context, event events.Event) {}

func newTestService(t *testing.T, store *fakeStore, credits *fakeCredits, dir *fakeDirectory) *Service {
	t.Helper()

	st, err := settings.NewStore("")
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}
	return New(store, credits, dir, st, noopBus{}, logger.New("development"))
}

func floatPtr(f float64) *float64 { return &f }

func TestMatchProvidersOrdering(t *testing.T) {
	far := Candidate{ProviderID: uuid.New(), Rating: 5.0, Latitude: floatPtr(6.00), Longitude: floatPtr(0.10)}
	near := Candidate{ProviderID: uuid.New(), Rating: 3.0, Latitude: floatPtr(5.56), Longitude: floatPtr(-0.20)}
	priority := Candidate{ProviderID: uuid.New(), PriorityListing: true, Rating: 1.0}
	unlocated := Candidate{ProviderID: uuid.New(), Rating: 4.5}

	dir := &fakeDirectory{candidates: []Candidate{far, near, priority, unlocated}}
	svc := newTestService(t, newFakeStore(), &fakeCredits{}, dir)

	matched, err := svc.MatchProviders(context.Background(), MatchQuery{
		Region:    "Accra",
		Latitude:  floatPtr(5.55),
		Longitude: floatPtr(-0.20),
	})
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	want := []uuid.UUID{priority.ProviderID, near.ProviderID, far.ProviderID, unlocated.ProviderID}
	if len(matched) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(matched))
	}
	for i, id := range want {
		if matched[i].ProviderID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, matched[i].ProviderID)
		}
	}
}

func TestMatchProvidersCapped(t *testing.T) {
	dir := &fakeDirectory{}
	for i := 0; i < 20; i++ {
		dir.candidates = append(dir.candidates, Candidate{ProviderID: uuid.New()})
	}
	svc := newTestService(t, newFakeStore(), &fakeCredits{}, dir)

	matched, err := svc.MatchProviders(context.Background(), MatchQuery{Limit: 3})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matched) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(matched))
	}

	matched, err = svc.MatchProviders(context.Background(), MatchQuery{Limit: 0})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matched) != settings.Defaults().MaxLeadsPerDiagnosis {
		t.Fatalf("expected policy cap %d, got %d", settings.Defaults().MaxLeadsPerDiagnosis, len(matched))
	}
}

func TestCreateLeadConsumesCredit(t *testing.T) {
	providerID := uuid.New()
	credits := &fakeCredits{remaining: map[uuid.UUID]int{providerID: 1}}
	store := newFakeStore()
	svc := newTestService(t, store, credits, &fakeDirectory{})

	lead, credit, err := svc.CreateLead(context.Background(), CreateLeadInput{
		DiagnosisID: uuid.New(),
		RequesterID: uuid.New(),
		ProviderID:  providerID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if lead.IsPreview {
		t.Fatal("funded lead should not be a preview")
	}
	if lead.Status != domain.StatusNew {
		t.Fatalf("new lead should start at new, got %s", lead.Status)
	}
	if credits.consumed != 1 {
		t.Fatalf("expected 1 credit consumed, got %d", credits.consumed)
	}
	if credit == nil || credit.AccountID != providerID || credit.Kind != allowancerepo.KindLead {
		t.Fatalf("expected the provider's lead credit back, got %+v", credit)
	}
}

func TestCreateLeadPreviewWhenOutOfCredit(t *testing.T) {
	providerID := uuid.New()
	store := newFakeStore()
	svc := newTestService(t, store, &fakeCredits{}, &fakeDirectory{})

	lead, credit, err := svc.CreateLead(context.Background(), CreateLeadInput{
		DiagnosisID: uuid.New(),
		RequesterID: uuid.New(),
		ProviderID:  providerID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !lead.IsPreview {
		t.Fatal("unfunded lead should be delivered as preview")
	}
	if credit != nil {
		t.Fatal("a preview consumes nothing to refund")
	}
}

func TestCreateLeadRefundsWhenInsertFails(t *testing.T) {
	providerID := uuid.New()
	credits := &fakeCredits{remaining: map[uuid.UUID]int{providerID: 1}}
	store := newFakeStore()
	store.insertErr = errors.New("leads store down")
	svc := newTestService(t, store, credits, &fakeDirectory{})

	_, _, err := svc.CreateLead(context.Background(), CreateLeadInput{
		DiagnosisID: uuid.New(),
		RequesterID: uuid.New(),
		ProviderID:  providerID,
	})
	if err == nil {
		t.Fatal("expected insert failure to surface")
	}
	if credits.refunded != 1 || credits.remaining[providerID] != 1 {
		t.Fatalf("consumed credit should be restored, refunded=%d remaining=%d",
			credits.refunded, credits.remaining[providerID])
	}
}

func TestCreateLeadSkippedUnderSkipPolicy(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeCredits{}, &fakeDirectory{})

	policy := settings.Defaults()
	policy.FreeLeadPolicy = settings.FreeLeadSkip
	st, err := settings.NewStoreFrom(policy)
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}
	svc.settings = st

	_, _, err = svc.CreateLead(context.Background(), CreateLeadInput{
		DiagnosisID: uuid.New(),
		RequesterID: uuid.New(),
		ProviderID:  uuid.New(),
	})
	if !apperr.Is(err, apperr.KindOutOfCredit) {
		t.Fatalf("expected out of credit under skip policy, got %v", err)
	}
	if len(store.leads) != 0 {
		t.Fatal("skip policy must not create a lead")
	}
}

func TestAdvanceThroughPipeline(t *testing.T) {
	providerID := uuid.New()
	credits := &fakeCredits{remaining: map[uuid.UUID]int{providerID: 1}}
	store := newFakeStore()
	dir := &fakeDirectory{}
	svc := newTestService(t, store, credits, dir)

	lead, _, err := svc.CreateLead(context.Background(), CreateLeadInput{
		DiagnosisID: uuid.New(), RequesterID: uuid.New(), ProviderID: providerID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, to := range []domain.Status{domain.StatusViewed, domain.StatusContacted, domain.StatusConverted} {
		lead, err = svc.Advance(context.Background(), lead.ID, providerID, to, "")
		if err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
		if lead.Status != to {
			t.Fatalf("expected status %s, got %s", to, lead.Status)
		}
	}

	if lead.ViewedAt == nil || lead.ContactedAt == nil || lead.ConvertedAt == nil {
		t.Fatal("stage timestamps should be recorded")
	}
	if dir.completed[providerID] != 1 {
		t.Fatalf("conversion should increment completed jobs once, got %d", dir.completed[providerID])
	}

	if _, err := svc.Advance(context.Background(), lead.ID, providerID, domain.StatusClosed, ""); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("expected invalid transition from terminal status, got %v", err)
	}
}

func TestAdvanceRejectsSkippedStage(t *testing.T) {
	providerID := uuid.New()
	credits := &fakeCredits{remaining: map[uuid.UUID]int{providerID: 1}}
	svc := newTestService(t, newFakeStore(), credits, &fakeDirectory{})

	lead, _, err := svc.CreateLead(context.Background(), CreateLeadInput{
		DiagnosisID: uuid.New(), RequesterID: uuid.New(), ProviderID: providerID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Advance(context.Background(), lead.ID, providerID, domain.StatusConverted, ""); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("expected invalid transition for skipped stage, got %v", err)
	}
}

func TestAdvanceHidesForeignLeads(t *testing.T) {
	providerID := uuid.New()
	credits := &fakeCredits{remaining: map[uuid.UUID]int{providerID: 1}}
	svc := newTestService(t, newFakeStore(), credits, &fakeDirectory{})

	lead, _, err := svc.CreateLead(context.Background(), CreateLeadInput{
		DiagnosisID: uuid.New(), RequesterID: uuid.New(), ProviderID: providerID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Advance(context.Background(), lead.ID, uuid.New(), domain.StatusViewed, ""); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("foreign provider should see not found, got %v", err)
	}
}

func TestUnlockPreviewConsumesCredit(t *testing.T) {
	providerID := uuid.New()
	credits := &fakeCredits{remaining: map[uuid.UUID]int{}}
	store := newFakeStore()
	svc := newTestService(t, store, credits, &fakeDirectory{})

	lead, _, err := svc.CreateLead(context.Background(), CreateLeadInput{
		DiagnosisID: uuid.New(), RequesterID: uuid.New(), ProviderID: providerID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !lead.IsPreview {
		t.Fatal("expected preview lead")
	}

	if _, err := svc.Unlock(context.Background(), lead.ID, providerID); !apperr.Is(err, apperr.KindOutOfCredit) {
		t.Fatalf("unlock without credit should fail, got %v", err)
	}

	credits.remaining[providerID] = 1
	unlocked, err := svc.Unlock(context.Background(), lead.ID, providerID)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if unlocked.IsPreview {
		t.Fatal("unlocked lead should no longer be a preview")
	}

	if _, err := svc.Unlock(context.Background(), lead.ID, providerID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("double unlock should conflict, got %v", err)
	}
}

func TestActivityLogGrows(t *testing.T) {
	providerID := uuid.New()
	credits := &fakeCredits{remaining: map[uuid.UUID]int{providerID: 1}}
	store := newFakeStore()
	svc := newTestService(t, store, credits, &fakeDirectory{})

	lead, _, err := svc.CreateLead(context.Background(), CreateLeadInput{
		DiagnosisID: uuid.New(), RequesterID: uuid.New(), ProviderID: providerID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Advance(context.Background(), lead.ID, providerID, domain.StatusViewed, "opened in app"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	entries, err := svc.ListActivities(context.Background(), lead.ID, providerID)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 activity entries, got %d", len(entries))
	}
	if entries[0].Action != "created" || entries[1].Action != "viewed" {
		t.Fatalf("unexpected activity actions: %s, %s", entries[0].Action, entries[1].Action)
	}
}
