package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"driveassist_backend/internal/appointments/domain"
	"driveassist_backend/internal/appointments/repository"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/events"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/redislock"
	"driveassist_backend/platform/settings"

	"github.com/google/uuid"
)

// fakeStore enforces the same invariants as Postgres: slot exclusivity over
// slot-holding statuses and compare-and-set status updates.
type fakeStore struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*repository.Appointment
	offerings    map[uuid.UUID][]repository.Offering
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		appointments: make(map[uuid.UUID]*repository.Appointment),
		offerings:    make(map[uuid.UUID][]repository.Offering),
	}
}

func (s *fakeStore) slotHeld(providerID uuid.UUID, date, timeSlot string) bool {
	for _, a := range s.appointments {
		if a.ProviderID == providerID && a.ScheduledDate == date && a.ScheduledTime == timeSlot && a.Status.HoldsSlot() {
			return true
		}
	}
	return false
}

func (s *fakeStore) Insert(ctx context.Context, a *repository.Appointment, offerings []repository.Offering) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slotHeld(a.ProviderID, a.ScheduledDate, a.ScheduledTime) {
		return apperr.SlotConflict("slot is already booked")
	}
	cp := *a
	s.appointments[a.ID] = &cp
	s.offerings[a.ID] = append([]repository.Offering(nil), offerings...)
	return nil
}

func (s *fakeStore) ListOfferings(ctx context.Context, appointmentID uuid.UUID) ([]repository.Offering, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.Offering(nil), s.offerings[appointmentID]...), nil
}

func (s *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*repository.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, apperr.NotFound("appointment not found")
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) ListByAccount(ctx context.Context, accountID uuid.UUID, status domain.Status) ([]repository.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []repository.Appointment
	for _, a := range s.appointments {
		if (a.RequesterID == accountID || a.ProviderID == accountID) && (status == "" || a.Status == status) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeStore) SlotTaken(ctx context.Context, providerID uuid.UUID, date, timeSlot string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slotHeld(providerID, date, timeSlot), nil
}

func (s *fakeStore) SlotTakenByOther(ctx context.Context, providerID uuid.UUID, date, timeSlot string, exclude uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.appointments {
		if a.ID != exclude && a.ProviderID == providerID && a.ScheduledDate == date && a.ScheduledTime == timeSlot && a.Status.HoldsSlot() {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to domain.Status, at time.Time, actor, reason string) (*repository.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok || a.Status != from {
		return nil, apperr.InvalidTransition("appointment is no longer " + string(from))
	}
	a.Status = to
	a.StatusReason = reason
	switch to {
	case domain.StatusConfirmed:
		if a.ConfirmedAt == nil {
			a.ConfirmedAt = &at
		}
	case domain.StatusInProgress:
		if a.StartedAt == nil {
			a.StartedAt = &at
		}
	case domain.StatusCompleted:
		if a.CompletedAt == nil {
			a.CompletedAt = &at
		}
	case domain.StatusCancelled:
		a.CancelledBy = actor
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) Complete(ctx context.Context, id uuid.UUID, at time.Time, finalCostCents *int64) (*repository.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok || a.Status != domain.StatusInProgress {
		return nil, apperr.InvalidTransition("appointment is not in progress")
	}
	a.Status = domain.StatusCompleted
	if a.CompletedAt == nil {
		a.CompletedAt = &at
	}
	if finalCostCents != nil {
		cost := *finalCostCents
		a.FinalCostCents = &cost
	} else {
		cost := a.EstimatedCostCents
		a.FinalCostCents = &cost
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) Reschedule(ctx context.Context, id uuid.UUID, from domain.Status, date, timeSlot string) (*repository.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok || a.Status != from {
		return nil, apperr.InvalidTransition("appointment is no longer " + string(from))
	}
	a.ScheduledDate = date
	a.ScheduledTime = timeSlot
	a.Status = domain.StatusPending
	a.ConfirmedAt = nil
	cp := *a
	return &cp, nil
}

type fakeDirectory struct {
	unavailable map[uuid.UUID]bool
	completed   map[uuid.UUID]int
}

func (d *fakeDirectory) IsBookable(ctx context.Context, providerID uuid.UUID) (bool, error) {
	return !d.unavailable[providerID], nil
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

func newTestService(t *testing.T, store *fakeStore, dir *fakeDirectory) *Service {
	t.Helper()

	st, err := settings.NewStore("")
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}
	return New(store, dir, redislock.Noop(), st, noopBus{}, logger.New("development"))
}

func futureDate() string {
	return time.Now().Add(7 * 24 * time.Hour).Format("2006-01-02")
}

func bookOne(t *testing.T, svc *Service, providerID uuid.UUID) *repository.Appointment {
	t.Helper()

	a, err := svc.Book(context.Background(), BookInput{
		RequesterID:   uuid.New(),
		ProviderID:    providerID,
		ScheduledDate: futureDate(),
		ScheduledTime: "10:00",
		Description:   "engine check",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return a
}

func TestBookDefaultsAndPendingStatus(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeDirectory{})

	a := bookOne(t, svc, uuid.New())
	if a.Status != domain.StatusPending {
		t.Fatalf("new booking should be pending, got %s", a.Status)
	}
	if a.DurationMinutes != settings.Defaults().DefaultSlotMinutes {
		t.Fatalf("expected default duration %d, got %d", settings.Defaults().DefaultSlotMinutes, a.DurationMinutes)
	}
	if a.Reference == "" {
		t.Fatal("booking should carry a reference")
	}
}

func TestBookSumsOfferings(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeDirectory{})
	requesterID := uuid.New()

	a, err := svc.Book(context.Background(), BookInput{
		RequesterID:   requesterID,
		ProviderID:    uuid.New(),
		ScheduledDate: futureDate(),
		ScheduledTime: "11:00",
		Offerings: []OfferingInput{
			{Name: "Brake pad replacement", CostCents: 45000, DurationMinutes: 90},
			{Name: "Oil change", CostCents: 12000, DurationMinutes: 30},
		},
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if a.EstimatedCostCents != 57000 {
		t.Fatalf("estimated cost should sum line items, got %d", a.EstimatedCostCents)
	}
	if a.DurationMinutes != 120 {
		t.Fatalf("duration should sum line items, got %d", a.DurationMinutes)
	}

	_, offerings, err := svc.Get(context.Background(), a.ID, requesterID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(offerings) != 2 || offerings[0].Name != "Brake pad replacement" {
		t.Fatalf("offerings not persisted in order: %+v", offerings)
	}
}

func TestCompleteSettlesFinalCost(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeDirectory{})
	providerID := uuid.New()

	toInProgress := func(timeSlot string) *repository.Appointment {
		t.Helper()
		a, err := svc.Book(context.Background(), BookInput{
			RequesterID:   uuid.New(),
			ProviderID:    providerID,
			ScheduledDate: futureDate(),
			ScheduledTime: timeSlot,
			Offerings:     []OfferingInput{{Name: "Diagnostic scan", CostCents: 20000, DurationMinutes: 45}},
		})
		if err != nil {
			t.Fatalf("book: %v", err)
		}
		if _, err := svc.Confirm(context.Background(), a.ID, providerID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if _, err := svc.Start(context.Background(), a.ID, providerID); err != nil {
			t.Fatalf("start: %v", err)
		}
		return a
	}

	a := toInProgress("08:00")
	done, err := svc.Complete(context.Background(), a.ID, providerID, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.FinalCostCents == nil || *done.FinalCostCents != 20000 {
		t.Fatalf("final cost should default to the estimate, got %v", done.FinalCostCents)
	}

	b := toInProgress("12:00")
	actual := int64(25500)
	done, err = svc.Complete(context.Background(), b.ID, providerID, &actual)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.FinalCostCents == nil || *done.FinalCostCents != actual {
		t.Fatalf("final cost should take the provided value, got %v", done.FinalCostCents)
	}
}

func TestBookRejectsTakenSlot(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeDirectory{})
	providerID := uuid.New()

	bookOne(t, svc, providerID)

	_, err := svc.Book(context.Background(), BookInput{
		RequesterID:   uuid.New(),
		ProviderID:    providerID,
		ScheduledDate: futureDate(),
		ScheduledTime: "10:00",
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
}

func TestConcurrentBookingOfSameSlot(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeDirectory{})
	providerID := uuid.New()

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Book(context.Background(), BookInput{
				RequesterID:   uuid.New(),
				ProviderID:    providerID,
				ScheduledDate: futureDate(),
				ScheduledTime: "14:00",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case apperr.Is(err, apperr.KindConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Fatalf("expected exactly 1 booking to win, got %d", successes)
	}
	if conflicts != attempts-1 {
		t.Fatalf("expected %d conflicts, got %d", attempts-1, conflicts)
	}
}

func TestSlotFreedAfterCancellation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeDirectory{})
	providerID := uuid.New()

	a := bookOne(t, svc, providerID)
	if _, err := svc.Cancel(context.Background(), a.ID, a.RequesterID, "changed plans"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Cancelled bookings no longer hold the slot.
	bookOne(t, svc, providerID)
}

func TestBookUnavailableProvider(t *testing.T) {
	providerID := uuid.New()
	dir := &fakeDirectory{unavailable: map[uuid.UUID]bool{providerID: true}}
	svc := newTestService(t, newFakeStore(), dir)

	_, err := svc.Book(context.Background(), BookInput{
		RequesterID:   uuid.New(),
		ProviderID:    providerID,
		ScheduledDate: futureDate(),
		ScheduledTime: "10:00",
	})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
}

func TestBookValidatesSlot(t *testing.T) {
	svc := newTestService(t, newFakeStore(), &fakeDirectory{})

	cases := []struct{ date, timeSlot string }{
		{"01-02-2026", "10:00"},
		{futureDate(), "10am"},
		{"2020-01-01", "10:00"},
	}
	for _, tc := range cases {
		_, err := svc.Book(context.Background(), BookInput{
			RequesterID:   uuid.New(),
			ProviderID:    uuid.New(),
			ScheduledDate: tc.date,
			ScheduledTime: tc.timeSlot,
		})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("slot %s %s: expected validation error, got %v", tc.date, tc.timeSlot, err)
		}
	}
}

func TestFullLifecycle(t *testing.T) {
	store := newFakeStore()
	dir := &fakeDirectory{}
	svc := newTestService(t, store, dir)
	providerID := uuid.New()

	a := bookOne(t, svc, providerID)

	a, err := svc.Confirm(context.Background(), a.ID, providerID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if a.Status != domain.StatusConfirmed || a.ConfirmedAt == nil {
		t.Fatalf("confirm did not record status and timestamp: %+v", a)
	}

	a, err = svc.Start(context.Background(), a.ID, providerID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	a, err = svc.Complete(context.Background(), a.ID, providerID, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if a.Status != domain.StatusCompleted || a.CompletedAt == nil {
		t.Fatalf("complete did not record status and timestamp: %+v", a)
	}
	if dir.completed[providerID] != 1 {
		t.Fatalf("completion should credit provider once, got %d", dir.completed[providerID])
	}

	if _, err := svc.Cancel(context.Background(), a.ID, a.RequesterID, ""); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("cancelling a completed appointment should fail, got %v", err)
	}
}

func TestRejectOnlyFromPending(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeDirectory{})
	providerID := uuid.New()

	a := bookOne(t, svc, providerID)
	if _, err := svc.Confirm(context.Background(), a.ID, providerID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := svc.Reject(context.Background(), a.ID, providerID, "too busy"); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("rejecting a confirmed appointment should fail, got %v", err)
	}
}

func TestNoShowFromAnyActiveStatus(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeDirectory{})
	providerID := uuid.New()

	a := bookOne(t, svc, providerID)
	if _, err := svc.MarkNoShow(context.Background(), a.ID, "did not arrive"); err != nil {
		t.Fatalf("no-show from pending: %v", err)
	}

	b := bookOne(t, svc, providerID)
	if _, err := svc.Confirm(context.Background(), b.ID, providerID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.MarkNoShow(context.Background(), b.ID, ""); err != nil {
		t.Fatalf("no-show from confirmed: %v", err)
	}
}

func TestCancelByStranger(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeDirectory{})

	a := bookOne(t, svc, uuid.New())
	if _, err := svc.Cancel(context.Background(), a.ID, uuid.New(), ""); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("stranger cancelling should see not found, got %v", err)
	}
}

func TestRescheduleResetsToPending(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeDirectory{})
	providerID := uuid.New()

	a := bookOne(t, svc, providerID)
	if _, err := svc.Confirm(context.Background(), a.ID, providerID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	moved, err := svc.Reschedule(context.Background(), a.ID, a.RequesterID, futureDate(), "16:00")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.Status != domain.StatusPending {
		t.Fatalf("rescheduled appointment should await re-confirmation, got %s", moved.Status)
	}
	if moved.ScheduledTime != "16:00" {
		t.Fatalf("slot did not move: %s", moved.ScheduledTime)
	}
	if moved.ConfirmedAt != nil {
		t.Fatal("reschedule should clear the confirmation timestamp")
	}
}

func TestRescheduleIntoOwnSlot(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeDirectory{})
	providerID := uuid.New()

	a := bookOne(t, svc, providerID)
	moved, err := svc.Reschedule(context.Background(), a.ID, a.RequesterID, a.ScheduledDate, a.ScheduledTime)
	if err != nil {
		t.Fatalf("rescheduling into the appointment's own slot should not conflict: %v", err)
	}
	if moved.Status != domain.StatusPending {
		t.Fatalf("expected pending after reschedule, got %s", moved.Status)
	}
}

func TestRescheduleIntoTakenSlot(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeDirectory{})
	providerID := uuid.New()

	blocker, err := svc.Book(context.Background(), BookInput{
		RequesterID:   uuid.New(),
		ProviderID:    providerID,
		ScheduledDate: futureDate(),
		ScheduledTime: "09:00",
	})
	if err != nil {
		t.Fatalf("book blocker: %v", err)
	}
	_ = blocker

	a := bookOne(t, svc, providerID)
	if _, err := svc.Reschedule(context.Background(), a.ID, a.RequesterID, futureDate(), "09:00"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
}
