package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"driveassist_backend/internal/appointments/domain"
	"driveassist_backend/internal/appointments/repository"
	"driveassist_backend/internal/events"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/redislock"
	"driveassist_backend/platform/settings"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, a *repository.Appointment, offerings []repository.Offering) error
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Appointment, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, status domain.Status) ([]repository.Appointment, error)
	ListOfferings(ctx context.Context, appointmentID uuid.UUID) ([]repository.Offering, error)
	SlotTaken(ctx context.Context, providerID uuid.UUID, date, timeSlot string) (bool, error)
	SlotTakenByOther(ctx context.Context, providerID uuid.UUID, date, timeSlot string, exclude uuid.UUID) (bool, error)
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to domain.Status, at time.Time, actor, reason string) (*repository.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, at time.Time, finalCostCents *int64) (*repository.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, from domain.Status, date, timeSlot string) (*repository.Appointment, error)
}

// ProviderDirectory answers whether a provider can take bookings and tracks
// their completed work. Implemented by the accounts module.
type ProviderDirectory interface {
	IsBookable(ctx context.Context, providerID uuid.UUID) (bool, error)
	IncrementCompletedJobs(ctx context.Context, providerID uuid.UUID) error
}

// EventBus publishes domain events.
type EventBus interface {
	Publish(ctx context.Context, event events.Event)
}

type Service struct {
	store     Store
	directory ProviderDirectory
	locker    redislock.Locker
	settings  *settings.Store
	bus       EventBus
	logger    *logger.Logger
	now       func() time.Time
}

func New(store Store, directory ProviderDirectory, locker redislock.Locker, st *settings.Store, bus EventBus, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		locker:    locker,
		settings:  st,
		bus:       bus,
		logger:    log,
		now:       time.Now,
	}
}

// BookInput describes a booking request.
type BookInput struct {
	RequesterID     uuid.UUID
	ProviderID      uuid.UUID
	VehicleID       *uuid.UUID
	LeadID          *uuid.UUID
	ScheduledDate   string
	ScheduledTime   string
	DurationMinutes int
	Description     string
	Offerings       []OfferingInput
}

// OfferingInput is one requested service line item.
type OfferingInput struct {
	Name            string
	CostCents       int64
	DurationMinutes int
}

// Book reserves a slot. The Redis lock serializes racing bookers of the same
// slot so most conflicts resolve before touching the database; the partial
// unique index catches whatever slips through.
func (s *Service) Book(ctx context.Context, in BookInput) (*repository.Appointment, error) {
	if err := validateSlot(in.ScheduledDate, in.ScheduledTime); err != nil {
		return nil, err
	}
	if !isFuture(in.ScheduledDate, in.ScheduledTime, s.now()) {
		return nil, apperr.Validation("slot must be in the future")
	}

	bookable, err := s.directory.IsBookable(ctx, in.ProviderID)
	if err != nil {
		return nil, err
	}
	if !bookable {
		return nil, apperr.Unavailable("provider is not accepting bookings")
	}

	// Estimated cost and duration come from the attached offerings when
	// there are any; otherwise the caller's duration or the policy default.
	var estimatedCost int64
	var offeringMinutes int
	for _, o := range in.Offerings {
		estimatedCost += o.CostCents
		offeringMinutes += o.DurationMinutes
	}

	duration := in.DurationMinutes
	if offeringMinutes > 0 {
		duration = offeringMinutes
	}
	if duration <= 0 {
		duration = s.settings.Engagement().DefaultSlotMinutes
	}

	appointment := &repository.Appointment{
		ID:                 uuid.New(),
		Reference:          makeReference(),
		RequesterID:        in.RequesterID,
		ProviderID:         in.ProviderID,
		VehicleID:          in.VehicleID,
		LeadID:             in.LeadID,
		Status:             domain.StatusPending,
		ScheduledDate:      in.ScheduledDate,
		ScheduledTime:      in.ScheduledTime,
		DurationMinutes:    duration,
		EstimatedCostCents: estimatedCost,
		Description:        in.Description,
	}

	offerings := make([]repository.Offering, 0, len(in.Offerings))
	for i, o := range in.Offerings {
		offerings = append(offerings, repository.Offering{
			ID:              uuid.New(),
			AppointmentID:   appointment.ID,
			Name:            o.Name,
			CostCents:       o.CostCents,
			DurationMinutes: o.DurationMinutes,
			SortOrder:       i,
		})
	}

	err = s.locker.WithLock(ctx, appointment.SlotKey(), func(ctx context.Context) error {
		taken, err := s.store.SlotTaken(ctx, in.ProviderID, in.ScheduledDate, in.ScheduledTime)
		if err != nil {
			return err
		}
		if taken {
			return apperr.SlotConflict("slot is already booked")
		}
		return s.store.Insert(ctx, appointment, offerings)
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotAcquired) {
			return nil, apperr.SlotConflict("slot is being booked by someone else")
		}
		if apperr.Is(err, apperr.KindConflict) {
			s.logger.SlotConflict(in.ProviderID.String(), in.ScheduledDate, in.ScheduledTime)
		}
		return nil, err
	}

	s.bus.Publish(ctx, events.AppointmentBooked{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: appointment.ID,
		RequesterID:   in.RequesterID,
		ProviderID:    in.ProviderID,
		ScheduledDate: in.ScheduledDate,
		ScheduledTime: in.ScheduledTime,
	})

	return appointment, nil
}

// Confirm moves a pending booking to confirmed. Provider only.
func (s *Service) Confirm(ctx context.Context, appointmentID, providerID uuid.UUID) (*repository.Appointment, error) {
	a, err := s.getForProvider(ctx, appointmentID, providerID)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, a, domain.StatusConfirmed, "", "")
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.AppointmentConfirmed{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: updated.ID,
		RequesterID:   updated.RequesterID,
		ProviderID:    updated.ProviderID,
		Reference:     updated.Reference,
		ScheduledDate: updated.ScheduledDate,
		ScheduledTime: updated.ScheduledTime,
	})
	return updated, nil
}

// Reject declines a pending booking. Provider only.
func (s *Service) Reject(ctx context.Context, appointmentID, providerID uuid.UUID, reason string) (*repository.Appointment, error) {
	a, err := s.getForProvider(ctx, appointmentID, providerID)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, a, domain.StatusRejected, "", reason)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.AppointmentRejected{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: updated.ID,
		RequesterID:   updated.RequesterID,
		ProviderID:    updated.ProviderID,
		Reason:        reason,
	})
	return updated, nil
}

// Start marks a confirmed appointment as underway. Provider only.
func (s *Service) Start(ctx context.Context, appointmentID, providerID uuid.UUID) (*repository.Appointment, error) {
	a, err := s.getForProvider(ctx, appointmentID, providerID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, a, domain.StatusInProgress, "", "")
}

// Complete finishes an in-progress appointment, settles the final cost
// (falling back to the estimate) and credits the provider's completed job
// counter. Provider only.
func (s *Service) Complete(ctx context.Context, appointmentID, providerID uuid.UUID, finalCostCents *int64) (*repository.Appointment, error) {
	a, err := s.getForProvider(ctx, appointmentID, providerID)
	if err != nil {
		return nil, err
	}
	if err := domain.Transition(a.Status, domain.StatusCompleted); err != nil {
		return nil, err
	}

	updated, err := s.store.Complete(ctx, a.ID, s.now(), finalCostCents)
	if err != nil {
		return nil, err
	}

	if err := s.directory.IncrementCompletedJobs(ctx, providerID); err != nil {
		s.logger.Error("failed to increment completed jobs", "provider_id", providerID, "error", err)
	}
	return updated, nil
}

// Cancel withdraws a slot-holding appointment. Either party may cancel.
func (s *Service) Cancel(ctx context.Context, appointmentID, actorID uuid.UUID, reason string) (*repository.Appointment, error) {
	a, err := s.store.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	var cancelledBy string
	switch actorID {
	case a.RequesterID:
		cancelledBy = "requester"
	case a.ProviderID:
		cancelledBy = "provider"
	default:
		return nil, apperr.NotFound("appointment not found")
	}

	updated, err := s.transition(ctx, a, domain.StatusCancelled, cancelledBy, reason)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.AppointmentCancelled{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: updated.ID,
		RequesterID:   updated.RequesterID,
		ProviderID:    updated.ProviderID,
		CancelledBy:   cancelledBy,
		Reason:        reason,
	})
	return updated, nil
}

// MarkNoShow records that the requester never arrived. Administrative,
// allowed from any non-terminal status.
func (s *Service) MarkNoShow(ctx context.Context, appointmentID uuid.UUID, reason string) (*repository.Appointment, error) {
	a, err := s.store.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, a, domain.StatusNoShow, "", reason)
}

// Reschedule moves the appointment to a new slot and resets it to pending.
// Requester only; allowed while the appointment still holds its slot.
func (s *Service) Reschedule(ctx context.Context, appointmentID, requesterID uuid.UUID, date, timeSlot string) (*repository.Appointment, error) {
	if err := validateSlot(date, timeSlot); err != nil {
		return nil, err
	}
	if !isFuture(date, timeSlot, s.now()) {
		return nil, apperr.Validation("slot must be in the future")
	}

	a, err := s.store.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.RequesterID != requesterID {
		return nil, apperr.NotFound("appointment not found")
	}
	if !a.Status.HoldsSlot() {
		return nil, apperr.InvalidTransition(fmt.Sprintf("cannot reschedule a %s appointment", a.Status))
	}

	slotKey := a.ProviderID.String() + ":" + date + ":" + timeSlot
	var updated *repository.Appointment
	err = s.locker.WithLock(ctx, slotKey, func(ctx context.Context) error {
		taken, err := s.store.SlotTakenByOther(ctx, a.ProviderID, date, timeSlot, a.ID)
		if err != nil {
			return err
		}
		if taken {
			return apperr.SlotConflict("slot is already booked")
		}
		updated, err = s.store.Reschedule(ctx, appointmentID, a.Status, date, timeSlot)
		return err
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotAcquired) {
			return nil, apperr.SlotConflict("slot is being booked by someone else")
		}
		return nil, err
	}

	s.bus.Publish(ctx, events.AppointmentRescheduled{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: updated.ID,
		RequesterID:   updated.RequesterID,
		ProviderID:    updated.ProviderID,
		ScheduledDate: date,
		ScheduledTime: timeSlot,
	})
	return updated, nil
}

// Get returns one appointment with its offering line items. Visible only to
// the two parties.
func (s *Service) Get(ctx context.Context, appointmentID, accountID uuid.UUID) (*repository.Appointment, []repository.Offering, error) {
	a, err := s.store.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}
	if a.RequesterID != accountID && a.ProviderID != accountID {
		return nil, nil, apperr.NotFound("appointment not found")
	}
	offerings, err := s.store.ListOfferings(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}
	return a, offerings, nil
}

func (s *Service) List(ctx context.Context, accountID uuid.UUID, status domain.Status) ([]repository.Appointment, error) {
	if status != "" && !domain.IsKnown(status) {
		return nil, apperr.Validation(fmt.Sprintf("unknown appointment status %q", status))
	}
	return s.store.ListByAccount(ctx, accountID, status)
}

func (s *Service) transition(ctx context.Context, a *repository.Appointment, to domain.Status, actor, reason string) (*repository.Appointment, error) {
	if err := domain.Transition(a.Status, to); err != nil {
		return nil, err
	}
	return s.store.UpdateStatusFrom(ctx, a.ID, a.Status, to, s.now(), actor, reason)
}

func (s *Service) getForProvider(ctx context.Context, appointmentID, providerID uuid.UUID) (*repository.Appointment, error) {
	a, err := s.store.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.ProviderID != providerID {
		return nil, apperr.NotFound("appointment not found")
	}
	return a, nil
}

func validateSlot(date, timeSlot string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return apperr.Validation("scheduledDate must be formatted 2006-01-02")
	}
	if _, err := time.Parse("15:04", timeSlot); err != nil {
		return apperr.Validation("scheduledTime must be formatted 15:04")
	}
	return nil
}

func isFuture(date, timeSlot string, now time.Time) bool {
	slot, err := time.ParseInLocation("2006-01-02 15:04", date+" "+timeSlot, now.Location())
	if err != nil {
		return false
	}
	return slot.After(now)
}

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func makeReference() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "APT-" + uuid.NewString()[:6]
	}
	for i := range b {
		b[i] = referenceAlphabet[int(b[i])%len(referenceAlphabet)]
	}
	return "APT-" + string(b)
}
