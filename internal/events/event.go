// Package events defines every domain event the modules publish, in one
// place so subscribers can see the full vocabulary.
package events

import (
	"time"

	"driveassist_backend/platform/events"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Accounts Domain Events
// =============================================================================

// AccountRegistered is published when a requester or provider account is created.
type AccountRegistered struct {
	BaseEvent
	AccountID uuid.UUID `json:"accountId"`
	Role      string    `json:"role"`
	Email     string    `json:"email"`
}

func (e AccountRegistered) EventName() string { return "accounts.registered" }

// =============================================================================
// Allowance Domain Events
// =============================================================================

// PurchaseGranted is published when a payment callback credits an account.
type PurchaseGranted struct {
	BaseEvent
	AccountID uuid.UUID `json:"accountId"`
	Kind      string    `json:"kind"`
	Units     int       `json:"units"`
	Reference string    `json:"reference"`
}

func (e PurchaseGranted) EventName() string { return "allowance.purchase.granted" }

// =============================================================================
// Diagnosis Domain Events
// =============================================================================

// DiagnosisCompleted is published after a diagnosis is persisted and its
// leads are dispatched.
type DiagnosisCompleted struct {
	BaseEvent
	DiagnosisID uuid.UUID `json:"diagnosisId"`
	RequesterID uuid.UUID `json:"requesterId"`
	Urgency     string    `json:"urgency"`
	LeadCount   int       `json:"leadCount"`
}

func (e DiagnosisCompleted) EventName() string { return "diagnosis.completed" }

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published when the pipeline introduces a diagnosis to a provider.
type LeadCreated struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	DiagnosisID uuid.UUID `json:"diagnosisId"`
	ProviderID  uuid.UUID `json:"providerId"`
	IsPreview   bool      `json:"isPreview"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadConverted is published when a provider converts a lead into a job.
type LeadConverted struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	ProviderID uuid.UUID `json:"providerId"`
}

func (e LeadConverted) EventName() string { return "leads.lead.converted" }

// =============================================================================
// Appointments Domain Events
// =============================================================================

// AppointmentBooked is published when a booking lands in pending.
type AppointmentBooked struct {
	BaseEvent
	AppointmentID uuid.UUID `json:"appointmentId"`
	RequesterID   uuid.UUID `json:"requesterId"`
	ProviderID    uuid.UUID `json:"providerId"`
	ScheduledDate string    `json:"scheduledDate"`
	ScheduledTime string    `json:"scheduledTime"`
}

func (e AppointmentBooked) EventName() string { return "appointments.booked" }

// AppointmentConfirmed is published when a provider confirms a pending booking.
type AppointmentConfirmed struct {
	BaseEvent
	AppointmentID uuid.UUID `json:"appointmentId"`
	RequesterID   uuid.UUID `json:"requesterId"`
	ProviderID    uuid.UUID `json:"providerId"`
	Reference     string    `json:"reference"`
	ScheduledDate string    `json:"scheduledDate"`
	ScheduledTime string    `json:"scheduledTime"`
}

func (e AppointmentConfirmed) EventName() string { return "appointments.confirmed" }

// AppointmentCancelled is published when either party cancels.
type AppointmentCancelled struct {
	BaseEvent
	AppointmentID uuid.UUID `json:"appointmentId"`
	RequesterID   uuid.UUID `json:"requesterId"`
	ProviderID    uuid.UUID `json:"providerId"`
	CancelledBy   string    `json:"cancelledBy"`
	Reason        string    `json:"reason"`
}

func (e AppointmentCancelled) EventName() string { return "appointments.cancelled" }

// AppointmentRejected is published when a provider declines a pending booking.
type AppointmentRejected struct {
	BaseEvent
	AppointmentID uuid.UUID `json:"appointmentId"`
	RequesterID   uuid.UUID `json:"requesterId"`
	ProviderID    uuid.UUID `json:"providerId"`
	Reason        string    `json:"reason"`
}

func (e AppointmentRejected) EventName() string { return "appointments.rejected" }

// AppointmentRescheduled is published when a booking moves to a new slot.
type AppointmentRescheduled struct {
	BaseEvent
	AppointmentID uuid.UUID `json:"appointmentId"`
	RequesterID   uuid.UUID `json:"requesterId"`
	ProviderID    uuid.UUID `json:"providerId"`
	ScheduledDate string    `json:"scheduledDate"`
	ScheduledTime string    `json:"scheduledTime"`
}

func (e AppointmentRescheduled) EventName() string { return "appointments.rescheduled" }

// AppointmentReminderDue is re-published by the worker when a scheduled
// reminder task fires.
type AppointmentReminderDue struct {
	BaseEvent
	AppointmentID uuid.UUID `json:"appointmentId"`
	OccursAt      time.Time `json:"occursAt"`
}

func (e AppointmentReminderDue) EventName() string { return "appointments.reminder.due" }
