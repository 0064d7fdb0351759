// Package notification turns domain events into queued outbox records and
// delivers them by email. Enqueue and delivery are separate steps so a slow
// or failing mail server never blocks the publishing request.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	qrcode "github.com/skip2/go-qrcode"

	accountsrepo "driveassist_backend/internal/accounts/repository"
	appointmentsrepo "driveassist_backend/internal/appointments/repository"
	diagnosisrepo "driveassist_backend/internal/diagnosis/repository"
	"driveassist_backend/internal/email"
	"driveassist_backend/internal/events"
	"driveassist_backend/internal/notification/outbox"
	"driveassist_backend/platform/logger"
)

const (
	templateWelcome              = "welcome"
	templatePurchaseReceipt      = "purchase_receipt"
	templateLeadReceived         = "lead_received"
	templateAppointmentBooked    = "appointment_booked"
	templateAppointmentConfirmed = "appointment_confirmed"
	templateAppointmentRejected  = "appointment_rejected"
	templateAppointmentCancelled = "appointment_cancelled"
	templateAppointmentReminder  = "appointment_reminder"

	maxDeliveryAttempts = 5
)

// AccountReader resolves recipient addresses and provider display names.
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*accountsrepo.Account, error)
	GetProfile(ctx context.Context, accountID uuid.UUID) (*accountsrepo.ProviderProfile, error)
}

// DiagnosisReader hydrates lead notifications at delivery time.
type DiagnosisReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*diagnosisrepo.Diagnosis, error)
}

// AppointmentReader hydrates appointment reminders at delivery time.
type AppointmentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointmentsrepo.Appointment, error)
}

// outboxStore is the queue surface the module writes to and drains.
type outboxStore interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
	ClaimPending(ctx context.Context, limit int) ([]outbox.Record, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	Retry(ctx context.Context, id uuid.UUID, lastError string, delay time.Duration) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

type Module struct {
	outbox       outboxStore
	sender       email.Sender
	accounts     AccountReader
	diagnoses    DiagnosisReader
	appointments AppointmentReader
	log          *logger.Logger
}

func New(pool *pgxpool.Pool, sender email.Sender, accounts AccountReader, diagnoses DiagnosisReader, appointments AppointmentReader, log *logger.Logger) *Module {
	return &Module{
		outbox:       outbox.New(pool),
		sender:       sender,
		accounts:     accounts,
		diagnoses:    diagnoses,
		appointments: appointments,
		log:          log,
	}
}

type subscriber interface {
	Subscribe(eventName string, handler events.Handler)
}

// RegisterHandlers subscribes the module to the domain events it delivers
// mail for.
func (m *Module) RegisterHandlers(bus subscriber) {
	bus.Subscribe(events.AccountRegistered{}.EventName(), m)
	bus.Subscribe(events.PurchaseGranted{}.EventName(), m)
	bus.Subscribe(events.LeadCreated{}.EventName(), m)
	bus.Subscribe(events.AppointmentBooked{}.EventName(), m)
	bus.Subscribe(events.AppointmentConfirmed{}.EventName(), m)
	bus.Subscribe(events.AppointmentRejected{}.EventName(), m)
	bus.Subscribe(events.AppointmentCancelled{}.EventName(), m)
	bus.Subscribe(events.AppointmentReminderDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes domain events to outbox enqueues.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.AccountRegistered:
		return m.enqueue(ctx, e.AccountID, templateWelcome, welcomePayload{Role: e.Role})
	case events.PurchaseGranted:
		return m.enqueue(ctx, e.AccountID, templatePurchaseReceipt, purchaseReceiptPayload{
			Kind:      e.Kind,
			Units:     e.Units,
			Reference: e.Reference,
		})
	case events.LeadCreated:
		return m.enqueue(ctx, e.ProviderID, templateLeadReceived, leadReceivedPayload{
			LeadID:      e.LeadID,
			DiagnosisID: e.DiagnosisID,
			IsPreview:   e.IsPreview,
		})
	case events.AppointmentBooked:
		return m.enqueue(ctx, e.RequesterID, templateAppointmentBooked, appointmentPayload{
			AppointmentID: e.AppointmentID,
			ProviderID:    e.ProviderID,
			Date:          e.ScheduledDate,
			TimeSlot:      e.ScheduledTime,
		})
	case events.AppointmentConfirmed:
		return m.enqueue(ctx, e.RequesterID, templateAppointmentConfirmed, appointmentPayload{
			AppointmentID: e.AppointmentID,
			ProviderID:    e.ProviderID,
			Reference:     e.Reference,
			Date:          e.ScheduledDate,
			TimeSlot:      e.ScheduledTime,
		})
	case events.AppointmentRejected:
		return m.enqueue(ctx, e.RequesterID, templateAppointmentRejected, appointmentPayload{
			AppointmentID: e.AppointmentID,
			ProviderID:    e.ProviderID,
			Reason:        e.Reason,
		})
	case events.AppointmentCancelled:
		return m.enqueue(ctx, e.RequesterID, templateAppointmentCancelled, appointmentPayload{
			AppointmentID: e.AppointmentID,
			ProviderID:    e.ProviderID,
			CancelledBy:   e.CancelledBy,
		})
	case events.AppointmentReminderDue:
		return m.enqueueReminder(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

type welcomePayload struct {
	Role string `json:"role"`
}

type purchaseReceiptPayload struct {
	Kind      string `json:"kind"`
	Units     int    `json:"units"`
	Reference string `json:"reference"`
}

type leadReceivedPayload struct {
	LeadID      uuid.UUID `json:"leadId"`
	DiagnosisID uuid.UUID `json:"diagnosisId"`
	IsPreview   bool      `json:"isPreview"`
}

type appointmentPayload struct {
	AppointmentID uuid.UUID `json:"appointmentId"`
	ProviderID    uuid.UUID `json:"providerId"`
	Reference     string    `json:"reference,omitempty"`
	Date          string    `json:"date,omitempty"`
	TimeSlot      string    `json:"timeSlot,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	CancelledBy   string    `json:"cancelledBy,omitempty"`
}

func (m *Module) enqueue(ctx context.Context, accountID uuid.UUID, template string, payload any) error {
	_, err := m.outbox.Insert(ctx, outbox.InsertParams{
		AccountID: accountID,
		Template:  template,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", template, err)
	}
	return nil
}

func (m *Module) enqueueReminder(ctx context.Context, e events.AppointmentReminderDue) error {
	appt, err := m.appointments.GetByID(ctx, e.AppointmentID)
	if err != nil {
		return fmt.Errorf("reminder lookup: %w", err)
	}
	return m.enqueue(ctx, appt.RequesterID, templateAppointmentReminder, appointmentPayload{
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		Reference:     appt.Reference,
		Date:          appt.ScheduledDate,
		TimeSlot:      appt.ScheduledTime,
	})
}

// DispatchPending claims due outbox records and delivers them. Failures go
// back to pending with a backoff until the attempt limit is reached.
func (m *Module) DispatchPending(ctx context.Context, limit int) (int, error) {
	records, err := m.outbox.ClaimPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for i := range records {
		rec := &records[i]
		if err := m.deliver(ctx, rec); err != nil {
			m.log.Error("notification delivery failed",
				"id", rec.ID, "template", rec.Template, "attempt", rec.Attempts, "error", err)
			if rec.Attempts >= maxDeliveryAttempts {
				_ = m.outbox.MarkFailed(ctx, rec.ID, err.Error())
			} else {
				backoff := time.Duration(rec.Attempts) * time.Minute
				_ = m.outbox.Retry(ctx, rec.ID, err.Error(), backoff)
			}
			continue
		}
		if err := m.outbox.MarkSucceeded(ctx, rec.ID); err != nil {
			m.log.Error("mark notification succeeded", "id", rec.ID, "error", err)
		}
		delivered++
	}
	return delivered, nil
}

func (m *Module) deliver(ctx context.Context, rec *outbox.Record) error {
	account, err := m.accounts.GetByID(ctx, rec.AccountID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	switch rec.Template {
	case templateWelcome:
		return m.sender.SendWelcomeEmail(ctx, account.Email, account.FullName)

	case templatePurchaseReceipt:
		var p purchaseReceiptPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return m.sender.SendPurchaseReceiptEmail(ctx, account.Email, p.Kind, p.Units, p.Reference)

	case templateLeadReceived:
		var p leadReceivedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		diag, err := m.diagnoses.GetByID(ctx, p.DiagnosisID)
		if err != nil {
			return fmt.Errorf("resolve diagnosis: %w", err)
		}
		summary := diag.Summary
		if p.IsPreview {
			summary = "Unlock this lead to see the full assessment."
		}
		return m.sender.SendLeadReceivedEmail(ctx, account.Email, diag.Region, diag.Specialty, summary)

	case templateAppointmentBooked:
		p, providerName, err := m.appointmentContext(ctx, rec.Payload)
		if err != nil {
			return err
		}
		return m.sender.SendAppointmentBookedEmail(ctx, account.Email, providerName, p.Reference, p.Date, p.TimeSlot)

	case templateAppointmentConfirmed:
		p, providerName, err := m.appointmentContext(ctx, rec.Payload)
		if err != nil {
			return err
		}
		attachments, err := m.checkInAttachment(p.Reference)
		if err != nil {
			m.log.Warn("qr code generation failed", "reference", p.Reference, "error", err)
			attachments = nil
		}
		return m.sender.SendAppointmentConfirmedEmail(ctx, account.Email, providerName, p.Reference, p.Date, p.TimeSlot, attachments...)

	case templateAppointmentRejected:
		p, providerName, err := m.appointmentContext(ctx, rec.Payload)
		if err != nil {
			return err
		}
		return m.sender.SendAppointmentRejectedEmail(ctx, account.Email, providerName, p.Reference, p.Reason)

	case templateAppointmentCancelled:
		var p appointmentPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return m.sender.SendAppointmentCancelledEmail(ctx, account.Email, p.Reference, p.CancelledBy)

	case templateAppointmentReminder:
		p, providerName, err := m.appointmentContext(ctx, rec.Payload)
		if err != nil {
			return err
		}
		return m.sender.SendAppointmentReminderEmail(ctx, account.Email, providerName, p.Reference, p.Date, p.TimeSlot)

	default:
		return fmt.Errorf("unknown template %q", rec.Template)
	}
}

// appointmentContext decodes an appointment payload and resolves the provider
// display name, backfilling the reference from the appointment row when the
// payload predates confirmation.
func (m *Module) appointmentContext(ctx context.Context, payload json.RawMessage) (appointmentPayload, string, error) {
	var p appointmentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, "", fmt.Errorf("decode payload: %w", err)
	}

	if p.Reference == "" {
		if appt, err := m.appointments.GetByID(ctx, p.AppointmentID); err == nil {
			p.Reference = appt.Reference
		}
	}

	providerName := "the provider"
	if profile, err := m.accounts.GetProfile(ctx, p.ProviderID); err == nil && profile.BusinessName != "" {
		providerName = profile.BusinessName
	}
	return p, providerName, nil
}

// checkInAttachment renders the appointment reference as a QR code PNG for
// check-in at the provider.
func (m *Module) checkInAttachment(reference string) ([]email.Attachment, error) {
	if reference == "" {
		return nil, nil
	}
	png, err := qrcode.Encode(reference, qrcode.Medium, 256)
	if err != nil {
		return nil, err
	}
	return []email.Attachment{{
		Content:  png,
		FileName: "checkin-" + reference + ".png",
		MIMEType: "image/png",
	}}, nil
}

var _ events.Handler = (*Module)(nil)
