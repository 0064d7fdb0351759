package notification

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	accountsrepo "driveassist_backend/internal/accounts/repository"
	appointmentsrepo "driveassist_backend/internal/appointments/repository"
	diagnosisrepo "driveassist_backend/internal/diagnosis/repository"
	"driveassist_backend/internal/email"
	"driveassist_backend/internal/events"
	"driveassist_backend/internal/notification/outbox"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/logger"

	"github.com/google/uuid"
)

const testRecipient = "provider@example.com"

type fakeOutbox struct {
	records   []outbox.Record
	succeeded []uuid.UUID
	retried   []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeOutbox) Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error) {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, err
	}
	rec := outbox.Record{
		ID:        uuid.New(),
		AccountID: p.AccountID,
		Template:  p.Template,
		Payload:   payload,
		Status:    outbox.StatusPending,
	}
	f.records = append(f.records, rec)
	return rec.ID, nil
}

func (f *fakeOutbox) ClaimPending(ctx context.Context, limit int) ([]outbox.Record, error) {
	n := len(f.records)
	if n > limit {
		n = limit
	}
	claimed := make([]outbox.Record, n)
	copy(claimed, f.records[:n])
	for i := range claimed {
		claimed[i].Attempts++
	}
	return claimed, nil
}

func (f *fakeOutbox) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	f.succeeded = append(f.succeeded, id)
	return nil
}

func (f *fakeOutbox) Retry(ctx context.Context, id uuid.UUID, lastError string, delay time.Duration) error {
	f.retried = append(f.retried, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeAccounts struct {
	profile *accountsrepo.ProviderProfile
}

func (f *fakeAccounts) GetByID(ctx context.Context, id uuid.UUID) (*accountsrepo.Account, error) {
	return &accountsrepo.Account{ID: id, Email: testRecipient, FullName: "Kofi Mensah"}, nil
}

func (f *fakeAccounts) GetProfile(ctx context.Context, accountID uuid.UUID) (*accountsrepo.ProviderProfile, error) {
	if f.profile == nil {
		return nil, apperr.NotFound("provider profile not found")
	}
	return f.profile, nil
}

type fakeDiagnoses struct {
	diagnosis *diagnosisrepo.Diagnosis
}

func (f *fakeDiagnoses) GetByID(ctx context.Context, id uuid.UUID) (*diagnosisrepo.Diagnosis, error) {
	if f.diagnosis == nil {
		return nil, apperr.NotFound("diagnosis not found")
	}
	return f.diagnosis, nil
}

type fakeAppointments struct {
	appointment *appointmentsrepo.Appointment
}

func (f *fakeAppointments) GetByID(ctx context.Context, id uuid.UUID) (*appointmentsrepo.Appointment, error) {
	if f.appointment == nil {
		return nil, apperr.NotFound("appointment not found")
	}
	return f.appointment, nil
}

type testSender struct {
	leadCalls      int
	leadSummary    string
	confirmedCalls int
	attachments    []email.Attachment
	failWith       error
}

func (s *testSender) SendWelcomeEmail(context.Context, string, string) error { return nil }
func (s *testSender) SendAppointmentBookedEmail(context.Context, string, string, string, string, string) error {
	return nil
}
func (s *testSender) SendAppointmentConfirmedEmail(_ context.Context, _, _, _, _, _ string, attachments ...email.Attachment) error {
	s.confirmedCalls++
	s.attachments = attachments
	return s.failWith
}
func (s *testSender) SendAppointmentRejectedEmail(context.Context, string, string, string, string) error {
	return nil
}
func (s *testSender) SendAppointmentCancelledEmail(context.Context, string, string, string) error {
	return nil
}
func (s *testSender) SendAppointmentReminderEmail(context.Context, string, string, string, string, string) error {
	return nil
}
func (s *testSender) SendLeadReceivedEmail(_ context.Context, _, _, _ string, summary string) error {
	s.leadCalls++
	s.leadSummary = summary
	return s.failWith
}
func (s *testSender) SendPurchaseReceiptEmail(context.Context, string, string, int, string) error {
	return nil
}

func newTestModule(ob *fakeOutbox, sender *testSender, accounts *fakeAccounts, diagnoses *fakeDiagnoses, appointments *fakeAppointments) *Module {
	return &Module{
		outbox:       ob,
		sender:       sender,
		accounts:     accounts,
		diagnoses:    diagnoses,
		appointments: appointments,
		log:          logger.New("development"),
	}
}

func TestLeadCreatedEnqueuesOutboxRecord(t *testing.T) {
	ob := &fakeOutbox{}
	m := newTestModule(ob, &testSender{}, &fakeAccounts{}, &fakeDiagnoses{}, &fakeAppointments{})
	providerID := uuid.New()

	err := m.Handle(context.Background(), events.LeadCreated{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      uuid.New(),
		DiagnosisID: uuid.New(),
		ProviderID:  providerID,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(ob.records) != 1 {
		t.Fatalf("expected one queued record, got %d", len(ob.records))
	}
	rec := ob.records[0]
	if rec.Template != templateLeadReceived || rec.AccountID != providerID {
		t.Fatalf("unexpected record: template=%s account=%s", rec.Template, rec.AccountID)
	}
}

func TestDispatchDeliversLeadEmail(t *testing.T) {
	ob := &fakeOutbox{}
	sender := &testSender{}
	diagnoses := &fakeDiagnoses{diagnosis: &diagnosisrepo.Diagnosis{
		ID:        uuid.New(),
		Region:    "Greater Accra",
		Specialty: "mechanical",
		Summary:   "Worn brake pads, replace front set.",
	}}
	m := newTestModule(ob, sender, &fakeAccounts{}, diagnoses, &fakeAppointments{})

	err := m.Handle(context.Background(), events.LeadCreated{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      uuid.New(),
		DiagnosisID: diagnoses.diagnosis.ID,
		ProviderID:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	delivered, err := m.DispatchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if delivered != 1 || sender.leadCalls != 1 {
		t.Fatalf("expected one delivery, got delivered=%d calls=%d", delivered, sender.leadCalls)
	}
	if sender.leadSummary != diagnoses.diagnosis.Summary {
		t.Fatalf("full lead should carry the assessment, got %q", sender.leadSummary)
	}
	if len(ob.succeeded) != 1 {
		t.Fatalf("delivered record should be marked succeeded, got %d", len(ob.succeeded))
	}
}

func TestPreviewLeadMasksSummary(t *testing.T) {
	ob := &fakeOutbox{}
	sender := &testSender{}
	diagnoses := &fakeDiagnoses{diagnosis: &diagnosisrepo.Diagnosis{
		ID:      uuid.New(),
		Region:  "Ashanti",
		Summary: "Full assessment text.",
	}}
	m := newTestModule(ob, sender, &fakeAccounts{}, diagnoses, &fakeAppointments{})

	err := m.Handle(context.Background(), events.LeadCreated{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      uuid.New(),
		DiagnosisID: diagnoses.diagnosis.ID,
		ProviderID:  uuid.New(),
		IsPreview:   true,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, err := m.DispatchPending(context.Background(), 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if strings.Contains(sender.leadSummary, "Full assessment") {
		t.Fatalf("preview lead leaked the full assessment: %q", sender.leadSummary)
	}
}

func TestConfirmedEmailCarriesCheckInQR(t *testing.T) {
	ob := &fakeOutbox{}
	sender := &testSender{}
	m := newTestModule(ob, sender, &fakeAccounts{}, &fakeDiagnoses{}, &fakeAppointments{})

	err := m.Handle(context.Background(), events.AppointmentConfirmed{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: uuid.New(),
		RequesterID:   uuid.New(),
		ProviderID:    uuid.New(),
		Reference:     "APT-7KQ2MD",
		ScheduledDate: "2026-09-15",
		ScheduledTime: "10:00",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, err := m.DispatchPending(context.Background(), 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if sender.confirmedCalls != 1 {
		t.Fatalf("expected one confirmation email, got %d", sender.confirmedCalls)
	}
	if len(sender.attachments) != 1 || sender.attachments[0].MIMEType != "image/png" {
		t.Fatalf("expected a PNG check-in attachment, got %+v", sender.attachments)
	}
	if sender.attachments[0].FileName != "checkin-APT-7KQ2MD.png" {
		t.Fatalf("unexpected attachment name %q", sender.attachments[0].FileName)
	}
}

func TestFailedDeliveryGoesBackToPending(t *testing.T) {
	ob := &fakeOutbox{}
	sender := &testSender{failWith: context.DeadlineExceeded}
	diagnoses := &fakeDiagnoses{diagnosis: &diagnosisrepo.Diagnosis{ID: uuid.New()}}
	m := newTestModule(ob, sender, &fakeAccounts{}, diagnoses, &fakeAppointments{})

	err := m.Handle(context.Background(), events.LeadCreated{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      uuid.New(),
		DiagnosisID: diagnoses.diagnosis.ID,
		ProviderID:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	delivered, err := m.DispatchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("failed delivery should not count, got %d", delivered)
	}
	if len(ob.retried) != 1 || len(ob.failed) != 0 {
		t.Fatalf("first failure should retry, got retried=%d failed=%d", len(ob.retried), len(ob.failed))
	}
}
