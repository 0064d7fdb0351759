// Package email renders and delivers transactional mail over SMTP.
package email

import (
	"context"

	"driveassist_backend/platform/config"
)

// Attachment is a file attached to an outgoing email.
type Attachment struct {
	Content  []byte
	FileName string
	MIMEType string
}

type Sender interface {
	SendWelcomeEmail(ctx context.Context, toEmail, fullName string) error
	SendAppointmentBookedEmail(ctx context.Context, toEmail, providerName, reference, date, timeSlot string) error
	SendAppointmentConfirmedEmail(ctx context.Context, toEmail, providerName, reference, date, timeSlot string, attachments ...Attachment) error
	SendAppointmentRejectedEmail(ctx context.Context, toEmail, providerName, reference, reason string) error
	SendAppointmentCancelledEmail(ctx context.Context, toEmail, reference, cancelledBy string) error
	SendAppointmentReminderEmail(ctx context.Context, toEmail, providerName, reference, date, timeSlot string) error
	SendLeadReceivedEmail(ctx context.Context, toEmail, region, specialty, summary string) error
	SendPurchaseReceiptEmail(ctx context.Context, toEmail, meter string, units int, reference string) error
}

// NoopSender is used when SMTP is not configured. Sends succeed silently so
// the notification pipeline never blocks on a missing mail server.
type NoopSender struct{}

func (NoopSender) SendWelcomeEmail(ctx context.Context, toEmail, fullName string) error {
	return nil
}

func (NoopSender) SendAppointmentBookedEmail(ctx context.Context, toEmail, providerName, reference, date, timeSlot string) error {
	return nil
}

func (NoopSender) SendAppointmentConfirmedEmail(ctx context.Context, toEmail, providerName, reference, date, timeSlot string, attachments ...Attachment) error {
	return nil
}

func (NoopSender) SendAppointmentRejectedEmail(ctx context.Context, toEmail, providerName, reference, reason string) error {
	return nil
}

func (NoopSender) SendAppointmentCancelledEmail(ctx context.Context, toEmail, reference, cancelledBy string) error {
	return nil
}

func (NoopSender) SendAppointmentReminderEmail(ctx context.Context, toEmail, providerName, reference, date, timeSlot string) error {
	return nil
}

func (NoopSender) SendLeadReceivedEmail(ctx context.Context, toEmail, region, specialty, summary string) error {
	return nil
}

func (NoopSender) SendPurchaseReceiptEmail(ctx context.Context, toEmail, meter string, units int, reference string) error {
	return nil
}

// NewSender returns an SMTP-backed sender, or NoopSender when email delivery
// is disabled.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}
