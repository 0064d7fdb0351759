package email

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender delivers rendered templates over a direct SMTP connection via
// go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string, attachments ...Attachment) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	for _, att := range attachments {
		msg.AttachReader(att.FileName, bytes.NewReader(att.Content))
	}

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendWelcomeEmail(ctx context.Context, toEmail, fullName string) error {
	content, err := renderEmailTemplate("welcome.html", welcomeEmailData{
		baseEmailData: baseEmailData{
			Title:   "Welcome",
			Heading: "Welcome to DriveAssist",
		},
		FullName: fullName,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectWelcome, content)
}

func (s *SMTPSender) SendAppointmentBookedEmail(ctx context.Context, toEmail, providerName, reference, date, timeSlot string) error {
	subject := fmt.Sprintf(subjectAppointmentBookedFmt, providerName)
	content, err := renderEmailTemplate("appointment_booked.html", appointmentEmailData{
		baseEmailData: baseEmailData{
			Title:   "Booking requested",
			Heading: "Booking requested",
		},
		ProviderName: providerName,
		Reference:    reference,
		Date:         date,
		TimeSlot:     timeSlot,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

func (s *SMTPSender) SendAppointmentConfirmedEmail(ctx context.Context, toEmail, providerName, reference, date, timeSlot string, attachments ...Attachment) error {
	subject := fmt.Sprintf(subjectAppointmentConfirmedFmt, reference)
	content, err := renderEmailTemplate("appointment_confirmed.html", appointmentEmailData{
		baseEmailData: baseEmailData{
			Title:   "Appointment confirmed",
			Heading: "Appointment confirmed",
		},
		ProviderName: providerName,
		Reference:    reference,
		Date:         date,
		TimeSlot:     timeSlot,
		HasQR:        len(attachments) > 0,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content, attachments...)
}

func (s *SMTPSender) SendAppointmentRejectedEmail(ctx context.Context, toEmail, providerName, reference, reason string) error {
	subject := fmt.Sprintf(subjectAppointmentRejectedFmt, reference)
	content, err := renderEmailTemplate("appointment_rejected.html", appointmentEmailData{
		baseEmailData: baseEmailData{
			Title:   "Appointment declined",
			Heading: "Appointment declined",
		},
		ProviderName: providerName,
		Reference:    reference,
		Reason:       reason,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

func (s *SMTPSender) SendAppointmentCancelledEmail(ctx context.Context, toEmail, reference, cancelledBy string) error {
	subject := fmt.Sprintf(subjectAppointmentCancelledFmt, reference)
	content, err := renderEmailTemplate("appointment_cancelled.html", appointmentEmailData{
		baseEmailData: baseEmailData{
			Title:   "Appointment cancelled",
			Heading: "Appointment cancelled",
		},
		Reference:   reference,
		CancelledBy: cancelledBy,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

func (s *SMTPSender) SendAppointmentReminderEmail(ctx context.Context, toEmail, providerName, reference, date, timeSlot string) error {
	subject := fmt.Sprintf(subjectAppointmentReminderFmt, reference)
	content, err := renderEmailTemplate("appointment_reminder.html", appointmentEmailData{
		baseEmailData: baseEmailData{
			Title:   "Appointment reminder",
			Heading: "Appointment reminder",
		},
		ProviderName: providerName,
		Reference:    reference,
		Date:         date,
		TimeSlot:     timeSlot,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

func (s *SMTPSender) SendLeadReceivedEmail(ctx context.Context, toEmail, region, specialty, summary string) error {
	content, err := renderEmailTemplate("lead_received.html", leadReceivedEmailData{
		baseEmailData: baseEmailData{
			Title:   "New service request",
			Heading: "New service request",
		},
		Region:    region,
		Specialty: specialty,
		Summary:   summary,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectLeadReceived, content)
}

func (s *SMTPSender) SendPurchaseReceiptEmail(ctx context.Context, toEmail, meter string, units int, reference string) error {
	subject := fmt.Sprintf(subjectPurchaseReceiptFmt, meter)
	content, err := renderEmailTemplate("purchase_receipt.html", purchaseReceiptEmailData{
		baseEmailData: baseEmailData{
			Title:   "Purchase receipt",
			Heading: "Purchase receipt",
		},
		Meter:     meter,
		Units:     units,
		Reference: reference,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

var _ Sender = (*SMTPSender)(nil)
