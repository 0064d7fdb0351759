package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title    string
	Heading  string
	CTALabel string
	CTAURL   string
}

type welcomeEmailData struct {
	baseEmailData
	FullName string
}

type appointmentEmailData struct {
	baseEmailData
	ProviderName string
	Reference    string
	Date         string
	TimeSlot     string
	Reason       string
	CancelledBy  string
	HasQR        bool
}

type leadReceivedEmailData struct {
	baseEmailData
	Region    string
	Specialty string
	Summary   string
}

type purchaseReceiptEmailData struct {
	baseEmailData
	Meter     string
	Units     int
	Reference string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
