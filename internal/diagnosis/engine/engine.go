// Package engine produces a structured diagnostic assessment from a free
// text vehicle complaint.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"driveassist_backend/platform/config"

	"google.golang.org/genai"
)

// Input is one complaint to assess.
type Input struct {
	Complaint    string
	VehicleMake  string
	VehicleModel string
	VehicleYear  int
}

// Result is the structured assessment. Confidence is the engine's own
// certainty in the assessment, between 0 and 1.
type Result struct {
	Summary            string   `json:"summary"`
	ProbableCauses     []string `json:"probableCauses"`
	RecommendedActions []string `json:"recommendedActions"`
	Urgency            string   `json:"urgency"`
	Specialty          string   `json:"specialty"`
	Confidence         float64  `json:"confidence"`
}

// Engine assesses complaints. The Gemini engine is used when an API key is
// configured; otherwise the keyword engine keeps the pipeline functional.
type Engine interface {
	Diagnose(ctx context.Context, in Input) (*Result, error)
}

// New selects an engine from config.
func New(ctx context.Context, cfg config.DiagnosticConfig) (Engine, error) {
	if !cfg.IsDiagnosticEnabled() {
		return &keywordEngine{}, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &geminiEngine{client: client, model: cfg.GetDiagnosticModel()}, nil
}

type geminiEngine struct {
	client *genai.Client
	model  string
}

const systemPrompt = `You are an experienced vehicle diagnostic advisor.
Given a vehicle and a complaint, respond with a single JSON object:
{"summary": string, "probableCauses": [string], "recommendedActions": [string],
"urgency": "low"|"medium"|"high", "specialty": string, "confidence": number}.
The specialty is the single trade best suited to the repair, one of:
"mechanical", "electrical", "bodywork", "tires", "diagnostics", "towing".
The confidence is your certainty in the assessment between 0 and 1.
Respond with JSON only.`

func (e *geminiEngine) Diagnose(ctx context.Context, in Input) (*Result, error) {
	prompt := fmt.Sprintf("Vehicle: %d %s %s\nComplaint: %s",
		in.VehicleYear, in.VehicleMake, in.VehicleModel, in.Complaint)

	resp, err := e.client.Models.GenerateContent(ctx, e.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostic model call failed: %w", err)
	}

	var result Result
	if err := json.Unmarshal([]byte(resp.Text()), &result); err != nil {
		return nil, fmt.Errorf("diagnostic model returned malformed JSON: %w", err)
	}
	normalize(&result)
	return &result, nil
}

// keywordEngine is the deterministic fallback used in development and when
// no model is configured.
type keywordEngine struct{}

var keywordRules = []struct {
	keywords  []string
	cause     string
	action    string
	urgency   string
	specialty string
}{
	{[]string{"brake", "stopping", "squeal"}, "worn brake pads or low brake fluid", "inspect the braking system before driving further", "high", "mechanical"},
	{[]string{"overheat", "steam", "temperature"}, "cooling system failure", "stop driving and check coolant level", "high", "mechanical"},
	{[]string{"battery", "start", "crank", "dead"}, "weak battery or failing starter", "test the battery and charging system", "medium", "electrical"},
	{[]string{"light", "dashboard", "warning"}, "sensor or electrical fault", "read the fault codes with a scanner", "medium", "diagnostics"},
	{[]string{"tire", "tyre", "flat", "puncture"}, "tire damage", "replace or repair the affected tire", "medium", "tires"},
	{[]string{"dent", "scratch", "bumper", "rust"}, "body damage", "get a bodywork estimate", "low", "bodywork"},
	{[]string{"tow", "stuck", "accident"}, "vehicle immobilized", "arrange towing to a workshop", "high", "towing"},
}

func (e *keywordEngine) Diagnose(ctx context.Context, in Input) (*Result, error) {
	complaint := strings.ToLower(in.Complaint)

	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(complaint, kw) {
				return &Result{
					Summary:            fmt.Sprintf("Likely %s based on the reported symptoms.", rule.cause),
					ProbableCauses:     []string{rule.cause},
					RecommendedActions: []string{rule.action},
					Urgency:            rule.urgency,
					Specialty:          rule.specialty,
					Confidence:         0.6,
				}, nil
			}
		}
	}

	return &Result{
		Summary:            "The symptoms need an in-person inspection to narrow down.",
		ProbableCauses:     []string{"undetermined"},
		RecommendedActions: []string{"book a general inspection"},
		Urgency:            "low",
		Specialty:          "diagnostics",
		Confidence:         0.2,
	}, nil
}

func normalize(r *Result) {
	switch r.Urgency {
	case "low", "medium", "high":
	default:
		r.Urgency = "medium"
	}
	if r.Specialty == "" {
		r.Specialty = "diagnostics"
	}
	if r.Summary == "" {
		r.Summary = "Assessment unavailable."
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
}
