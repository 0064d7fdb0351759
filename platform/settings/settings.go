// Package settings holds the runtime engagement policy. Unlike environment
// configuration, these values are business knobs that operators tune while the
// service runs, so the store supports an explicit Reload instead of an implicit
// cache invalidation side channel.
package settings

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FreeLeadPolicy controls what happens when a matched provider has no lead
// credits left at lead-creation time.
type FreeLeadPolicy string

const (
	// FreeLeadPreview creates the lead flagged as a limited preview.
	FreeLeadPreview FreeLeadPolicy = "preview"
	// FreeLeadSkip creates no lead for that provider.
	FreeLeadSkip FreeLeadPolicy = "skip"
)

// Engagement is the policy injected into the orchestrator and pipeline.
type Engagement struct {
	// MaxLeadsPerDiagnosis caps how many providers one diagnosis is introduced to.
	MaxLeadsPerDiagnosis int `yaml:"maxLeadsPerDiagnosis"`
	// FreeLeadPolicy decides lead creation for providers without lead credits.
	FreeLeadPolicy FreeLeadPolicy `yaml:"freeLeadPolicy"`
	// DefaultSlotMinutes is the appointment duration when no offerings are attached.
	DefaultSlotMinutes int `yaml:"defaultSlotMinutes"`
	// ComplimentaryDiagnosisCredits seeds new requester accounts.
	ComplimentaryDiagnosisCredits int `yaml:"complimentaryDiagnosisCredits"`
	// ComplimentaryLeadCredits seeds new provider accounts.
	ComplimentaryLeadCredits int `yaml:"complimentaryLeadCredits"`
	// ReminderLeadTime is how long before the slot a reminder is scheduled.
	ReminderLeadTime time.Duration `yaml:"reminderLeadTime"`
}

// Defaults returns the policy used when no file is configured.
func Defaults() Engagement {
	return Engagement{
		MaxLeadsPerDiagnosis:          10,
		FreeLeadPolicy:                FreeLeadPreview,
		DefaultSlotMinutes:            60,
		ComplimentaryDiagnosisCredits: 3,
		ComplimentaryLeadCredits:      5,
		ReminderLeadTime:              24 * time.Hour,
	}
}

// Store holds the current engagement policy and supports explicit reloads.
type Store struct {
	mu      sync.RWMutex
	path    string
	current Engagement
}

// NewStore loads the policy from path, or defaults when path is empty.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, current: Defaults()}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStoreFrom wraps a fixed policy, validating it first. Reload is a no-op.
func NewStoreFrom(e Engagement) (*Store, error) {
	if err := validate(e); err != nil {
		return nil, err
	}
	return &Store{current: e}, nil
}

// Engagement returns a copy of the current policy.
func (s *Store) Engagement() Engagement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the policy file. On any error the previous policy stays in
// effect and the error is returned to the caller.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read engagement policy: %w", err)
	}

	next := Defaults()
	if err := yaml.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("parse engagement policy: %w", err)
	}
	if err := validate(next); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}

func validate(e Engagement) error {
	if e.MaxLeadsPerDiagnosis < 1 {
		return fmt.Errorf("maxLeadsPerDiagnosis must be at least 1")
	}
	if e.DefaultSlotMinutes < 1 {
		return fmt.Errorf("defaultSlotMinutes must be at least 1")
	}
	switch e.FreeLeadPolicy {
	case FreeLeadPreview, FreeLeadSkip:
	default:
		return fmt.Errorf("unknown freeLeadPolicy %q", e.FreeLeadPolicy)
	}
	if e.ComplimentaryDiagnosisCredits < 0 || e.ComplimentaryLeadCredits < 0 {
		return fmt.Errorf("complimentary credits cannot be negative")
	}
	return nil
}
