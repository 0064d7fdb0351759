package domain

import (
	"testing"

	"driveassist_backend/platform/apperr"
)

func TestPipelineIsStrictlyLinear(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusNew, StatusViewed, true},
		{StatusViewed, StatusContacted, true},
		{StatusContacted, StatusConverted, true},
		{StatusNew, StatusContacted, false},
		{StatusNew, StatusConverted, false},
		{StatusViewed, StatusConverted, false},
		{StatusViewed, StatusNew, false},
		{StatusContacted, StatusViewed, false},
		{StatusConverted, StatusClosed, false},
		{StatusClosed, StatusViewed, false},
	}

	for _, tc := range cases {
		if got := CanAdvance(tc.from, tc.to); got != tc.allowed {
			t.Errorf("CanAdvance(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestCloseAllowedFromAnyNonTerminal(t *testing.T) {
	for _, from := range []Status{StatusNew, StatusViewed, StatusContacted} {
		if !CanAdvance(from, StatusClosed) {
			t.Errorf("closing from %s should be allowed", from)
		}
	}
	for _, from := range []Status{StatusConverted, StatusClosed} {
		if CanAdvance(from, StatusClosed) {
			t.Errorf("closing from terminal %s should be rejected", from)
		}
	}
}

func TestAdvanceReturnsTypedErrors(t *testing.T) {
	if err := Advance(StatusNew, Status("garbage")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
	if err := Advance(StatusNew, StatusConverted); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
	if err := Advance(StatusNew, StatusViewed); err != nil {
		t.Fatalf("legal transition returned error: %v", err)
	}
}
