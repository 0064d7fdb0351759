package domain

import (
	"testing"

	"driveassist_backend/platform/apperr"
)

func TestLifecycleTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusNoShow, true},
		{StatusConfirmed, StatusInProgress, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusNoShow, true},

		{StatusPending, StatusInProgress, false},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, false},
		{StatusConfirmed, StatusRejected, false},
		{StatusInProgress, StatusCancelled, false},
		{StatusCompleted, StatusNoShow, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusRejected, StatusPending, false},
		{StatusNoShow, StatusCompleted, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusRejected, StatusNoShow} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusInProgress} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestSlotHolders(t *testing.T) {
	holders := map[Status]bool{
		StatusPending:    true,
		StatusConfirmed:  true,
		StatusInProgress: false,
		StatusCompleted:  false,
		StatusCancelled:  false,
		StatusRejected:   false,
		StatusNoShow:     false,
	}
	for s, want := range holders {
		if got := s.HoldsSlot(); got != want {
			t.Errorf("%s.HoldsSlot() = %v, want %v", s, got, want)
		}
	}
}

func TestTransitionTypedErrors(t *testing.T) {
	if err := Transition(StatusPending, Status("banana")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := Transition(StatusPending, StatusCompleted); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
	if err := Transition(StatusPending, StatusConfirmed); err != nil {
		t.Fatalf("legal transition returned error: %v", err)
	}
}
