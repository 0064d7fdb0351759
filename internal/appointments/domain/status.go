// Package domain holds the appointment lifecycle state machine.
package domain

import (
	"fmt"

	"driveassist_backend/platform/apperr"
)

// Status is the appointment lifecycle state. The set is closed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
	StatusNoShow     Status = "no_show"
)

// transitions is the full edge set of the lifecycle.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusRejected, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusNoShow},
}

func IsKnown(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted,
		StatusCancelled, StatusRejected, StatusNoShow:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0 && IsKnown(s)
}

// HoldsSlot reports whether the appointment still reserves its slot. Only
// pending and confirmed bookings block other requesters.
func (s Status) HoldsSlot() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates a requested move and returns a typed error naming
// both statuses when the guard rejects it.
func Transition(from, to Status) error {
	if !IsKnown(to) {
		return apperr.Validation(fmt.Sprintf("unknown appointment status %q", to))
	}
	if !CanTransition(from, to) {
		return apperr.InvalidTransition(fmt.Sprintf("cannot move appointment from %s to %s", from, to))
	}
	return nil
}
