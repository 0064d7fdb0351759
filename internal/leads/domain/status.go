// Package domain holds the lead pipeline state machine.
package domain

import (
	"fmt"

	"driveassist_backend/platform/apperr"
)

// Status is the lead pipeline stage. The set is closed; repository rows with
// other values are rejected at the boundary.
type Status string

const (
	StatusNew       Status = "new"
	StatusViewed    Status = "viewed"
	StatusContacted Status = "contacted"
	StatusConverted Status = "converted"
	StatusClosed    Status = "closed"
)

// transitions is the forward edge set of the pipeline. Closing is handled
// separately because it is allowed from any non-terminal status.
var transitions = map[Status]Status{
	StatusNew:       StatusViewed,
	StatusViewed:    StatusContacted,
	StatusContacted: StatusConverted,
}

func IsKnown(s Status) bool {
	switch s {
	case StatusNew, StatusViewed, StatusContacted, StatusConverted, StatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusConverted || s == StatusClosed
}

// CanAdvance reports whether to is the next stage after from. The pipeline is
// strictly linear: stages cannot be skipped or revisited.
func CanAdvance(from, to Status) bool {
	if to == StatusClosed {
		return !from.IsTerminal()
	}
	return transitions[from] == to
}

// Advance validates a requested transition and returns a typed error naming
// both statuses when the guard rejects it.
func Advance(from, to Status) error {
	if !IsKnown(to) {
		return apperr.Validation(fmt.Sprintf("unknown lead status %q", to))
	}
	if !CanAdvance(from, to) {
		return apperr.InvalidTransition(fmt.Sprintf("cannot move lead from %s to %s", from, to))
	}
	return nil
}
