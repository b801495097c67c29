package appointment

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ParseStatus accepts exactly one of the four status literals.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.TrimSpace(s)); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Occupies reports whether an appointment in this status blocks its time range.
func (s Status) Occupies() bool {
	switch s {
	case StatusPending, StatusConfirmed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Party identifies who is acting on an appointment.
type Party uint8

const (
	PartyOwner Party = 1 << iota
	PartyClient
)

func (p Party) String() string {
	switch p {
	case PartyOwner:
		return "owner"
	case PartyClient:
		return "client"
	case PartyOwner | PartyClient:
		return "owner+client"
	default:
		return "none"
	}
}

// allowedParties returns which parties may move an appointment from one status to another.
// Zero means the transition does not exist.
func allowedParties(from, to Status) Party {
	if from.Terminal() {
		return 0
	}
	switch from {
	case StatusPending:
		switch to {
		case StatusConfirmed, StatusCompleted:
			return PartyOwner
		case StatusCancelled:
			return PartyOwner | PartyClient
		}
	case StatusConfirmed:
		switch to {
		case StatusCompleted:
			return PartyOwner
		case StatusCancelled:
			return PartyOwner | PartyClient
		}
	}
	return 0
}

// CheckTransition validates a status change requested by the given parties.
// It returns ErrInvalidTransition when the table has no such edge and
// ErrUnauthorized when none of the parties may take it.
func CheckTransition(from, to Status, as Party) error {
	allowed := allowedParties(from, to)
	if allowed == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if allowed&as == 0 {
		return fmt.Errorf("%w: %s cannot move %s -> %s", ErrUnauthorized, as, from, to)
	}
	return nil
}
