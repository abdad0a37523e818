package wallet

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of the linked custodial account.
type Status string

const (
	StatusNotConnected         Status = "NOT_CONNECTED"
	StatusPending              Status = "PENDING"
	StatusVerified             Status = "VERIFIED"
	StatusDisconnectedVerified Status = "DISCONNECTED_VERIFIED"
	StatusDisconnectedOther    Status = "DISCONNECTED_OTHER"
)

// ErrIllegalTransition is returned when a status change is not permitted.
var ErrIllegalTransition = errors.New("illegal wallet status transition")

// transitions lists the permitted targets for each source status. Moving to
// NOT_CONNECTED is always allowed and is handled separately.
var transitions = map[Status][]Status{
	StatusNotConnected:         {StatusPending},
	StatusPending:              {StatusPending, StatusVerified, StatusDisconnectedOther},
	StatusVerified:             {StatusVerified, StatusDisconnectedVerified},
	StatusDisconnectedVerified: {StatusDisconnectedVerified, StatusPending},
	StatusDisconnectedOther:    {StatusDisconnectedOther, StatusPending},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Disconnected reports whether s is a system-triggered disconnected state.
func (s Status) Disconnected() bool {
	return s == StatusDisconnectedVerified || s == StatusDisconnectedOther
}

// Linked reports whether the wallet holds a usable credential in status s.
func (s Status) Linked() bool {
	return s == StatusPending || s == StatusVerified
}

func (s Status) String() string { return string(s) }

// Transition validates a move from one status to another.
func Transition(from, to Status) error {
	if to == StatusNotConnected {
		return nil
	}
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// disconnectedStatus returns the status a system-triggered disconnect leaves
// behind, keeping a trace of whether the account had been verified.
func disconnectedStatus(from Status) Status {
	switch from {
	case StatusVerified:
		return StatusDisconnectedVerified
	case StatusPending:
		return StatusDisconnectedOther
	case StatusNotConnected, StatusDisconnectedVerified, StatusDisconnectedOther:
		return from
	default:
		return StatusNotConnected
	}
}
