package models

import (
	"fmt"
	"strings"
)

// Status is the persisted lifecycle state of a ledger position.
type Status string

const (
	StatusOpen    Status = "OPEN"    // Position opened, under monitoring
	StatusClosed  Status = "CLOSED"  // Actively closed (profit target or time exit)
	StatusExpired Status = "EXPIRED" // Ran out unresolved (settlement or stale)
)

// ParseStatus normalizes a ledger status cell. Unknown values are returned
// as-is so they are never mistaken for OPEN.
func ParseStatus(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// IsTerminal reports whether no further transition may leave this status.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusExpired
}

// ExitReason names the trigger that moved a position out of OPEN.
type ExitReason string

const (
	ReasonProfitTarget ExitReason = "Profit Target"
	ReasonTimeExit     ExitReason = "Time Exit"
	ReasonStale        ExitReason = "Stale"
	ReasonSettlement   ExitReason = "Settlement"
)

// StateTransition defines valid state transitions
type StateTransition struct {
	From        Status
	To          Status
	Condition   ExitReason
	Description string
}

// ValidTransitions is the complete lifecycle table. Nothing leaves CLOSED or EXPIRED.
var ValidTransitions = []StateTransition{
	{StatusOpen, StatusClosed, ReasonProfitTarget, "Debit to close at or below profit-target debit"},
	{StatusOpen, StatusClosed, ReasonTimeExit, "Strategy time cutoff reached"},
	{StatusOpen, StatusExpired, ReasonSettlement, "Settled at intrinsic value after the close"},
	{StatusOpen, StatusExpired, ReasonStale, "Same-day position outlived its expiration"},
}

// ValidateTransition checks a transition against ValidTransitions.
func ValidateTransition(from, to Status, condition ExitReason) error {
	for _, tr := range ValidTransitions {
		if tr.From == from && tr.To == to && tr.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition '%s'", from, to, condition)
}

// DescribeStatus returns a human-readable description of a status
func DescribeStatus(s Status) string {
	switch s {
	case StatusOpen:
		return "Position open, monitored for profit target and time exit"
	case StatusClosed:
		return "Position closed before expiration"
	case StatusExpired:
		return "Position expired and was settled"
	default:
		return "Unknown status"
	}
}
