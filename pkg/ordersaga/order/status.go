package order

import "fmt"

// Status is the explicit state of an order within its flow.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusReserving Status = "RESERVING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// transitions lists the allowed next states for each state.
var transitions = map[Status][]Status{
	StatusRequested: {StatusReserving, StatusCancelled},
	StatusReserving: {StatusConfirmed, StatusCancelled},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusReserving, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// TransitionError is returned for a transition the state machine forbids.
type TransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition from %s to %s", e.OrderID, e.From, e.To)
}
