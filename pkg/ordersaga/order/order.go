// Package order holds the order aggregate, its status state machine, and
// repositories for persisting it.
package order

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for order operations.
var (
	// ErrOrderNotFound indicates no order matches the lookup.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderExists indicates an order with the same id or transaction id exists.
	ErrOrderExists = errors.New("order already exists")

	// ErrRepositoryClosed indicates the repository has been closed.
	ErrRepositoryClosed = errors.New("order repository closed")

	// ErrNoLines indicates an order was created without line items.
	ErrNoLines = errors.New("order has no lines")
)

// Line is one order line.
type Line struct {
	LineNumber    int       `json:"lineNumber"`
	ResourceKey   uuid.UUID `json:"resourceKey"`
	Quantity      int       `json:"quantity"`
	ReservationID string    `json:"reservationId,omitempty"`
}

// StatusChange is one entry in an order's status history.
type StatusChange struct {
	From   Status    `json:"from,omitempty"`
	To     Status    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Details are the optional request fields carried onto the order.
type Details struct {
	ShippingAddressID string `json:"shippingAddressId,omitempty"`
	PaymentMethod     string `json:"paymentMethod,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// Order is the order aggregate.
type Order struct {
	ID                 string         `json:"id"`
	Number             string         `json:"number"`
	TransactionID      string         `json:"transactionId"`
	UserID             string         `json:"userId"`
	Status             Status         `json:"status"`
	Lines              []Line         `json:"lines"`
	Details            Details        `json:"details"`
	CancellationReason string         `json:"cancellationReason,omitempty"`
	History            []StatusChange `json:"history"`
	OrderedAt          time.Time      `json:"orderedAt"`
	ConfirmedAt        *time.Time     `json:"confirmedAt,omitempty"`
	CancelledAt        *time.Time     `json:"cancelledAt,omitempty"`
}

// New creates an order in StatusRequested.
func New(number, transactionID, userID string, lines []Line, details Details, at time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	at = at.UTC()
	return &Order{
		ID:            uuid.NewString(),
		Number:        number,
		TransactionID: transactionID,
		UserID:        userID,
		Status:        StatusRequested,
		Lines:         slices.Clone(lines),
		Details:       details,
		History:       []StatusChange{{To: StatusRequested, At: at}},
		OrderedAt:     at,
	}, nil
}

// Transition moves the order to status, recording the change.
func (o *Order) Transition(to Status, reason string, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	o.History = append(o.History, StatusChange{From: o.Status, To: to, Reason: reason, At: at.UTC()})
	o.Status = to
	return nil
}

// StartReserving marks the order as waiting on inventory.
func (o *Order) StartReserving(at time.Time) error {
	return o.Transition(StatusReserving, "reservation requested", at)
}

// Confirm attaches reservation ids by line number and confirms the order.
// Every line must receive a reservation id.
func (o *Order) Confirm(reservations map[int]string, at time.Time) error {
	for _, l := range o.Lines {
		if reservations[l.LineNumber] == "" {
			return fmt.Errorf("order %s: line %d has no reservation", o.ID, l.LineNumber)
		}
	}
	if err := o.Transition(StatusConfirmed, "inventory reserved", at); err != nil {
		return err
	}
	for i := range o.Lines {
		o.Lines[i].ReservationID = reservations[o.Lines[i].LineNumber]
	}
	t := at.UTC()
	o.ConfirmedAt = &t
	return nil
}

// Cancel cancels the order with reason.
func (o *Order) Cancel(reason string, at time.Time) error {
	if err := o.Transition(StatusCancelled, reason, at); err != nil {
		return err
	}
	o.CancellationReason = reason
	t := at.UTC()
	o.CancelledAt = &t
	return nil
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	out := *o
	out.Lines = slices.Clone(o.Lines)
	out.History = slices.Clone(o.History)
	if o.ConfirmedAt != nil {
		t := *o.ConfirmedAt
		out.ConfirmedAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		out.CancelledAt = &t
	}
	return &out
}

// NumberGenerator issues order numbers of the form ORD-YYYYMMDD-NNNNN.
// The sequence is process-wide and does not reset at midnight.
type NumberGenerator struct {
	seq atomic.Int64
	now func() time.Time
}

// NewNumberGenerator returns a generator using now for the date part.
// A nil now uses time.Now.
func NewNumberGenerator(now func() time.Time) *NumberGenerator {
	if now == nil {
		now = time.Now
	}
	return &NumberGenerator{now: now}
}

// Next returns the next order number.
func (g *NumberGenerator) Next() string {
	n := g.seq.Add(1)
	return fmt.Sprintf("ORD-%s-%05d", g.now().Format("20060102"), n)
}
