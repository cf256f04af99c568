package event

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Error codes carried by failure payloads and ErrorInfo.
const (
	CodeInsufficientStock     = "INSUFFICIENT_STOCK"
	CodeOptimisticLockFailure = "OPTIMISTIC_LOCK_FAILURE"
	CodeSystemError           = "SYSTEM_ERROR"
	CodeValidation            = "VALIDATION_ERROR"
	CodeDuplicateTransaction  = "DUPLICATE_TRANSACTION"
	CodeAwaitTimeout          = "AWAIT_TIMEOUT"
	CodeOrderRejected         = "ORDER_REJECTED"
)

// Payload is implemented only by the payload types in this package.
type Payload interface {
	Kind() Kind
	clone() Payload
}

// LineItem is one requested (resourceKey, quantity) pair.
type LineItem struct {
	LineNumber  int       `json:"lineNumber"`
	ResourceKey uuid.UUID `json:"resourceKey"`
	Quantity    int       `json:"quantity"`
}

// ReservedItem is a line item that holds a reservation.
type ReservedItem struct {
	LineNumber    int       `json:"lineNumber"`
	ResourceKey   uuid.UUID `json:"resourceKey"`
	Quantity      int       `json:"quantity"`
	ReservationID string    `json:"reservationId"`
}

// ItemError describes why a single line item could not be reserved.
type ItemError struct {
	LineNumber  int       `json:"lineNumber"`
	ResourceKey uuid.UUID `json:"resourceKey"`
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	Requested   int       `json:"requested"`
	Available   int       `json:"available"`
}

// ItemDetail is the per-item part of ErrorInfo surfaced to callers.
type ItemDetail struct {
	ResourceKey       uuid.UUID `json:"resourceKey"`
	RequestedQuantity int       `json:"requestedQuantity"`
	AvailableQuantity int       `json:"availableQuantity"`
}

// ErrorInfo is the error payload shape returned to the boundary.
type ErrorInfo struct {
	Code        string       `json:"code"`
	Message     string       `json:"message"`
	ItemDetails []ItemDetail `json:"itemDetails,omitempty"`
}

// Error implements the error interface.
func (e *ErrorInfo) Error() string {
	if len(e.ItemDetails) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, len(e.ItemDetails))
	for i, d := range e.ItemDetails {
		keys[i] = d.ResourceKey.String()
	}
	return fmt.Sprintf("%s: %s [%s]", e.Code, e.Message, strings.Join(keys, ", "))
}

// Clone returns a deep copy.
func (e *ErrorInfo) Clone() *ErrorInfo {
	if e == nil {
		return nil
	}
	out := *e
	out.ItemDetails = slices.Clone(e.ItemDetails)
	return &out
}

// FailureInfo summarizes item errors into an ErrorInfo. The code is the
// first item's code when all items agree, otherwise CodeOrderRejected.
func FailureInfo(failures []ItemError) *ErrorInfo {
	info := &ErrorInfo{Code: CodeOrderRejected, Message: "order rejected"}
	if len(failures) == 0 {
		return info
	}
	info.Code = failures[0].Code
	for _, f := range failures {
		if f.Code != info.Code {
			info.Code = CodeOrderRejected
		}
		info.ItemDetails = append(info.ItemDetails, ItemDetail{
			ResourceKey:       f.ResourceKey,
			RequestedQuantity: f.Requested,
			AvailableQuantity: f.Available,
		})
	}
	switch info.Code {
	case CodeInsufficientStock:
		info.Message = "insufficient stock"
	case CodeOptimisticLockFailure:
		info.Message = "inventory changed concurrently"
	case CodeSystemError:
		info.Message = "inventory system error"
	default:
		info.Message = fmt.Sprintf("%d item(s) could not be reserved", len(failures))
	}
	return info
}

// OrderCreate asks the order handler to create an order.
type OrderCreate struct {
	Items             []LineItem `json:"items"`
	ShippingAddressID string     `json:"shippingAddressId,omitempty"`
	PaymentMethod     string     `json:"paymentMethod,omitempty"`
	Notes             string     `json:"notes,omitempty"`
}

// Kind implements Payload.
func (OrderCreate) Kind() Kind { return KindOrderCreate }

func (p OrderCreate) clone() Payload {
	p.Items = slices.Clone(p.Items)
	return p
}

// ReservationRequest asks the inventory handler to reserve every item.
type ReservationRequest struct {
	OrderID string     `json:"orderId"`
	Items   []LineItem `json:"items"`
}

// Kind implements Payload.
func (ReservationRequest) Kind() Kind { return KindReservationRequested }

func (p ReservationRequest) clone() Payload {
	p.Items = slices.Clone(p.Items)
	return p
}

// ReservationSucceeded reports that every item was reserved.
type ReservationSucceeded struct {
	OrderID string         `json:"orderId"`
	Items   []ReservedItem `json:"items"`
}

// Kind implements Payload.
func (ReservationSucceeded) Kind() Kind { return KindReservationSucceeded }

func (p ReservationSucceeded) clone() Payload {
	p.Items = slices.Clone(p.Items)
	return p
}

// ReservationFailed lists the items that could not be reserved. Released
// holds items that were reserved and then given back by compensation.
type ReservationFailed struct {
	OrderID  string         `json:"orderId"`
	Failures []ItemError    `json:"failures"`
	Released []ReservedItem `json:"released,omitempty"`
}

// Kind implements Payload.
func (ReservationFailed) Kind() Kind { return KindReservationFailed }

func (p ReservationFailed) clone() Payload {
	p.Failures = slices.Clone(p.Failures)
	p.Released = slices.Clone(p.Released)
	return p
}

// OrderLine is a line of a completed order.
type OrderLine struct {
	LineNumber    int       `json:"lineNumber"`
	ResourceKey   uuid.UUID `json:"resourceKey"`
	Quantity      int       `json:"quantity"`
	ReservationID string    `json:"reservationId,omitempty"`
}

// OrderSummary is the order state carried by the terminal envelope.
type OrderSummary struct {
	OrderID            string      `json:"orderId"`
	OrderNumber        string      `json:"orderNumber"`
	Status             string      `json:"status"`
	CancellationReason string      `json:"cancellationReason,omitempty"`
	Lines              []OrderLine `json:"lines"`
}

// OrderCompleted is the terminal payload. Failure is set exactly when the
// envelope header has IsError.
type OrderCompleted struct {
	Order   OrderSummary `json:"order"`
	Failure *ErrorInfo   `json:"failure,omitempty"`
}

// Kind implements Payload.
func (OrderCompleted) Kind() Kind { return KindOrderCompleted }

func (p OrderCompleted) clone() Payload {
	p.Order.Lines = slices.Clone(p.Order.Lines)
	p.Failure = p.Failure.Clone()
	return p
}
