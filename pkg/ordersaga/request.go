package ordersaga

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/event"
)

// ItemRequest is one requested resource and quantity.
type ItemRequest struct {
	ResourceKey uuid.UUID `json:"resourceKey"`
	Quantity    int       `json:"quantity"`
}

// OrderRequest is the input to InitiateOrder.
type OrderRequest struct {
	// TransactionID correlates the flow. It must be a UUID; when empty the
	// service generates one.
	TransactionID string `json:"transactionId,omitempty"`

	UserID            string        `json:"userId"`
	Items             []ItemRequest `json:"items"`
	ShippingAddressID string        `json:"shippingAddressId,omitempty"`
	PaymentMethod     string        `json:"paymentMethod,omitempty"`
	Notes             string        `json:"notes,omitempty"`
}

// OrderResult is returned by a successful InitiateOrder.
type OrderResult struct {
	TransactionID string             `json:"transactionId"`
	Order         event.OrderSummary `json:"order"`
}

// Validate checks the request before anything is published.
func (r OrderRequest) Validate() error {
	if r.TransactionID != "" {
		if _, err := uuid.Parse(r.TransactionID); err != nil {
			return &ValidationError{Field: "transactionId", Reason: "must be a UUID"}
		}
	}
	if r.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "required"}
	}
	if len(r.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	for i, item := range r.Items {
		if item.ResourceKey == uuid.Nil {
			return &ValidationError{Field: fmt.Sprintf("items[%d].resourceKey", i), Reason: "required"}
		}
		if item.Quantity < 1 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be at least 1"}
		}
	}
	return nil
}

// payload numbers the lines from 1 in request order.
func (r OrderRequest) payload() event.OrderCreate {
	items := make([]event.LineItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = event.LineItem{
			LineNumber:  i + 1,
			ResourceKey: item.ResourceKey,
			Quantity:    item.Quantity,
		}
	}
	return event.OrderCreate{
		Items:             items,
		ShippingAddressID: r.ShippingAddressID,
		PaymentMethod:     r.PaymentMethod,
		Notes:             r.Notes,
	}
}
