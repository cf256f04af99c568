package saga

import (
	"context"
	"errors"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/event"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/observability"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/reservation"
)

// InventoryHandler reserves every item of a reservation request.
type InventoryHandler struct {
	store *reservation.Store
	opts  *options
}

// NewInventoryHandler creates an inventory handler over store.
func NewInventoryHandler(store *reservation.Store, opts ...Option) *InventoryHandler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &InventoryHandler{store: store, opts: o}
}

// Register subscribes Reserve on bus.
func (h *InventoryHandler) Register(bus event.Bus, mw ...event.MiddlewareFunc) ([]event.Subscription, error) {
	return subscribe(bus, []event.Handler{
		event.Named("InventoryHandler.Reserve", event.TypedHandler(h.Reserve)),
	}, mw)
}

// Reserve attempts every item, in order, without stopping at the first
// failure. A batch with any failed item yields a failure envelope listing
// every failed item. With compensation on, items reserved earlier in the
// batch are released in reverse order first.
func (h *InventoryHandler) Reserve(ctx context.Context, hdr event.Header, p event.ReservationRequest) ([]event.Event, error) {
	var (
		reserved []event.ReservedItem
		failures []event.ItemError
	)

	for _, item := range p.Items {
		res, err := h.store.Reserve(ctx, item.ResourceKey, item.Quantity,
			reservation.WithReference(p.OrderID),
			reservation.WithReason("order "+hdr.TransactionID),
		)
		if err != nil {
			failures = append(failures, h.itemError(ctx, item, err))
			continue
		}
		reserved = append(reserved, event.ReservedItem{
			LineNumber:    item.LineNumber,
			ResourceKey:   item.ResourceKey,
			Quantity:      item.Quantity,
			ReservationID: res.ID,
		})
	}

	if len(failures) == 0 {
		return []event.Event{derive(hdr, event.ReservationSucceeded{OrderID: p.OrderID, Items: reserved})}, nil
	}

	failed := event.ReservationFailed{OrderID: p.OrderID, Failures: failures}
	if h.opts.compensate && len(reserved) > 0 {
		failed.Released = h.compensate(ctx, hdr, p.OrderID, reserved)
	}
	return []event.Event{derive(hdr, failed, event.WithError())}, nil
}

// compensate releases reserved items, last first, and returns those
// that were released.
func (h *InventoryHandler) compensate(ctx context.Context, hdr event.Header, orderID string, reserved []event.ReservedItem) []event.ReservedItem {
	var released []event.ReservedItem
	failed := 0
	for i := len(reserved) - 1; i >= 0; i-- {
		item := reserved[i]
		_, err := h.store.Release(ctx, item.ResourceKey, item.Quantity,
			reservation.WithReference(orderID),
			reservation.WithReservationID(item.ReservationID),
			reservation.WithReason("compensation"),
		)
		if err != nil {
			failed++
			h.opts.logger.Error("compensation release failed",
				"tx_id", hdr.TransactionID,
				"order_id", orderID,
				"resource_key", item.ResourceKey.String(),
				"reservation_id", item.ReservationID,
				"error", err.Error(),
			)
			continue
		}
		released = append(released, item)
	}
	observability.LogCompensation(h.opts.logger, hdr.TransactionID, orderID, len(released), failed)
	return released
}

// itemError maps a store error to the structured per-item error.
func (h *InventoryHandler) itemError(ctx context.Context, item event.LineItem, err error) event.ItemError {
	ie := event.ItemError{
		LineNumber:  item.LineNumber,
		ResourceKey: item.ResourceKey,
		Requested:   item.Quantity,
		Message:     err.Error(),
	}

	var (
		insufficient *reservation.InsufficientQuantityError
		conflict     *reservation.ConcurrencyConflictError
	)
	switch {
	case errors.As(err, &insufficient):
		ie.Code = event.CodeInsufficientStock
		ie.Available = insufficient.Available
	case errors.As(err, &conflict):
		ie.Code = event.CodeOptimisticLockFailure
		if rec, gerr := h.store.Get(ctx, item.ResourceKey); gerr == nil {
			ie.Available = rec.QuantityAvailable
		}
	case errors.Is(err, reservation.ErrInvalidQuantity):
		ie.Code = event.CodeValidation
	default:
		ie.Code = event.CodeSystemError
	}
	return ie
}
