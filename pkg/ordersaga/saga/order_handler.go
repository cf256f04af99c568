package saga

import (
	"context"
	"fmt"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/event"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/observability"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/order"
)

// OrderHandler creates orders and moves them to a terminal status.
type OrderHandler struct {
	repo order.Repository
	opts *options
}

// NewOrderHandler creates an order handler backed by repo.
func NewOrderHandler(repo order.Repository, opts ...Option) *OrderHandler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.numbers == nil {
		o.numbers = order.NewNumberGenerator(o.now)
	}
	return &OrderHandler{repo: repo, opts: o}
}

// Register subscribes Create, Confirm, and Cancel on bus.
func (h *OrderHandler) Register(bus event.Bus, mw ...event.MiddlewareFunc) ([]event.Subscription, error) {
	return subscribe(bus, []event.Handler{
		event.Named("OrderHandler.Create", event.TypedHandler(h.Create)),
		event.Named("OrderHandler.Confirm", event.TypedHandler(h.Confirm)),
		event.Named("OrderHandler.Cancel", event.TypedHandler(h.Cancel)),
	}, mw)
}

// Create stores a new order, moves it to Reserving, and asks inventory to
// reserve one entry per line item.
func (h *OrderHandler) Create(ctx context.Context, hdr event.Header, p event.OrderCreate) ([]event.Event, error) {
	now := h.opts.now()

	lines := make([]order.Line, len(p.Items))
	for i, item := range p.Items {
		lines[i] = order.Line{
			LineNumber:  item.LineNumber,
			ResourceKey: item.ResourceKey,
			Quantity:    item.Quantity,
		}
	}

	o, err := order.New(h.opts.numbers.Next(), hdr.TransactionID, hdr.OriginUserID, lines, order.Details{
		ShippingAddressID: p.ShippingAddressID,
		PaymentMethod:     p.PaymentMethod,
		Notes:             p.Notes,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := h.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := o.StartReserving(now); err != nil {
		return nil, err
	}
	if err := h.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("update order %s: %w", o.ID, err)
	}

	observability.EnrichLogger(h.opts.logger, hdr.TransactionID, string(p.Kind())).Debug("order created",
		"order_id", o.ID,
		"order_number", o.Number,
		"lines", len(o.Lines),
	)

	req := event.ReservationRequest{OrderID: o.ID, Items: p.Items}
	return []event.Event{derive(hdr, req)}, nil
}

// Confirm attaches reservation ids and publishes the successful terminal envelope.
func (h *OrderHandler) Confirm(ctx context.Context, hdr event.Header, p event.ReservationSucceeded) ([]event.Event, error) {
	o, err := h.repo.Get(ctx, p.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", p.OrderID, err)
	}

	reservations := make(map[int]string, len(p.Items))
	for _, item := range p.Items {
		reservations[item.LineNumber] = item.ReservationID
	}
	if err := o.Confirm(reservations, h.opts.now()); err != nil {
		return nil, err
	}
	if err := h.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("update order %s: %w", o.ID, err)
	}

	return []event.Event{derive(hdr, event.OrderCompleted{Order: Summary(o)})}, nil
}

// Cancel cancels the order and publishes the error terminal envelope.
func (h *OrderHandler) Cancel(ctx context.Context, hdr event.Header, p event.ReservationFailed) ([]event.Event, error) {
	o, err := h.repo.Get(ctx, p.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", p.OrderID, err)
	}

	info := event.FailureInfo(p.Failures)
	if err := o.Cancel(info.Message, h.opts.now()); err != nil {
		return nil, err
	}
	if err := h.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("update order %s: %w", o.ID, err)
	}

	done := event.OrderCompleted{Order: Summary(o), Failure: info}
	return []event.Event{derive(hdr, done, event.WithError())}, nil
}

// Summary converts an order into the terminal payload form.
func Summary(o *order.Order) event.OrderSummary {
	lines := make([]event.OrderLine, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = event.OrderLine{
			LineNumber:    l.LineNumber,
			ResourceKey:   l.ResourceKey,
			Quantity:      l.Quantity,
			ReservationID: l.ReservationID,
		}
	}
	return event.OrderSummary{
		OrderID:            o.ID,
		OrderNumber:        o.Number,
		Status:             string(o.Status),
		CancellationReason: o.CancellationReason,
		Lines:              lines,
	}
}

// derive builds the next envelope in the flow of hdr.
func derive[T event.Payload](hdr event.Header, p T, opts ...event.EventOption) event.Event {
	opts = append([]event.EventOption{event.WithCausationID(hdr.EventID)}, opts...)
	return event.New(hdr.TransactionID, hdr.OriginUserID, p, opts...)
}
