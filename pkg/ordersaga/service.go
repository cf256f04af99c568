package ordersaga

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/correlation"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/event"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/observability"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/order"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/reservation"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/saga"
)

const completeHandlerName = "Service.Complete"

// Service runs order placement flows over an in-process bus.
type Service struct {
	cfg     *serviceConfig
	store   *reservation.Store
	orders  order.Repository
	bus     *event.LocalBus
	pending *correlation.Registry[event.OrderSummary]

	subs   []event.Subscription
	owned  []io.Closer
	closed atomic.Bool
	once   sync.Once
}

// New wires the order and inventory handlers onto a fresh bus and returns
// a ready Service. The caller keeps ownership of store and of any
// repository passed through WithOrderRepository.
func New(store *reservation.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ordersaga: nil reservation store")
	}

	cfg := defaultServiceConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.orders == nil {
		cfg.orders = order.NewMemoryRepository()
	}
	if cfg.deadLetters == nil {
		cfg.deadLetters = event.NewInMemoryDLQ(event.DefaultDLQConfig)
	}

	s := &Service{
		cfg:     cfg,
		store:   store,
		orders:  cfg.orders,
		pending: correlation.NewRegistry[event.OrderSummary](),
	}
	s.bus = event.NewBus(event.BusConfig{
		MaxConcurrency: cfg.maxConcurrency,
		DeduplicateTTL: cfg.dedupeTTL,
		Catalog:        event.DefaultCatalog(),
		OnError:        s.onFault,
		OnPublish: func(ctx context.Context, evt event.Event) {
			cfg.spans.AddSpanEvent(ctx, "publish",
				attribute.String("event.kind", evt.Kind().String()),
				attribute.String("event.id", evt.Header().EventID),
			)
			for _, tap := range cfg.taps {
				tap(ctx, evt)
			}
		},
	})

	if err := s.register(); err != nil {
		_ = s.bus.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) register() error {
	mw := s.middleware()

	handlerOpts := []saga.Option{
		saga.WithLogger(s.cfg.logger),
		saga.WithClock(s.cfg.now),
		saga.WithCompensation(s.cfg.compensate),
	}

	orderSubs, err := saga.NewOrderHandler(s.orders, handlerOpts...).Register(s.bus, mw...)
	if err != nil {
		return fmt.Errorf("register order handler: %w", err)
	}
	s.subs = append(s.subs, orderSubs...)

	inventorySubs, err := saga.NewInventoryHandler(s.store, handlerOpts...).Register(s.bus, mw...)
	if err != nil {
		return fmt.Errorf("register inventory handler: %w", err)
	}
	s.subs = append(s.subs, inventorySubs...)

	terminal := event.ChainMiddleware(
		event.Named(completeHandlerName, event.HandlerFunc(s.complete)),
		s.tracing(), s.logging(),
	)
	sub := s.bus.Subscribe([]event.Kind{event.KindOrderCompleted}, terminal)
	if sub == nil {
		return fmt.Errorf("register %s: %w", completeHandlerName, saga.ErrSubscribe)
	}
	s.subs = append(s.subs, sub)

	return event.DefaultCatalog().VerifyCoverage(s.bus)
}

// middleware returns the chain applied to every saga handler, outermost
// first.
func (s *Service) middleware() []event.MiddlewareFunc {
	metrics := s.cfg.metrics
	return []event.MiddlewareFunc{
		s.tracing(),
		event.MetricsMiddleware(nil, func(kind event.Kind, d time.Duration, err error) {
			metrics.RecordHandler(context.Background(), kind.String(), d, err)
		}),
		s.logging(),
		event.CorrelationMiddleware(),
	}
}

func (s *Service) tracing() event.MiddlewareFunc {
	spans := s.cfg.spans
	return event.TracingMiddleware(func(ctx context.Context, evt event.Event, name string) (context.Context, func(error)) {
		ctx, span := spans.StartHandlerSpan(ctx, name, evt.Kind().String(), evt.Header().TransactionID)
		return ctx, func(err error) { spans.EndSpanWithError(span, err) }
	})
}

func (s *Service) logging() event.MiddlewareFunc {
	logger := s.cfg.logger
	return event.LoggingMiddleware(func(evt event.Event, name string, d time.Duration, err error) {
		l := observability.EnrichLogger(logger, evt.Header().TransactionID, evt.Kind().String())
		if err != nil {
			l.Debug("handler returned error", "handler", name, "error", err)
			return
		}
		l.Debug("handler done", "handler", name, "duration_ms", float64(d.Microseconds())/1000)
	})
}

// InitiateOrder publishes an order.create envelope and blocks until the
// flow's order.completed envelope arrives or the await timeout elapses.
//
// Every unsuccessful outcome is a *FlowError. Its Info.Code is one of the
// event.Code* constants.
func (s *Service) InitiateOrder(ctx context.Context, req OrderRequest) (result *OrderResult, err error) {
	if s.closed.Load() {
		return nil, ErrServiceClosed
	}

	txID := req.TransactionID
	if txID == "" {
		txID = uuid.NewString()
	}

	if verr := req.Validate(); verr != nil {
		return nil, newFlowError(txID, event.CodeValidation, verr.Error(), verr)
	}

	h, err := s.pending.Open(txID)
	if err != nil {
		if errors.Is(err, correlation.ErrRegistryClosed) {
			return nil, ErrServiceClosed
		}
		return nil, newFlowError(txID, event.CodeDuplicateTransaction, "transaction id already in flight", err)
	}

	// The slot is held while checking, so a flow finishing concurrently has
	// already stored its order.
	if ferr := s.checkUnused(ctx, txID); ferr != nil {
		s.discard(txID, h, ferr)
		return nil, ferr
	}

	start := time.Now()
	ctx, span := s.cfg.spans.StartFlowSpan(ctx, txID)
	defer func() { s.cfg.spans.EndSpanWithError(span, err) }()

	observability.LogFlowStart(s.cfg.logger, txID, len(req.Items))

	evt := event.New(txID, req.UserID, req.payload(), event.WithTimestamp(s.cfg.now().UTC()))
	if perr := s.bus.Publish(ctx, evt); perr != nil {
		s.discard(txID, h, perr)
		if errors.Is(perr, event.ErrBusClosed) {
			return nil, ErrServiceClosed
		}
		ferr := newFlowError(txID, event.CodeSystemError, "could not publish order request", perr)
		s.finish(ctx, txID, observability.OutcomeError, ferr, start)
		return nil, ferr
	}

	summary, aerr := s.pending.Await(ctx, h, s.cfg.awaitTimeout)
	if aerr == nil {
		s.cfg.metrics.RecordFlow(ctx, observability.OutcomeConfirmed, time.Since(start))
		observability.LogFlowComplete(s.cfg.logger, txID, summary.OrderID, float64(time.Since(start).Milliseconds()))
		return &OrderResult{TransactionID: txID, Order: summary}, nil
	}

	if errors.Is(aerr, correlation.ErrRegistryClosed) {
		return nil, ErrServiceClosed
	}
	ferr := s.flowError(txID, aerr)
	s.finish(ctx, txID, outcomeFor(ferr), ferr, start)
	return nil, ferr
}

// checkUnused fails when an earlier flow already created an order for
// txID.
func (s *Service) checkUnused(ctx context.Context, txID string) *FlowError {
	prior, err := s.orders.GetByTransaction(ctx, txID)
	switch {
	case err == nil:
		return newFlowError(txID, event.CodeDuplicateTransaction,
			fmt.Sprintf("transaction id already used by order %s", prior.Number),
			&correlation.DuplicateTransactionError{TransactionID: txID})
	case errors.Is(err, order.ErrOrderNotFound):
		return nil
	default:
		return newFlowError(txID, event.CodeSystemError, "could not look up transaction id", err)
	}
}

// discard drops a slot whose flow never reached the bus.
func (s *Service) discard(txID string, h *correlation.Handle[event.OrderSummary], cause error) {
	_ = s.pending.Reject(txID, cause)
	_, _ = s.pending.Await(context.Background(), h, 0)
}

// flowError converts whatever Await returned into a *FlowError.
func (s *Service) flowError(txID string, err error) *FlowError {
	var ferr *FlowError
	if errors.As(err, &ferr) {
		return ferr
	}
	var timeout *correlation.AwaitTimeoutError
	if errors.As(err, &timeout) {
		return newFlowError(txID, event.CodeAwaitTimeout,
			fmt.Sprintf("no outcome within %s", timeout.Timeout), err)
	}
	return newFlowError(txID, event.CodeSystemError, err.Error(), err)
}

func outcomeFor(err *FlowError) string {
	switch err.Info.Code {
	case event.CodeAwaitTimeout:
		return observability.OutcomeTimeout
	case event.CodeInsufficientStock, event.CodeOptimisticLockFailure, event.CodeOrderRejected:
		return observability.OutcomeRejected
	default:
		return observability.OutcomeError
	}
}

func (s *Service) finish(ctx context.Context, txID, outcome string, err *FlowError, start time.Time) {
	d := time.Since(start)
	s.cfg.metrics.RecordFlow(ctx, outcome, d)
	observability.LogFlowRejected(s.cfg.logger, txID, err.Info.Code, err, float64(d.Milliseconds()))
}

// complete hands the terminal envelope to the waiting caller. A terminal
// envelope whose caller already gave up is recorded as a dead letter.
func (s *Service) complete(ctx context.Context, evt event.Event) ([]event.Event, error) {
	p, ok := evt.Data().(event.OrderCompleted)
	if !ok {
		return nil, &event.EventError{Event: evt, Handler: completeHandlerName, Message: "unexpected payload type"}
	}
	hdr := evt.Header()

	var err error
	if hdr.IsError {
		summary := p.Order
		err = s.pending.Reject(hdr.TransactionID, &FlowError{
			TransactionID: hdr.TransactionID,
			Info:          p.Failure,
			Order:         &summary,
		})
	} else {
		err = s.pending.Resolve(hdr.TransactionID, p.Order)
	}

	var unknown *correlation.UnknownTransactionError
	if errors.As(err, &unknown) {
		observability.LogOrphanTerminal(s.cfg.logger, hdr.TransactionID, hdr.IsError, err)
		s.cfg.metrics.RecordOrphanTerminal(ctx)
		s.deadLetter(ctx, evt, err, completeHandlerName)
		return nil, nil
	}
	return nil, err
}

// onFault fails the flow a faulted envelope belongs to so the caller does
// not wait out the full timeout.
func (s *Service) onFault(evt event.Event, subscriberID string, err error) {
	handler := subscriberID
	var eerr *event.EventError
	if errors.As(err, &eerr) && eerr.Handler != "" {
		handler = eerr.Handler
	}
	txID := evt.Header().TransactionID

	observability.LogHandlerFault(s.cfg.logger, txID, evt.Kind().String(), handler, err)
	s.deadLetter(context.Background(), evt, err, handler)

	_ = s.pending.Reject(txID, newFlowError(txID, event.CodeSystemError,
		fmt.Sprintf("%s failed handling %s", handler, evt.Kind()), err))
}

func (s *Service) deadLetter(ctx context.Context, evt event.Event, err error, handler string) {
	if derr := s.cfg.deadLetters.Enqueue(ctx, event.NewFailedEvent(evt, err, handler)); derr != nil {
		s.cfg.logger.Error("dead letter not recorded",
			"tx_id", evt.Header().TransactionID,
			"event_id", evt.Header().EventID,
			"error", derr,
		)
	}
}

// Order returns the stored order with the given id.
func (s *Service) Order(ctx context.Context, id string) (*order.Order, error) {
	return s.orders.Get(ctx, id)
}

// OrderByTransaction returns the order created for a transaction id.
func (s *Service) OrderByTransaction(ctx context.Context, txID string) (*order.Order, error) {
	return s.orders.GetByTransaction(ctx, txID)
}

// Store returns the reservation store the service reserves against.
func (s *Service) Store() *reservation.Store {
	return s.store
}

// DeadLetters returns the queue holding handler faults and orphaned
// terminal envelopes.
func (s *Service) DeadLetters() event.DeadLetterQueue {
	return s.cfg.deadLetters
}

// Pending returns the number of flows waiting for a terminal envelope.
func (s *Service) Pending() int {
	return s.pending.Pending()
}

// Close fails pending flows with ErrServiceClosed, waits for in-flight
// handlers, and closes anything the service opened itself.
func (s *Service) Close() error {
	var errs []error
	s.once.Do(func() {
		s.closed.Store(true)
		s.pending.Close()
		if err := s.bus.Close(); err != nil {
			errs = append(errs, err)
		}
		for _, sub := range s.subs {
			sub.Unsubscribe()
		}
		for i := len(s.owned) - 1; i >= 0; i-- {
			if err := s.owned[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
