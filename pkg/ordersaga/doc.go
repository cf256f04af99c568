// Package ordersaga places orders across the order and inventory domains
// without a coordinating transaction.
//
// A Service exposes one synchronous call, InitiateOrder. It opens a
// correlation slot for the request's transaction id, publishes an
// order.create envelope onto an in-process bus, and waits for the
// order.completed envelope of the same transaction:
//
//	svc, err := ordersaga.New(store)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	result, err := svc.InitiateOrder(ctx, ordersaga.OrderRequest{
//	    UserID: "user-1",
//	    Items:  []ordersaga.ItemRequest{{ResourceKey: sku, Quantity: 2}},
//	})
//	var flowErr *ordersaga.FlowError
//	if errors.As(err, &flowErr) {
//	    // flowErr.Info carries code, message, and per-item detail.
//	}
//
// Between publish and completion the flow is driven entirely by the
// handlers in package saga. Business failures (insufficient stock,
// concurrent modification) come back as a *FlowError with the failing
// items. Handler faults are logged, recorded as dead letters, and fail
// only the flow they belong to.
//
// Open builds a Service from config.Settings, choosing the reservation
// backend (memory, SQLite, Redis, or PostgreSQL) and the order repository.
package ordersaga
