// Package event carries the envelopes exchanged by the order placement flow.
//
// An envelope is a Header plus one payload from a closed set of kinds:
//
//	order.create                        boundary -> order handler
//	inventory.reservation.requested     order handler -> inventory handler
//	inventory.reservation.succeeded     inventory handler -> order handler
//	inventory.reservation.failed        inventory handler -> order handler
//	order.completed                     order handler -> boundary (terminal)
//
// Every envelope in a flow carries the transaction id assigned when the
// flow was initiated. Handlers derive follow-up envelopes with
// NewFromParent, which copies the transaction id and origin user and
// records the causing envelope id.
//
// LocalBus delivers each published envelope to every subscriber of its
// kind on a separate goroutine. Delivery is at most once: a handler
// error or panic is reported through BusConfig.OnError and never retried.
// Envelopes returned by a handler are published by the bus after the
// handler returns.
//
// Catalog holds per-kind validation and checks at startup that every kind
// in the closed set has a subscriber:
//
//	catalog := event.DefaultCatalog()
//	bus := event.NewBus(event.BusConfig{Catalog: catalog})
//	bus.Subscribe([]event.Kind{event.KindOrderCreate}, orderHandler)
//	// ...
//	if err := catalog.VerifyCoverage(bus); err != nil {
//	    return err
//	}
package event
