package event_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/event"
)

type errorLog struct {
	mu   sync.Mutex
	errs []error
	evts []event.Event
}

func (l *errorLog) record(evt event.Event, _ string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
	l.evts = append(l.evts, evt)
}

func (l *errorLog) snapshot() ([]event.Event, []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event.Event(nil), l.evts...), append([]error(nil), l.errs...)
}

func counting(n *atomic.Int32) event.Handler {
	return event.HandlerFunc(func(context.Context, event.Event) ([]event.Event, error) {
		n.Add(1)
		return nil, nil
	})
}

func TestBusDeliversToMatchingKind(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)

	var creates, completions atomic.Int32
	require.NotNil(t, bus.Subscribe([]event.Kind{event.KindOrderCreate}, counting(&creates)))
	require.NotNil(t, bus.Subscribe([]event.Kind{event.KindOrderCreate}, counting(&creates)))
	require.NotNil(t, bus.Subscribe([]event.Kind{event.KindOrderCompleted}, counting(&completions)))

	require.NoError(t, bus.Publish(context.Background(), event.New("tx", "u", sampleCreate())))
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(2), creates.Load())
	assert.Equal(t, int32(0), completions.Load())
}

func TestBusPublishesDerivedEvents(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)

	done := make(chan event.Header, 1)
	bus.Subscribe(nil, event.TypedHandler(func(_ context.Context, _ event.Header, p event.OrderCreate) ([]event.Event, error) {
		return nil, nil
	}))
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, event.HandlerFunc(func(_ context.Context, evt event.Event) ([]event.Event, error) {
		return []event.Event{event.NewFromParent(evt, event.ReservationRequest{OrderID: "o-1", Items: sampleCreate().Items})}, nil
	}))
	bus.Subscribe([]event.Kind{event.KindReservationRequested}, event.HandlerFunc(func(_ context.Context, evt event.Event) ([]event.Event, error) {
		done <- evt.Header()
		return nil, nil
	}))

	root := event.New("tx-derived", "u", sampleCreate())
	require.NoError(t, bus.Publish(context.Background(), root))

	select {
	case h := <-done:
		assert.Equal(t, "tx-derived", h.TransactionID)
		assert.Equal(t, root.Header().EventID, h.CausationID)
	case <-time.After(2 * time.Second):
		t.Fatal("derived envelope not delivered")
	}
	require.NoError(t, bus.Close())
}

func TestBusIsolatesHandlerFailures(t *testing.T) {
	var log errorLog
	bus := event.NewBus(event.BusConfig{OnError: log.record})

	var healthy atomic.Int32
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, event.HandlerFunc(func(context.Context, event.Event) ([]event.Event, error) {
		panic("boom")
	}))
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, event.HandlerFunc(func(context.Context, event.Event) ([]event.Event, error) {
		return nil, errors.New("handler failed")
	}))
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, counting(&healthy))

	for range 3 {
		require.NoError(t, bus.Publish(context.Background(), event.New("tx", "u", sampleCreate())))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(3), healthy.Load())
	_, errs := log.snapshot()
	require.Len(t, errs, 6)

	var panics int
	for _, err := range errs {
		var p *event.PanicError
		if errors.As(err, &p) {
			panics++
			assert.Equal(t, "boom", p.Value)
		}
	}
	assert.Equal(t, 3, panics)
}

func TestBusDoesNotRetryFailedHandler(t *testing.T) {
	var calls atomic.Int32
	bus := event.NewBus(event.DefaultBusConfig)
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, event.HandlerFunc(func(context.Context, event.Event) ([]event.Event, error) {
		calls.Add(1)
		return nil, errors.New("nope")
	}))

	require.NoError(t, bus.Publish(context.Background(), event.New("tx", "u", sampleCreate())))
	require.NoError(t, bus.Close())
	assert.Equal(t, int32(1), calls.Load())
}

func TestBusPublishDoesNotWaitForHandlers(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	release := make(chan struct{})
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, event.HandlerFunc(func(context.Context, event.Event) ([]event.Event, error) {
		<-release
		return nil, nil
	}))

	published := make(chan error, 1)
	go func() {
		published <- bus.Publish(context.Background(), event.New("tx", "u", sampleCreate()))
	}()

	select {
	case err := <-published:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish blocked on handler")
	}
	close(release)
	require.NoError(t, bus.Close())
}

func TestBusHandlerOutlivesPublisherContext(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	seen := make(chan error, 1)
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, event.HandlerFunc(func(ctx context.Context, _ event.Event) ([]event.Event, error) {
		time.Sleep(10 * time.Millisecond)
		seen <- ctx.Err()
		return nil, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, event.New("tx", "u", sampleCreate())))
	cancel()

	require.NoError(t, bus.Close())
	assert.NoError(t, <-seen)
}

func TestBusRejectsInvalidEnvelopes(t *testing.T) {
	var called atomic.Int32
	bus := event.NewBus(event.BusConfig{Catalog: event.DefaultCatalog()})
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, counting(&called))

	err := bus.Publish(context.Background(), event.New("tx", "u", event.OrderCreate{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no line items")

	require.NoError(t, bus.Close())
	assert.Equal(t, int32(0), called.Load())
}

func TestBusReportsInvalidDerivedEnvelope(t *testing.T) {
	var log errorLog
	bus := event.NewBus(event.BusConfig{Catalog: event.DefaultCatalog(), OnError: log.record})
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, event.HandlerFunc(func(_ context.Context, evt event.Event) ([]event.Event, error) {
		// terminal error flag without failure payload
		return []event.Event{event.NewFromParent(evt, event.OrderCompleted{}, event.WithError())}, nil
	}))

	require.NoError(t, bus.Publish(context.Background(), event.New("tx", "u", sampleCreate())))
	require.NoError(t, bus.Close())

	evts, errs := log.snapshot()
	require.Len(t, errs, 1)
	assert.Equal(t, event.KindOrderCompleted, evts[0].Kind())
	assert.Contains(t, errs[0].Error(), "without failure payload")
}

func TestBusClose(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), event.New("tx", "u", sampleCreate()))
	assert.ErrorIs(t, err, event.ErrBusClosed)
	assert.Nil(t, bus.Subscribe([]event.Kind{event.KindOrderCreate}, event.HandlerFunc(nil)))
}

func TestBusCloseWaitsForInflight(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	var finished atomic.Bool
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, event.HandlerFunc(func(context.Context, event.Event) ([]event.Event, error) {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil, nil
	}))

	require.NoError(t, bus.Publish(context.Background(), event.New("tx", "u", sampleCreate())))
	require.NoError(t, bus.Close())
	assert.True(t, finished.Load())
}

func TestBusSubscribeValidation(t *testing.T) {
	bus := event.NewBus(event.BusConfig{MaxSubscribers: 1})
	defer bus.Close()

	assert.Nil(t, bus.Subscribe([]event.Kind{"unknown.kind"}, event.HandlerFunc(nil)))
	assert.Nil(t, bus.Subscribe(nil, event.HandlerFunc(nil)), "no kinds and handler declares none")

	sub := bus.Subscribe([]event.Kind{event.KindOrderCreate}, event.HandlerFunc(nil))
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID())
	assert.Nil(t, bus.Subscribe([]event.Kind{event.KindOrderCompleted}, event.HandlerFunc(nil)))
}

func TestBusSubscribedKinds(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	defer bus.Close()

	assert.Empty(t, bus.SubscribedKinds())

	sub := bus.Subscribe([]event.Kind{event.KindOrderCompleted, event.KindOrderCreate}, event.HandlerFunc(nil))
	assert.Equal(t, []event.Kind{event.KindOrderCreate, event.KindOrderCompleted}, bus.SubscribedKinds())

	sub.Unsubscribe()
	assert.Empty(t, bus.SubscribedKinds())
}

func TestBusPauseResume(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	var n atomic.Int32
	sub := bus.Subscribe([]event.Kind{event.KindOrderCreate}, counting(&n))

	sub.Pause()
	assert.True(t, sub.IsPaused())
	require.NoError(t, bus.Publish(context.Background(), event.New("tx", "u", sampleCreate())))

	sub.Resume()
	assert.False(t, sub.IsPaused())
	require.NoError(t, bus.Publish(context.Background(), event.New("tx", "u", sampleCreate())))

	require.NoError(t, bus.Close())
	assert.Equal(t, int32(1), n.Load())
}

func TestBusDeduplication(t *testing.T) {
	bus := event.NewBus(event.BusConfig{DeduplicateTTL: time.Minute})
	var n atomic.Int32
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, counting(&n))

	env := event.New("tx", "u", sampleCreate())
	require.NoError(t, bus.Publish(context.Background(), env))
	require.NoError(t, bus.Publish(context.Background(), env))

	require.NoError(t, bus.Close())
	assert.Equal(t, int32(1), n.Load())
}

func TestBusNonBlockingDrops(t *testing.T) {
	var dropped atomic.Int32
	bus := event.NewBus(event.BusConfig{
		MaxConcurrency: 1,
		NonBlocking:    true,
		OnDrop:         func(event.Event, string) { dropped.Add(1) },
	})

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, event.HandlerFunc(func(context.Context, event.Event) ([]event.Event, error) {
		once.Do(func() { close(started) })
		<-release
		return nil, nil
	}))

	require.NoError(t, bus.Publish(context.Background(), event.New("tx", "u", sampleCreate())))
	<-started
	require.NoError(t, bus.Publish(context.Background(), event.New("tx", "u", sampleCreate())))

	close(release)
	require.NoError(t, bus.Close())
	assert.Equal(t, int32(1), dropped.Load())
}

func TestBusBoundsConcurrency(t *testing.T) {
	bus := event.NewBus(event.BusConfig{MaxConcurrency: 2})

	var running, peak atomic.Int32
	bus.Subscribe([]event.Kind{event.KindOrderCreate}, event.HandlerFunc(func(context.Context, event.Event) ([]event.Event, error) {
		cur := running.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}))

	for range 10 {
		require.NoError(t, bus.Publish(context.Background(), event.New("tx", "u", sampleCreate())))
	}
	require.NoError(t, bus.Close())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestBusOnPublish(t *testing.T) {
	var kinds []event.Kind
	var mu sync.Mutex
	bus := event.NewBus(event.BusConfig{OnPublish: func(_ context.Context, evt event.Event) {
		mu.Lock()
		kinds = append(kinds, evt.Kind())
		mu.Unlock()
	}})
	require.NoError(t, bus.Publish(context.Background(), event.New("tx", "u", sampleCreate())))
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []event.Kind{event.KindOrderCreate}, kinds)
}

func TestBusReportsHandlerName(t *testing.T) {
	var log errorLog
	bus := event.NewBus(event.BusConfig{OnError: log.record})
	bus.Subscribe(nil, event.Named("Orders.Create", event.TypedHandler(func(context.Context, event.Header, event.OrderCreate) ([]event.Event, error) {
		return nil, errors.New("disk full")
	})))

	require.NoError(t, bus.Publish(context.Background(), event.New("tx", "u", sampleCreate())))
	require.NoError(t, bus.Close())

	_, errs := log.snapshot()
	require.Len(t, errs, 1)
	var eerr *event.EventError
	require.ErrorAs(t, errs[0], &eerr)
	assert.Equal(t, "Orders.Create", eerr.Handler)
	assert.Contains(t, eerr.Error(), "disk full")
}
