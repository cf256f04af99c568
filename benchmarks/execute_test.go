package benchmarks

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/reservation"
)

// newService returns a service over a memory store seeded with one
// resource holding qty units.
func newService(b *testing.B, qty int) (*ordersaga.Service, uuid.UUID) {
	b.Helper()
	store := reservation.NewStore(reservation.NewMemoryBackend())
	svc, err := ordersaga.New(store)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() {
		_ = svc.Close()
		_ = store.Close()
	})
	key := uuid.New()
	if _, err := store.Seed(context.Background(), key, qty); err != nil {
		b.Fatal(err)
	}
	return svc, key
}

func orderFor(key uuid.UUID) ordersaga.OrderRequest {
	return ordersaga.OrderRequest{
		UserID: "bench",
		Items:  []ordersaga.ItemRequest{{ResourceKey: key, Quantity: 1}},
	}
}

// BenchmarkInitiateOrder_Confirmed measures one full successful flow.
func BenchmarkInitiateOrder_Confirmed(b *testing.B) {
	svc, key := newService(b, b.N+1)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.InitiateOrder(ctx, orderFor(key)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkInitiateOrder_Rejected measures a flow that fails on stock.
func BenchmarkInitiateOrder_Rejected(b *testing.B) {
	svc, key := newService(b, 0)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = svc.InitiateOrder(ctx, orderFor(key))
	}
}

// BenchmarkInitiateOrder_Parallel runs flows against separate resources.
func BenchmarkInitiateOrder_Parallel(b *testing.B) {
	svc, _ := newService(b, 0)
	store := svc.Store()
	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		key := uuid.New()
		if _, err := store.Seed(ctx, key, b.N+1); err != nil {
			b.Error(err)
			return
		}
		for pb.Next() {
			_, _ = svc.InitiateOrder(ctx, orderFor(key))
		}
	})
}

// BenchmarkValidationReject measures the fast path that never publishes.
func BenchmarkValidationReject(b *testing.B) {
	svc, key := newService(b, 1)
	ctx := context.Background()
	req := ordersaga.OrderRequest{UserID: "bench", Items: []ordersaga.ItemRequest{{ResourceKey: key}}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = svc.InitiateOrder(ctx, req)
	}
}
