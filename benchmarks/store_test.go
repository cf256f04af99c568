package benchmarks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/correlation"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/reservation"
)

func benchReserveRelease(b *testing.B, backend reservation.Backend) {
	store := reservation.NewStore(backend)
	b.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	key := uuid.New()
	if _, err := store.Seed(ctx, key, 1); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := store.Reserve(ctx, key, 1)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := store.Release(ctx, key, 1, reservation.WithReservationID(res.ID)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkStore_Memory reserves and releases against the memory backend.
func BenchmarkStore_Memory(b *testing.B) {
	benchReserveRelease(b, reservation.NewMemoryBackend())
}

// BenchmarkStore_SQLite reserves and releases against a SQLite file.
func BenchmarkStore_SQLite(b *testing.B) {
	backend, err := reservation.NewSQLiteBackend(context.Background(), filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	benchReserveRelease(b, backend)
}

// BenchmarkStore_Redis reserves and releases against miniredis.
func BenchmarkStore_Redis(b *testing.B) {
	mr := miniredis.RunT(b)
	backend, err := reservation.DialRedis(context.Background(), mr.Addr(), "bench")
	if err != nil {
		b.Fatal(err)
	}
	benchReserveRelease(b, backend)
}

// BenchmarkRegistry_OpenResolveAwait measures one correlation round trip.
func BenchmarkRegistry_OpenResolveAwait(b *testing.B) {
	reg := correlation.NewRegistry[int]()
	ctx := context.Background()
	ids := make([]string, b.N)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err := reg.Open(ids[i])
		if err != nil {
			b.Fatal(err)
		}
		_ = reg.Resolve(ids[i], i)
		if _, err := reg.Await(ctx, h, 0); err != nil {
			b.Fatal(err)
		}
	}
}
