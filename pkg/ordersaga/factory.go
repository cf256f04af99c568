package ordersaga

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/config"
	oserrors "github.com/randalmurphal/ordersaga/pkg/ordersaga/errors"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/order"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/reservation"
)

// NewLogger builds the process logger described by ls.
func NewLogger(w io.Writer, ls config.LogSettings) (*slog.Logger, error) {
	level, err := config.ParseLevel(ls.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch ls.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", ls.Format)
	}
}

// OpenBackend connects the reservation backend selected by ss. Remote
// backends are dialed with retries since they may still be starting.
func OpenBackend(ctx context.Context, ss config.StoreSettings) (reservation.Backend, error) {
	dial := func(ctx context.Context) (reservation.Backend, error) {
		switch ss.Backend {
		case config.BackendMemory, "":
			return reservation.NewMemoryBackend(), nil
		case config.BackendSQLite:
			return reservation.NewSQLiteBackend(ctx, ss.SQLitePath)
		case config.BackendRedis:
			return reservation.DialRedis(ctx, ss.RedisAddr, ss.RedisPrefix)
		case config.BackendPostgres:
			return reservation.NewPostgresBackend(ctx, ss.PostgresDSN)
		default:
			return nil, oserrors.Caller(fmt.Errorf("unknown backend %q", ss.Backend), "open reservation backend")
		}
	}

	if ss.Backend != config.BackendRedis && ss.Backend != config.BackendPostgres {
		return dial(ctx)
	}

	policy := oserrors.NewConnectPolicy(
		oserrors.ConnectAttempts(ss.ConnectAttempts),
		oserrors.ConnectBackoff(ss.ConnectBackoff, 0),
	)
	backend, attempts, err := oserrors.Connect(ctx, policy, dial)
	if err != nil {
		return nil, fmt.Errorf("open %s backend after %d attempt(s): %w", ss.Backend, attempts, err)
	}
	return backend, nil
}

// OpenOrders opens the order repository described by set. An empty
// SQLitePath keeps orders in memory.
func OpenOrders(ctx context.Context, set config.OrderSettings) (order.Repository, error) {
	if set.SQLitePath == "" {
		return order.NewMemoryRepository(), nil
	}
	return order.NewSQLiteRepository(ctx, set.SQLitePath)
}

// Open builds a Service from settings. The service owns the backend and
// repository it opens and closes them on Close. opts are applied after
// the settings, so they override them.
func Open(ctx context.Context, settings config.Settings, opts ...Option) (*Service, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	cfg := defaultServiceConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	backend, err := OpenBackend(ctx, settings.Store)
	if err != nil {
		return nil, err
	}
	store := reservation.NewStore(backend,
		reservation.WithLogger(cfg.logger),
		reservation.WithMetrics(cfg.metrics),
		reservation.WithClock(cfg.now),
	)

	orders, err := OpenOrders(ctx, settings.Orders)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	base := []Option{
		WithAwaitTimeout(settings.AwaitTimeout),
		WithCompensation(settings.CompensatePartial),
		WithMaxConcurrency(settings.Bus.MaxConcurrency),
		WithDedupeTTL(settings.Bus.DedupeTTL),
		WithOrderRepository(orders),
	}
	svc, err := New(store, append(base, opts...)...)
	if err != nil {
		_ = orders.Close()
		_ = store.Close()
		return nil, err
	}
	svc.owned = append(svc.owned, store, orders)
	cfg.logger.Debug("service opened",
		"store_backend", settings.Store.Backend,
		"orders_sqlite", settings.Orders.SQLitePath != "",
	)
	return svc, nil
}
