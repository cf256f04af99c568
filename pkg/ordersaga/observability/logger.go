// Package observability provides structured logging, metrics, and tracing
// for order placement flows.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Logging helpers accept a nil logger and do nothing.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// EnrichLogger adds flow context to a logger.
func EnrichLogger(logger *slog.Logger, txID, kind string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("tx_id", txID),
		slog.String("kind", kind),
	)
}

// LogFlowStart logs the start of an order flow.
func LogFlowStart(logger *slog.Logger, txID string, lines int) {
	if logger == nil {
		return
	}
	logger.Info("order flow starting",
		slog.String("tx_id", txID),
		slog.Int("lines", lines),
	)
}

// LogFlowComplete logs a confirmed order.
func LogFlowComplete(logger *slog.Logger, txID, orderID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("order flow completed",
		slog.String("tx_id", txID),
		slog.String("order_id", orderID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogFlowRejected logs a flow that ended without a confirmed order.
func LogFlowRejected(logger *slog.Logger, txID, code string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Warn("order flow rejected",
		slog.String("tx_id", txID),
		slog.String("code", code),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogHandlerFault logs a handler that failed or panicked.
func LogHandlerFault(logger *slog.Logger, txID, kind, handler string, err error) {
	if logger == nil {
		return
	}
	logger.Error("handler fault",
		slog.String("tx_id", txID),
		slog.String("kind", kind),
		slog.String("handler", handler),
		slog.String("error", err.Error()),
	)
}

// LogOrphanTerminal logs a terminal envelope nobody was waiting for.
func LogOrphanTerminal(logger *slog.Logger, txID string, isError bool, err error) {
	if logger == nil {
		return
	}
	logger.Error("terminal envelope without pending caller",
		slog.String("tx_id", txID),
		slog.Bool("is_error", isError),
		slog.String("error", err.Error()),
	)
}

// LogReservation logs a successful reservation.
func LogReservation(logger *slog.Logger, resourceKey string, quantity int, version int64, reservationID string) {
	if logger == nil {
		return
	}
	logger.Debug("resource reserved",
		slog.String("resource_key", resourceKey),
		slog.Int("quantity", quantity),
		slog.Int64("version", version),
		slog.String("reservation_id", reservationID),
	)
}

// LogReservationFailure logs a refused reservation or release.
func LogReservationFailure(logger *slog.Logger, op, resourceKey string, quantity int, err error) {
	if logger == nil {
		return
	}
	logger.Debug("reservation refused",
		slog.String("operation", op),
		slog.String("resource_key", resourceKey),
		slog.Int("quantity", quantity),
		slog.String("error", err.Error()),
	)
}

// LogCompensation logs the release of reservations from a failed batch.
func LogCompensation(logger *slog.Logger, txID, orderID string, released, failed int) {
	if logger == nil {
		return
	}
	level := slog.LevelInfo
	if failed > 0 {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, "partial reservation compensated",
		slog.String("tx_id", txID),
		slog.String("order_id", orderID),
		slog.Int("released", released),
		slog.Int("release_failures", failed),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
