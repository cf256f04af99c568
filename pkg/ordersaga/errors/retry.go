package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// ConnectPolicy controls how remote reservation backends are dialed at
// startup. Business operations never go through it.
type ConnectPolicy struct {
	// Attempts is the total number of dials, including the first.
	Attempts int

	// Backoff is the pause after the first failed dial. It doubles after
	// each further failure up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// Jitter randomizes each pause by up to this fraction (0..1).
	Jitter float64
}

// DefaultConnectPolicy suits a redis or postgres that may still be booting.
var DefaultConnectPolicy = ConnectPolicy{
	Attempts:   5,
	Backoff:    200 * time.Millisecond,
	MaxBackoff: 5 * time.Second,
	Jitter:     0.2,
}

// ConnectOption adjusts a ConnectPolicy.
type ConnectOption func(*ConnectPolicy)

// ConnectAttempts sets the number of dials. Values below 1 are ignored.
func ConnectAttempts(n int) ConnectOption {
	return func(p *ConnectPolicy) {
		if n > 0 {
			p.Attempts = n
		}
	}
}

// ConnectBackoff sets the first pause and the cap. Zero keeps the current
// value.
func ConnectBackoff(first, limit time.Duration) ConnectOption {
	return func(p *ConnectPolicy) {
		if first > 0 {
			p.Backoff = first
		}
		if limit > 0 {
			p.MaxBackoff = limit
		}
		if p.MaxBackoff < p.Backoff {
			p.MaxBackoff = p.Backoff
		}
	}
}

// NewConnectPolicy applies opts to DefaultConnectPolicy.
func NewConnectPolicy(opts ...ConnectOption) ConnectPolicy {
	p := DefaultConnectPolicy
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// pause returns the wait after the n-th failed dial (1-based).
func (p ConnectPolicy) pause(n int) time.Duration {
	d := p.Backoff
	for i := 1; i < n && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * (rand.Float64()*2 - 1))
	}
	return d
}

// Connect calls dial until it succeeds. It gives up when the attempts run
// out, when dial returns a caller error, or when ctx ends. The second
// return value is the number of dials made.
//
// Exhausted attempts yield a transient *CategorizedError wrapping the last
// failure.
func Connect[T any](ctx context.Context, p ConnectPolicy, dial func(context.Context) (T, error)) (T, int, error) {
	var zero T
	attempts := max(p.Attempts, 1)

	var last error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return zero, n - 1, &CategorizedError{Err: err, Category: CategoryFault, Retries: n - 1, Context: "connect cancelled"}
		}

		v, err := dial(ctx)
		if err == nil {
			return v, n, nil
		}
		if IsCallerError(err) {
			return zero, n, err
		}
		last = err

		if n == attempts {
			break
		}
		timer := time.NewTimer(p.pause(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, n, &CategorizedError{Err: ctx.Err(), Category: CategoryFault, Retries: n, Context: "connect cancelled"}
		case <-timer.C:
		}
	}

	return zero, attempts, &CategorizedError{Err: last, Category: CategoryTransient, Retries: attempts, Context: "connect"}
}
