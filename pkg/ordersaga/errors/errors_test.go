package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type stockError struct{}

func (stockError) Error() string { return "not enough stock" }
func (stockError) ErrorCategory() Category { return CategoryBusiness }

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		expected string
	}{
		{CategoryFault, "fault"},
		{CategoryCaller, "caller"},
		{CategoryBusiness, "business"},
		{CategoryTransient, "transient"},
		{Category(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.category.String(); got != tt.expected {
				t.Errorf("Category(%d).String() = %s, want %s", tt.category, got, tt.expected)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"nil error", nil, CategoryFault},
		{"categorized transient", Transient(errors.New("refused"), "dial"), CategoryTransient},
		{"categorized caller", Caller(errors.New("bad"), "validate"), CategoryCaller},
		{"typed business", stockError{}, CategoryBusiness},
		{"wrapped typed business", fmt.Errorf("reserve: %w", stockError{}), CategoryBusiness},
		{"deadline", context.DeadlineExceeded, CategoryTransient},
		{"unknown error", errors.New("unknown"), CategoryFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err); got != tt.expected {
				t.Errorf("Categorize() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestCategorizedError(t *testing.T) {
	t.Run("error message with context", func(t *testing.T) {
		err := NewCategorized(errors.New("failed"), CategoryTransient, "redis ping")
		expected := "redis ping: failed (category: transient, attempts: 0)"
		if got := err.Error(); got != expected {
			t.Errorf("Error() = %q, want %q", got, expected)
		}
	})

	t.Run("error message without context", func(t *testing.T) {
		err := NewCategorized(errors.New("failed"), CategoryFault, "")
		expected := "failed (category: fault, attempts: 0)"
		if got := err.Error(); got != expected {
			t.Errorf("Error() = %q, want %q", got, expected)
		}
	})

	t.Run("unwrap", func(t *testing.T) {
		inner := errors.New("inner")
		err := Fault(inner, "ctx")
		if !errors.Is(err, inner) {
			t.Error("errors.Is should find inner error")
		}
	})
}

func TestHelperFunctions(t *testing.T) {
	if !IsCallerError(Caller(errors.New("x"), "")) {
		t.Error("caller error should be reported as caller")
	}
	if IsCallerError(Transient(errors.New("x"), "")) {
		t.Error("transient error is not a caller error")
	}
	if !IsBusinessError(stockError{}) {
		t.Error("stock error should be business")
	}
}

func fastPolicy(attempts int) ConnectPolicy {
	return NewConnectPolicy(ConnectAttempts(attempts), ConnectBackoff(time.Millisecond, time.Millisecond))
}

func TestConnect(t *testing.T) {
	t.Run("first dial succeeds", func(t *testing.T) {
		v, attempts, err := Connect(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
			return "up", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "up" || attempts != 1 {
			t.Errorf("got (%q, %d), want (\"up\", 1)", v, attempts)
		}
	})

	t.Run("succeeds after refusals", func(t *testing.T) {
		calls := 0
		_, attempts, err := Connect(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("dial tcp: connection refused")
			}
			return 1, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		refused := errors.New("dial tcp: connection refused")
		_, attempts, err := Connect(context.Background(), fastPolicy(2), func(context.Context) (int, error) {
			return 0, refused
		})
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
		if !errors.Is(err, refused) {
			t.Errorf("err = %v, want wrapped refusal", err)
		}
		if Categorize(err) != CategoryTransient {
			t.Errorf("category = %s, want transient", Categorize(err))
		}
	})

	t.Run("caller error stops immediately", func(t *testing.T) {
		calls := 0
		_, _, err := Connect(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
			calls++
			return 0, Caller(errors.New("bad dsn"), "parse")
		})
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
		if !IsCallerError(err) {
			t.Errorf("category = %s, want caller", Categorize(err))
		}
	})

	t.Run("cancelled before first dial", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, attempts, err := Connect(ctx, fastPolicy(3), func(context.Context) (int, error) {
			t.Fatal("dial should not be called")
			return 0, nil
		})
		if !errors.Is(err, context.Canceled) || attempts != 0 {
			t.Errorf("got (%d, %v), want (0, context.Canceled)", attempts, err)
		}
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		p := NewConnectPolicy(ConnectAttempts(10), ConnectBackoff(time.Second, 0))
		p.Jitter = 0
		_, attempts, err := Connect(ctx, p, func(context.Context) (int, error) {
			return 0, errors.New("busy")
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})
}

func TestNewConnectPolicy(t *testing.T) {
	p := NewConnectPolicy(ConnectAttempts(7), ConnectBackoff(2*time.Second, time.Minute))
	if p.Attempts != 7 || p.Backoff != 2*time.Second || p.MaxBackoff != time.Minute {
		t.Errorf("unexpected policy: %+v", p)
	}

	p = NewConnectPolicy(ConnectAttempts(0), ConnectBackoff(0, 0))
	if p != DefaultConnectPolicy {
		t.Errorf("zero options should keep defaults, got %+v", p)
	}

	p = NewConnectPolicy(ConnectBackoff(10*time.Second, 0))
	if p.MaxBackoff != 10*time.Second {
		t.Errorf("cap below first pause should be raised, got %s", p.MaxBackoff)
	}
}

func TestConnectPolicyPause(t *testing.T) {
	p := ConnectPolicy{Backoff: 100 * time.Millisecond, MaxBackoff: 350 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, w := range want {
		if got := p.pause(i + 1); got != w {
			t.Errorf("pause(%d) = %s, want %s", i+1, got, w)
		}
	}
}
