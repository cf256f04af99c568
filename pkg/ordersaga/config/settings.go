package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Store backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ErrInvalidSettings wraps every validation failure from Settings.Validate.
var ErrInvalidSettings = errors.New("invalid settings")

// BusSettings configures the event bus.
type BusSettings struct {
	MaxConcurrency int
	DedupeTTL      time.Duration
}

// StoreSettings selects and configures the reservation backend.
type StoreSettings struct {
	Backend         string
	SQLitePath      string
	RedisAddr       string
	RedisPrefix     string
	PostgresDSN     string
	ConnectAttempts int
	// ConnectBackoff is the pause after the first failed dial. It doubles
	// on each further failure.
	ConnectBackoff time.Duration
}

// OrderSettings configures the order repository. An empty SQLitePath
// keeps orders in memory.
type OrderSettings struct {
	SQLitePath string
}

// LogSettings configures the process logger.
type LogSettings struct {
	Level  string
	Format string
}

// Settings is the typed service configuration.
type Settings struct {
	AwaitTimeout      time.Duration
	CompensatePartial bool
	Bus               BusSettings
	Store             StoreSettings
	Orders            OrderSettings
	Log               LogSettings
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() Settings {
	return Settings{
		AwaitTimeout:      5 * time.Second,
		CompensatePartial: true,
		Bus: BusSettings{
			MaxConcurrency: 64,
		},
		Store: StoreSettings{
			Backend:         BackendMemory,
			SQLitePath:      "ordersaga.db",
			RedisAddr:       "localhost:6379",
			RedisPrefix:     "ordersaga",
			ConnectAttempts: 3,
			ConnectBackoff:  200 * time.Millisecond,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// FromConfig reads Settings from cfg, falling back to DefaultSettings
// for anything missing.
func FromConfig(cfg Config) Settings {
	d := DefaultSettings()
	store := cfg.Sub("store")
	return Settings{
		AwaitTimeout:      cfg.Duration("await_timeout", d.AwaitTimeout),
		CompensatePartial: cfg.Bool("compensate_partial", d.CompensatePartial),
		Bus: BusSettings{
			MaxConcurrency: cfg.Int("bus.max_concurrency", d.Bus.MaxConcurrency),
			DedupeTTL:      cfg.Duration("bus.dedupe_ttl", d.Bus.DedupeTTL),
		},
		Store: StoreSettings{
			Backend:         strings.ToLower(store.String("backend", d.Store.Backend)),
			SQLitePath:      store.String("sqlite_path", d.Store.SQLitePath),
			RedisAddr:       store.String("redis_addr", d.Store.RedisAddr),
			RedisPrefix:     store.String("redis_prefix", d.Store.RedisPrefix),
			PostgresDSN:     store.String("postgres_dsn", d.Store.PostgresDSN),
			ConnectAttempts: store.Int("connect_attempts", d.Store.ConnectAttempts),
			ConnectBackoff:  store.Duration("connect_backoff", d.Store.ConnectBackoff),
		},
		Orders: OrderSettings{
			SQLitePath: cfg.String("orders.sqlite_path", d.Orders.SQLitePath),
		},
		Log: LogSettings{
			Level:  cfg.String("log.level", d.Log.Level),
			Format: cfg.String("log.format", d.Log.Format),
		},
	}
}

// Load reads settings from path. An empty path returns DefaultSettings.
func Load(path string) (Settings, error) {
	if path == "" {
		return DefaultSettings(), nil
	}
	cfg, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	s := FromConfig(cfg)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks that the settings are usable.
func (s Settings) Validate() error {
	var errs []error
	if s.AwaitTimeout < 0 {
		errs = append(errs, errors.New("await_timeout must not be negative"))
	}
	if s.Bus.MaxConcurrency < 1 {
		errs = append(errs, errors.New("bus.max_concurrency must be at least 1"))
	}
	if s.Store.ConnectAttempts < 1 {
		errs = append(errs, errors.New("store.connect_attempts must be at least 1"))
	}
	if s.Store.ConnectBackoff < 0 {
		errs = append(errs, errors.New("store.connect_backoff must not be negative"))
	}

	switch s.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if s.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
		}
	case BackendRedis:
		if s.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis backend"))
		}
	case BackendPostgres:
		if s.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", s.Store.Backend))
	}

	if _, err := ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if s.Log.Format != "text" && s.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log.format %q", s.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown log.level %q", name)
	}
	return level, nil
}
