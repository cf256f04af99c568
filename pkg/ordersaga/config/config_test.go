package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/config"
)

// TestNew verifies Config creation from maps.
func TestNew(t *testing.T) {
	assert.NotNil(t, config.New(nil).Raw())
	assert.Equal(t, "v", config.New(map[string]any{"k": "v"}).String("k", ""))
}

func nested() config.Config {
	return config.New(map[string]any{
		"await_timeout": "2s",
		"flat.key":      "flat",
		"store": map[string]any{
			"backend":          "redis",
			"connect_attempts": 4,
			"nested":           map[string]any{"deep": true},
		},
		"legacy": map[any]any{"name": "yaml-v2-style"},
		"scalar": 7,
	})
}

// TestDottedLookup verifies keys descend into nested maps.
func TestDottedLookup(t *testing.T) {
	cfg := nested()

	assert.Equal(t, "redis", cfg.String("store.backend", "memory"))
	assert.Equal(t, 4, cfg.Int("store.connect_attempts", 1))
	assert.True(t, cfg.Bool("store.nested.deep", false))
	assert.Equal(t, "yaml-v2-style", cfg.String("legacy.name", ""))
	assert.Equal(t, "flat", cfg.String("flat.key", ""), "literal dotted keys win")

	assert.Equal(t, "memory", cfg.String("store.missing", "memory"))
	assert.Equal(t, "d", cfg.String("scalar.child", "d"))
	assert.True(t, cfg.Has("store.nested"))
	assert.False(t, cfg.Has("store.nope"))
}

// TestSub verifies nested map extraction.
func TestSub(t *testing.T) {
	cfg := nested()

	store := cfg.Sub("store")
	assert.Equal(t, "redis", store.String("backend", ""))
	assert.True(t, store.Sub("nested").Bool("deep", false))

	assert.Empty(t, cfg.Sub("missing").Raw())
	assert.Empty(t, cfg.Sub("scalar").Raw())
	assert.Equal(t, "yaml-v2-style", cfg.Sub("legacy").String("name", ""))
}

// TestDuration verifies duration extraction with various input types.
func TestDuration(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want time.Duration
	}{
		{"string", "30s", 30 * time.Second},
		{"complex string", "1h30m", 90 * time.Minute},
		{"int seconds", 5, 5 * time.Second},
		{"int64 seconds", int64(2), 2 * time.Second},
		{"float seconds", 1.5, 1500 * time.Millisecond},
		{"duration", 3 * time.Millisecond, 3 * time.Millisecond},
		{"invalid string", "soon", time.Minute},
		{"wrong type", true, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"d": tt.val})
			assert.Equal(t, tt.want, cfg.Duration("d", time.Minute))
		})
	}
}

// TestInt verifies integer extraction.
func TestInt(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want int
	}{
		{"int", 3, 3},
		{"int64", int64(9), 9},
		{"whole float", 4.0, 4},
		{"fractional float", 4.5, -1},
		{"string", "4", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"n": tt.val})
			assert.Equal(t, tt.want, cfg.Int("n", -1))
		})
	}
}

// TestStringAndBool verifies defaults on type mismatch.
func TestStringAndBool(t *testing.T) {
	cfg := config.New(map[string]any{"s": 1, "b": "yes"})
	assert.Equal(t, "def", cfg.String("s", "def"))
	assert.True(t, cfg.Bool("b", true))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestFromFile verifies format detection by extension.
func TestFromFile(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		cfg, err := config.FromFile(writeFile(t, "c.yaml", "bus:\n  max_concurrency: 8\n"))
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Int("bus.max_concurrency", 0))
	})

	t.Run("yml", func(t *testing.T) {
		cfg, err := config.FromFile(writeFile(t, "c.yml", "log:\n  level: debug\n"))
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.String("log.level", ""))
	})

	t.Run("json", func(t *testing.T) {
		cfg, err := config.FromFile(writeFile(t, "c.json", `{"bus":{"max_concurrency":16}}`))
		require.NoError(t, err)
		assert.Equal(t, 16, cfg.Int("bus.max_concurrency", 0))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := config.FromFile(writeFile(t, "c.toml", "x = 1"))
		assert.ErrorContains(t, err, "unsupported config file extension")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.FromFile(filepath.Join(t.TempDir(), "none.yaml"))
		assert.ErrorContains(t, err, "read config file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := config.FromYAML([]byte("a: [unclosed"))
		assert.ErrorContains(t, err, "parse yaml")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := config.FromJSON([]byte("{"))
		assert.ErrorContains(t, err, "parse json")
	})
}
