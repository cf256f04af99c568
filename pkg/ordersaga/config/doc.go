/*
Package config loads service settings from YAML or JSON.

# Overview

Config wraps a decoded map[string]any and exposes typed accessors that
return a default when a key is missing or has the wrong type. Keys may be
dotted paths into nested maps:

	cfg, err := config.FromFile("ordersaga.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	backend := cfg.String("store.backend", "memory")
	workers := cfg.Int("bus.max_concurrency", 64)
	store := cfg.Sub("store")

# Settings

Load reads a file into Settings, the typed form used by the service and
the CLI. A missing path yields DefaultSettings:

	settings, err := config.Load("ordersaga.yaml")

# Type Coercion

Duration accepts strings ("5s", "1m30s"), numbers as seconds, and
time.Duration values. Int accepts int, int64, and whole float64 values.
*/
package config
