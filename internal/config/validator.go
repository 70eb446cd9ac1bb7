package config

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gyaneshwarpardhi/alertbell/internal/alert"
)

// Validate checks the config for:
//   - Required fields and known enum values
//   - A usable push-channel URL when one is configured
//   - Category aliases that point at real categories, with no source type
//     claimed by two categories
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level: unknown level %q", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format: must be text or json, got %q", cfg.Log.Format))
	}

	for _, p := range cfg.Server.AllowedOrigins {
		if _, err := path.Match(p, ""); err != nil || p == "" || strings.Contains(p, "://") {
			errs = append(errs, fmt.Sprintf("server.allowed_origins: %q is not a host pattern", p))
		}
	}

	if cfg.Source.URL != "" {
		u, err := url.Parse(cfg.Source.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("source.url: %q is not an http(s) URL", cfg.Source.URL))
		}
	}
	rc := cfg.Source.Reconnect
	if rc.InitialMs < 0 || rc.MaxMs < rc.InitialMs {
		errs = append(errs, "source.reconnect: need 0 <= initial_ms <= max_ms")
	}
	if rc.Multiplier < 1 {
		errs = append(errs, "source.reconnect.multiplier: must be >= 1")
	}
	if rc.Jitter < 0 || rc.Jitter >= 1 {
		errs = append(errs, "source.reconnect.jitter: must be in [0, 1)")
	}

	switch cfg.Store.Driver {
	case "sqlite", "file":
		if cfg.Store.Path == "" {
			errs = append(errs, fmt.Sprintf("store.path: required for driver %s", cfg.Store.Driver))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("store.driver: unknown driver %q", cfg.Store.Driver))
	}
	if strings.ContainsAny(cfg.Store.Key, `/\`) {
		errs = append(errs, "store.key: must not contain path separators")
	}

	if cfg.Engine.QueueDepth < 1 {
		errs = append(errs, "engine.queue_depth: must be positive")
	}
	if cfg.Engine.EventTimeoutMs < 1 {
		errs = append(errs, "engine.event_timeout_ms: must be positive")
	}
	if cfg.Dropdown.OpenDelayMs < 0 || cfg.Dropdown.CloseMs < 0 {
		errs = append(errs, "dropdown: timings must not be negative")
	}

	claimed := make(map[string]alert.Category) // normalized source type → category
	for label, types := range cfg.Categories {
		cat, ok := alert.ParseCategory(label)
		if !ok || !cat.Valid() {
			errs = append(errs, fmt.Sprintf("categories: unknown category %q", label))
			continue
		}
		for _, t := range types {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" {
				errs = append(errs, fmt.Sprintf("categories.%s: empty source type", label))
				continue
			}
			if prev, ok := claimed[key]; ok && prev != cat {
				errs = append(errs, fmt.Sprintf("categories: source type %q listed under both %s and %s", t, prev, cat))
				continue
			}
			claimed[key] = cat
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
