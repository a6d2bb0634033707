package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CONTEXTSHOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "document.path", typ: kString, env: "CONTEXTSHOT_DOCUMENT_PATH",
		apply:   func(cfg *Config, v any) { cfg.Document.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Document.Path },
	},
	{
		key: "document.capacity", typ: kInt, env: "CONTEXTSHOT_DOCUMENT_CAPACITY",
		apply:   func(cfg *Config, v any) { cfg.Document.Capacity = v.(int) },
		extract: func(cfg Config) any { return cfg.Document.Capacity },
	},
	{
		key: "capture.default_delay_seconds", typ: kInt, env: "CONTEXTSHOT_CAPTURE_DEFAULT_DELAY_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Capture.DefaultDelaySeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Capture.DefaultDelaySeconds },
	},
	{
		key: "capture.default_interval_seconds", typ: kInt, env: "CONTEXTSHOT_CAPTURE_DEFAULT_INTERVAL_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Capture.DefaultIntervalSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Capture.DefaultIntervalSeconds },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CONTEXTSHOT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "CONTEXTSHOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
