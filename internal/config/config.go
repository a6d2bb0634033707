package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server   ServerConfig
	Document DocumentConfig
	Capture  CaptureConfig
	Storage  StorageConfig
	Log      LogConfig
}

type ServerConfig struct {
	// Port on 127.0.0.1 the control API listens on.
	Port int
}

type DocumentConfig struct {
	// Path of the capture log document. When the document fills up, new
	// parts are created next to it with a " (N)" suffix.
	Path string
	// Capacity is the row count at which a document part is sealed.
	Capacity int
}

type CaptureConfig struct {
	// DefaultDelaySeconds is applied to manual captures that do not set
	// their own delay.
	DefaultDelaySeconds int
	// DefaultIntervalSeconds is the poller interval used when a start
	// request omits one.
	DefaultIntervalSeconds int
}

type StorageConfig struct {
	// DataDir holds the capture index database.
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8788,
		},
		Document: DocumentConfig{
			Path:     defaultDocumentPath(),
			Capacity: 90,
		},
		Capture: CaptureConfig{
			DefaultDelaySeconds:    2,
			DefaultIntervalSeconds: 30,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDocumentPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ContextShots.html"
	}
	return filepath.Join(home, "Documents", "ContextShots.html")
}

// Load reads configuration from the platform-native backend with
// environment variable overrides.
//
// On macOS the backend is UserDefaults (domain: com.contextshot.app).
// On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/contextshot/config.json.
//
// Environment variables (CONTEXTSHOT_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Document.Capacity <= 0 {
		return Config{}, fmt.Errorf("invalid document capacity %d", cfg.Document.Capacity)
	}

	return cfg, nil
}
