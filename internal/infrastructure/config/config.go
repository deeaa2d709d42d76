package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all daemon configuration.
type Config struct {
	Server    ServerConfig
	Engine    EngineConfig
	Views     ViewsConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// AllowedOrigins narrows CORS to the listed origins. Empty allows all.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:""`
}

// EngineConfig selects and tunes the browser engine backend.
type EngineConfig struct {
	// Backend is "inproc" or "chromium".
	Backend      string        `envconfig:"ENGINE_BACKEND" default:"inproc"`
	UserAgent    string        `envconfig:"ENGINE_USER_AGENT" default:""`
	FetchTimeout time.Duration `envconfig:"ENGINE_FETCH_TIMEOUT" default:"30s"`
	ScriptBudget time.Duration `envconfig:"ENGINE_SCRIPT_BUDGET" default:"5s"`
	Headless     bool          `envconfig:"ENGINE_HEADLESS" default:"true"`
	// Install downloads the browser bundle on startup when the chromium
	// backend is selected and no local installation is found.
	Install bool `envconfig:"ENGINE_INSTALL" default:"false"`
}

// ViewsConfig bounds the daemon's live view population.
type ViewsConfig struct {
	MaxConcurrent int64         `envconfig:"VIEWS_MAX" default:"32"`
	IdleTimeout   time.Duration `envconfig:"VIEWS_IDLE_TIMEOUT" default:"10m"`
	ManifestPath  string        `envconfig:"VIEWS_MANIFEST" default:""`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	File        string `envconfig:"LOG_FILE" default:""`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8090",
			Host: "0.0.0.0",
		},
		Engine: EngineConfig{
			Backend:      "inproc",
			FetchTimeout: 30 * time.Second,
			ScriptBudget: 5 * time.Second,
			Headless:     true,
		},
		Views: ViewsConfig{
			MaxConcurrent: 32,
			IdleTimeout:   10 * time.Minute,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
