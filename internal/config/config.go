package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/nevindra/relay"
)

type Config struct {
	Run      RunConfig      `toml:"run"`
	Store    StoreConfig    `toml:"store"`
	Observer ObserverConfig `toml:"observer"`
	Server   ServerConfig   `toml:"server"`
}

type RunConfig struct {
	MaxTurns int  `toml:"max_turns"`
	Tracing  bool `toml:"tracing"`
}

type StoreConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "postgres"
	Path   string `toml:"path"`   // sqlite database file
	DSN    string `toml:"dsn"`    // postgres connection string
}

type ObserverConfig struct {
	Enabled  bool                       `toml:"enabled"`
	Service  string                     `toml:"service"`
	Endpoint string                     `toml:"endpoint"`
	Pricing  map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

type ServerConfig struct {
	Addr       string `toml:"addr"`
	WebhookURL string `toml:"webhook_url"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Run:      RunConfig{MaxTurns: relay.DefaultMaxTurns, Tracing: true},
		Store:    StoreConfig{Driver: "sqlite", Path: "relay.db"},
		Observer: ObserverConfig{Service: "relay"},
		Server:   ServerConfig{Addr: ":8080"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "relay.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("RELAY_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("RELAY_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("RELAY_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("RELAY_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("RELAY_WEBHOOK_URL"); v != "" {
		cfg.Server.WebhookURL = v
	}
	if v := os.Getenv("RELAY_OTLP_ENDPOINT"); v != "" {
		cfg.Observer.Endpoint = v
	}
	if os.Getenv("RELAY_OBSERVER_ENABLED") == "true" || os.Getenv("RELAY_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		cfg.Store.DSN = os.Getenv("DATABASE_URL")
	}
	if cfg.Run.MaxTurns <= 0 {
		cfg.Run.MaxTurns = relay.DefaultMaxTurns
	}

	return cfg
}
