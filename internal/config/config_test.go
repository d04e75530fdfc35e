package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Run.MaxTurns != 10 {
		t.Errorf("Run.MaxTurns = %d, want 10", cfg.Run.MaxTurns)
	}
	if !cfg.Run.Tracing {
		t.Error("Run.Tracing should default to true")
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.Store.Path != "relay.db" {
		t.Errorf("Store.Path = %q, want relay.db", cfg.Store.Path)
	}
	if cfg.Observer.Enabled {
		t.Error("Observer.Enabled should default to false")
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.toml")

	content := `
[run]
max_turns = 25

[store]
driver = "postgres"
dsn = "postgres://localhost/relay"

[observer]
enabled = true
service = "relay-test"

[observer.pricing."test-model"]
input = 1.5
output = 6.0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)

	if cfg.Run.MaxTurns != 25 {
		t.Errorf("Run.MaxTurns = %d, want 25", cfg.Run.MaxTurns)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("Store.Driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.Store.DSN != "postgres://localhost/relay" {
		t.Errorf("Store.DSN = %q", cfg.Store.DSN)
	}
	if !cfg.Observer.Enabled {
		t.Error("Observer.Enabled should be true")
	}
	if cfg.Observer.Service != "relay-test" {
		t.Errorf("Observer.Service = %q, want relay-test", cfg.Observer.Service)
	}
	p, ok := cfg.Observer.Pricing["test-model"]
	if !ok {
		t.Fatal("pricing for test-model missing")
	}
	if p.Input != 1.5 || p.Output != 6.0 {
		t.Errorf("pricing = %+v, want {1.5 6}", p)
	}

	// Defaults preserved for unset fields.
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want default :8080", cfg.Server.Addr)
	}
	if !cfg.Run.Tracing {
		t.Error("Run.Tracing should keep its default")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("RELAY_STORE_DRIVER", "postgres")
	t.Setenv("RELAY_STORE_DSN", "postgres://env/relay")
	t.Setenv("RELAY_SERVER_ADDR", ":9090")
	t.Setenv("RELAY_OBSERVER_ENABLED", "1")

	cfg := Load(filepath.Join(t.TempDir(), "nonexistent.toml"))

	if cfg.Store.Driver != "postgres" {
		t.Errorf("Store.Driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.Store.DSN != "postgres://env/relay" {
		t.Errorf("Store.DSN = %q", cfg.Store.DSN)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if !cfg.Observer.Enabled {
		t.Error("Observer.Enabled should be set by env")
	}
}

func TestPostgresDSNFallback(t *testing.T) {
	t.Setenv("RELAY_STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://fallback/relay")

	cfg := Load(filepath.Join(t.TempDir(), "nonexistent.toml"))

	if cfg.Store.DSN != "postgres://fallback/relay" {
		t.Errorf("Store.DSN = %q, want DATABASE_URL fallback", cfg.Store.DSN)
	}
}

func TestMaxTurnsFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.toml")
	if err := os.WriteFile(path, []byte("[run]\nmax_turns = -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.Run.MaxTurns != 10 {
		t.Errorf("Run.MaxTurns = %d, want fallback 10", cfg.Run.MaxTurns)
	}
}
