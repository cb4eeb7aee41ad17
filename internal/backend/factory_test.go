package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"budgetagent/internal/config"
	"budgetagent/internal/core"
)

const seedDoc = `
users:
  - id: u1
    home_city: Karachi
    budgets:
      - {month: "2026-01", amount: 100}
    entries:
      - {id: e1, category: Groceries, amount: "40.00", created_at: 2026-01-03T10:00:00Z}
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCreateBackend(t *testing.T) {
	seed := writeSeed(t)
	tests := []struct {
		name   string
		config Config
	}{
		{"memory with seed", Config{Type: MemoryBackend, SeedFile: seed}},
		{"memory watching seed", Config{Type: MemoryBackend, SeedFile: seed, SeedWatch: true}},
		{"sqlite with seed", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db"), SeedFile: seed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			res, err := NewFactory(quietLogger(), nil).CreateBackend(ctx, tt.config)
			if err != nil {
				t.Fatalf("CreateBackend() error = %v", err)
			}
			if res.Cleanup != nil {
				defer res.Cleanup()
			}

			if err := res.Ledger.Ping(ctx); err != nil {
				t.Fatalf("Ping() error = %v", err)
			}
			u, err := res.Ledger.User(ctx, "u1")
			if err != nil || u.HomeCity != "Karachi" {
				t.Fatalf("User() = %+v, %v", u, err)
			}
			p, _ := core.ParseMonth("2026-01")
			entries, err := res.Ledger.Entries(ctx, "u1", p)
			if err != nil || len(entries) != 1 || entries[0].Amount.Cents != 4000 {
				t.Fatalf("Entries() = %+v, %v", entries, err)
			}
			if _, err := res.Ledger.User(ctx, "ghost"); !errors.Is(err, core.ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}
}

func TestCreateBackendErrors(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"invalid type", Config{Type: "nosql"}},
		{"missing seed", Config{Type: MemoryBackend, SeedFile: "/no/such/seed.yaml"}},
		{"sqlite without path", Config{Type: SQLiteBackend}},
		{"sheets without id", Config{Type: SheetsBackend}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFactory(quietLogger(), nil).CreateBackend(context.Background(), tt.config); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEmptyMemoryBackend(t *testing.T) {
	res, err := NewFactory(quietLogger(), nil).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := res.Ledger.User(context.Background(), "u1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected empty ledger, got %v", err)
	}
}

func TestWatchWithoutSeedFile(t *testing.T) {
	res, err := NewFactory(quietLogger(), nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, SeedWatch: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := res.Ledger.User(context.Background(), "u1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected empty ledger, got %v", err)
	}
}

func TestDefaultConfigStarts(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "WEEK_ANCHOR", "DATA_BACKEND", "SEED_FILE", "SEED_WATCH", "RATE_LIMIT_RPM", "SHUTDOWN_TIMEOUT", "LLM_PROVIDER", "OPENROUTER_API_KEY", "AMQP_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("AGENT_API_KEY", "k")

	appCfg := config.Load()
	if err := appCfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg, err := FromAppConfig(appCfg)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != MemoryBackend || cfg.SeedWatch {
		t.Fatalf("unexpected backend config %+v", cfg)
	}
	res, err := NewFactory(quietLogger(), nil).CreateBackend(context.Background(), cfg)
	if err != nil {
		t.Fatalf("default config fails to start: %v", err)
	}
	if res.Cleanup != nil {
		defer res.Cleanup()
	}
	if err := res.Ledger.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", SeedFile: "s.yaml"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "x.db" || cfg.SeedFile != "s.yaml" {
		t.Fatalf("unexpected %+v", cfg)
	}
	watched, err := FromAppConfig(&config.Config{DataBackend: "memory", SeedWatch: true})
	if err != nil {
		t.Fatal(err)
	}
	if watched.SeedWatch {
		t.Fatal("seed watching enabled without a seed file")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "csv"}); err == nil {
		t.Fatal("expected invalid backend error")
	}
}
