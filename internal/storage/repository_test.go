package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"budgetagent/internal/core"
	"budgetagent/internal/ledger"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "ledger.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func TestMigrationsApplied(t *testing.T) {
	_, path := newTestRepo(t)
	v, dirty, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 1 || dirty {
		t.Fatalf("unexpected schema version %d dirty=%v", v, dirty)
	}
	// Re-running is a no-op.
	if err := RunMigrations(path); err != nil {
		t.Fatalf("rerun migrations: %v", err)
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if err := repo.PutUser(ctx, core.User{ID: "u1", HomeCity: "Lahore"}); err != nil {
		t.Fatalf("put user: %v", err)
	}
	if err := repo.PutBudget(ctx, core.Budget{UserID: "u1", Month: "2026-01", Amount: core.NewMoney(10000), HomeCity: "Lahore"}); err != nil {
		t.Fatalf("put budget: %v", err)
	}
	entries := []core.Transaction{
		{ID: "e1", UserID: "u1", Category: "Groceries", Amount: core.NewMoney(4000), CreatedAt: time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC)},
		{ID: "e2", UserID: "u1", Category: "Groceries", Amount: core.NewMoney(1000), CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "e3", UserID: "u1", Type: core.EntryIncome, Category: "Salary", Amount: core.NewMoney(90000), CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{UserID: "u1", Category: "Transport", Amount: core.NewMoney(300), CreatedAt: time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)},
	}
	for _, e := range entries {
		if err := repo.AddEntry(ctx, e); err != nil {
			t.Fatalf("add entry: %v", err)
		}
	}

	jan, _ := core.ParseMonth("2026-01")
	got, err := repo.Entries(ctx, "u1", jan)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 january entries, got %d", len(got))
	}
	if got[0].ID != "e3" || got[0].Type != core.EntryIncome {
		t.Fatalf("unexpected first entry %+v", got[0])
	}

	b, found, err := repo.MonthBudget(ctx, "u1", "2026-01")
	if err != nil || !found || b.Amount.Cents != 10000 {
		t.Fatalf("budget: %+v %v %v", b, found, err)
	}
	if _, found, err := repo.MonthBudget(ctx, "u1", "2026-02"); err != nil || found {
		t.Fatalf("february budget should be absent: %v %v", found, err)
	}

	tx, err := repo.Entry(ctx, "e1")
	if err != nil || tx.Amount.Cents != 4000 || !tx.CreatedAt.Equal(entries[0].CreatedAt) {
		t.Fatalf("entry: %+v %v", tx, err)
	}
}

func TestRepositoryNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	jan, _ := core.ParseMonth("2026-01")

	if _, err := repo.Entries(ctx, "ghost", jan); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := repo.MonthBudget(ctx, "ghost", "2026-01"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.Entry(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.AddEntry(ctx, core.Transaction{UserID: "ghost"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.PutBudget(ctx, core.Budget{UserID: "ghost", Month: "2026-01", Amount: core.NewMoney(-1)}); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestImportSeedIsIdempotent(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	seed, err := ledger.ParseSeed([]byte(`
users:
  - id: u1
    budgets: [{month: "2026-01", amount: 100}]
    entries:
      - {id: e1, category: Groceries, amount: 40, created_at: 2026-01-03T10:00:00Z}
`))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := ledger.Import(ctx, repo, seed); err != nil {
			t.Fatalf("import %d: %v", i, err)
		}
	}
	jan, _ := core.ParseMonth("2026-01")
	got, err := repo.Entries(ctx, "u1", jan)
	if err != nil || len(got) != 1 {
		t.Fatalf("entries after double import: %d %v", len(got), err)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestImportSeedWithoutIDsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	doc := []byte(`
users:
  - id: u1
    budgets: [{month: "2026-01", amount: 100}]
    entries:
      - {category: Groceries, amount: 40, created_at: 2026-01-03T10:00:00Z}
      - {category: Groceries, amount: 40, created_at: 2026-01-03T10:00:00Z}
`)
	for i := 0; i < 2; i++ {
		seed, err := ledger.ParseSeed(doc)
		if err != nil {
			t.Fatal(err)
		}
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := ledger.Import(ctx, repo, seed); err != nil {
			repo.Close()
			t.Fatalf("import %d: %v", i, err)
		}
		repo.Close()
	}

	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	jan, _ := core.ParseMonth("2026-01")
	got, err := repo.Entries(ctx, "u1", jan)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("entries after re-import = %d, want 2", len(got))
	}
}
