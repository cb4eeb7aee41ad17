package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"budgetagent/internal/core"
	"budgetagent/internal/ledger"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var (
	_ ledger.Reader = (*SQLiteRepository)(nil)
	_ ledger.Writer = (*SQLiteRepository)(nil)
	_ ledger.Pinger = (*SQLiteRepository)(nil)
)

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) PutUser(ctx context.Context, u core.User) error {
	if err := core.ValidateUserID(u.ID); err != nil {
		return err
	}
	if err := r.queries.UpsertUser(ctx, UserRow{ID: u.ID, HomeCity: u.HomeCity}); err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) PutBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if _, err := r.User(ctx, b.UserID); err != nil {
		return err
	}
	err := r.queries.UpsertBudget(ctx, BudgetRow{
		UserID:      b.UserID,
		Month:       b.Month,
		AmountCents: b.Amount.Cents,
		HomeCity:    b.HomeCity,
	})
	if err != nil {
		return fmt.Errorf("upsert budget %s/%s: %w", b.UserID, b.Month, err)
	}
	return nil
}

// AddEntry stores tx, replacing any entry with the same id.
func (r *SQLiteRepository) AddEntry(ctx context.Context, tx core.Transaction) error {
	if _, err := r.User(ctx, tx.UserID); err != nil {
		return err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Type == "" {
		tx.Type = core.EntryExpense
	}
	err := r.queries.UpsertEntry(ctx, EntryRow{
		ID:                 tx.ID,
		UserID:             tx.UserID,
		EntryType:          string(tx.Type),
		Category:           tx.Category,
		CategoryNormalized: tx.CategoryNormalized,
		Title:              tx.Title,
		BeneficiaryName:    tx.Beneficiary,
		RawText:            tx.RawText,
		LocationName:       tx.Location,
		AmountCents:        tx.Amount.Cents,
		CreatedAt:          tx.CreatedAt.UTC().Unix(),
	})
	if err != nil {
		return fmt.Errorf("upsert entry %s: %w", tx.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) User(ctx context.Context, userID string) (core.User, error) {
	row, err := r.queries.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NotFound("user %s", userID)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	return core.User{ID: row.ID, HomeCity: row.HomeCity}, nil
}

func (r *SQLiteRepository) MonthBudget(ctx context.Context, userID, month string) (core.Budget, bool, error) {
	if _, err := r.User(ctx, userID); err != nil {
		return core.Budget{}, false, err
	}
	row, err := r.queries.GetBudget(ctx, userID, month)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, false, nil
	}
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("get budget %s/%s: %w", userID, month, err)
	}
	return core.Budget{
		UserID:   row.UserID,
		Month:    row.Month,
		Amount:   core.NewMoney(row.AmountCents),
		HomeCity: row.HomeCity,
	}, true, nil
}

func (r *SQLiteRepository) Entries(ctx context.Context, userID string, p core.Period) ([]core.Transaction, error) {
	if _, err := r.User(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := r.queries.ListEntriesInRange(ctx, userID, p.Start.Unix(), p.End.Unix())
	if err != nil {
		return nil, fmt.Errorf("list entries %s %s: %w", userID, p.Key, err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, toTransaction(row))
	}
	return out, nil
}

func (r *SQLiteRepository) Entry(ctx context.Context, entryID string) (core.Transaction, error) {
	row, err := r.queries.GetEntry(ctx, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFound("entry %s", entryID)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get entry %s: %w", entryID, err)
	}
	return toTransaction(row), nil
}

func toTransaction(row EntryRow) core.Transaction {
	return core.Transaction{
		ID:                 row.ID,
		UserID:             row.UserID,
		Type:               core.ParseEntryType(row.EntryType),
		Category:           row.Category,
		CategoryNormalized: row.CategoryNormalized,
		Title:              row.Title,
		Beneficiary:        row.BeneficiaryName,
		RawText:            row.RawText,
		Location:           row.LocationName,
		Amount:             core.NewMoney(row.AmountCents),
		CreatedAt:          time.Unix(row.CreatedAt, 0).UTC(),
	}
}
