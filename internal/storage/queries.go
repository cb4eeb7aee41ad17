package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type UserRow struct {
	ID       string
	HomeCity string
}

type BudgetRow struct {
	UserID      string
	Month       string
	AmountCents int64
	HomeCity    string
}

type EntryRow struct {
	ID                 string
	UserID             string
	EntryType          string
	Category           string
	CategoryNormalized string
	Title              string
	BeneficiaryName    string
	RawText            string
	LocationName       string
	AmountCents        int64
	CreatedAt          int64
}

const upsertUser = `
INSERT INTO users (id, home_city) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET home_city = excluded.home_city`

func (q *Queries) UpsertUser(ctx context.Context, arg UserRow) error {
	_, err := q.db.ExecContext(ctx, upsertUser, arg.ID, arg.HomeCity)
	return err
}

const getUser = `SELECT id, home_city FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id string) (UserRow, error) {
	var u UserRow
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(&u.ID, &u.HomeCity)
	return u, err
}

const upsertBudget = `
INSERT INTO monthly_budgets (user_id, month, amount_cents, home_city) VALUES (?, ?, ?, ?)
ON CONFLICT(user_id, month) DO UPDATE SET amount_cents = excluded.amount_cents, home_city = excluded.home_city`

func (q *Queries) UpsertBudget(ctx context.Context, arg BudgetRow) error {
	_, err := q.db.ExecContext(ctx, upsertBudget, arg.UserID, arg.Month, arg.AmountCents, arg.HomeCity)
	return err
}

const getBudget = `
SELECT user_id, month, amount_cents, home_city FROM monthly_budgets
WHERE user_id = ? AND month = ?`

func (q *Queries) GetBudget(ctx context.Context, userID, month string) (BudgetRow, error) {
	var b BudgetRow
	err := q.db.QueryRowContext(ctx, getBudget, userID, month).Scan(&b.UserID, &b.Month, &b.AmountCents, &b.HomeCity)
	return b, err
}

const upsertEntry = `
INSERT INTO entries (
    id, user_id, entry_type, category, category_normalized, title,
    beneficiary_name, raw_text, location_name, amount_cents, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    user_id = excluded.user_id,
    entry_type = excluded.entry_type,
    category = excluded.category,
    category_normalized = excluded.category_normalized,
    title = excluded.title,
    beneficiary_name = excluded.beneficiary_name,
    raw_text = excluded.raw_text,
    location_name = excluded.location_name,
    amount_cents = excluded.amount_cents,
    created_at = excluded.created_at`

func (q *Queries) UpsertEntry(ctx context.Context, arg EntryRow) error {
	_, err := q.db.ExecContext(ctx, upsertEntry,
		arg.ID, arg.UserID, arg.EntryType, arg.Category, arg.CategoryNormalized, arg.Title,
		arg.BeneficiaryName, arg.RawText, arg.LocationName, arg.AmountCents, arg.CreatedAt)
	return err
}

const entryColumns = `id, user_id, entry_type, category, category_normalized, title,
    beneficiary_name, raw_text, location_name, amount_cents, created_at`

const listEntriesInRange = `
SELECT ` + entryColumns + ` FROM entries
WHERE user_id = ? AND created_at >= ? AND created_at < ?
ORDER BY created_at, id`

func (q *Queries) ListEntriesInRange(ctx context.Context, userID string, from, to int64) ([]EntryRow, error) {
	rows, err := q.db.QueryContext(ctx, listEntriesInRange, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EntryRow
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const getEntry = `SELECT ` + entryColumns + ` FROM entries WHERE id = ?`

func (q *Queries) GetEntry(ctx context.Context, id string) (EntryRow, error) {
	return scanEntry(q.db.QueryRowContext(ctx, getEntry, id))
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (EntryRow, error) {
	var e EntryRow
	err := s.Scan(&e.ID, &e.UserID, &e.EntryType, &e.Category, &e.CategoryNormalized, &e.Title,
		&e.BeneficiaryName, &e.RawText, &e.LocationName, &e.AmountCents, &e.CreatedAt)
	return e, err
}
