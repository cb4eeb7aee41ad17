// Package google reads the ledger from a Google Sheets spreadsheet with
// Users, Budgets and Entries tabs.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"budgetagent/internal/cache"
	"budgetagent/internal/core"
	"budgetagent/internal/ledger"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and credentials.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
	UsersSheet      string
	BudgetsSheet    string
	EntriesSheet    string
	// CacheTTL bounds how stale a tab snapshot may be. Zero disables caching.
	CacheTTL time.Duration
}

// valuesSource returns the raw cell matrix of an A1 range.
type valuesSource interface {
	Values(ctx context.Context, rng string) ([][]interface{}, error)
}

type sheetsSource struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (s sheetsSource) Values(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

type Client struct {
	src          valuesSource
	usersSheet   string
	budgetsSheet string
	entriesSheet string
	snapshots    cache.Cache[[][]interface{}]
}

var _ ledger.Reader = (*Client)(nil)

// New creates a read-only Sheets ledger using service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(sheetsSource{svc: svc, spreadsheetID: cfg.SpreadsheetID}, cfg), nil
}

func newClient(src valuesSource, cfg Config) *Client {
	c := &Client{
		src:          src,
		usersSheet:   orDefault(cfg.UsersSheet, "Users"),
		budgetsSheet: orDefault(cfg.BudgetsSheet, "Budgets"),
		entriesSheet: orDefault(cfg.EntriesSheet, "Entries"),
	}
	if cfg.CacheTTL > 0 {
		c.snapshots = cache.NewLRUCache[[][]interface{}](8, cfg.CacheTTL)
	}
	return c
}

// Snapshots exposes the tab cache for periodic cleanup; nil when disabled.
func (c *Client) Snapshots() cache.Cleaner {
	if lru, ok := c.snapshots.(*cache.LRUCache[[][]interface{}]); ok {
		return lru
	}
	return nil
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsJSON := []byte(strings.TrimSpace(cfg.CredentialsJSON))
	file := strings.TrimSpace(cfg.CredentialsFile)
	if len(credentialsJSON) == 0 && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if len(credentialsJSON) == 0 {
		if file == "" {
			return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
		}
		var err error
		credentialsJSON, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsReadonlyScope)
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func (c *Client) tab(ctx context.Context, sheet string) ([][]interface{}, error) {
	rng := sheet + "!A:Z"
	if c.snapshots != nil {
		if v, ok := c.snapshots.Get(rng); ok {
			return v, nil
		}
	}
	values, err := c.src.Values(ctx, rng)
	if err != nil {
		return nil, err
	}
	if c.snapshots != nil {
		c.snapshots.Set(rng, values)
	}
	return values, nil
}

func (c *Client) User(ctx context.Context, userID string) (core.User, error) {
	values, err := c.tab(ctx, c.usersSheet)
	if err != nil {
		return core.User{}, err
	}
	users, err := parseUsers(values)
	if err != nil {
		return core.User{}, err
	}
	u, ok := users[userID]
	if !ok {
		return core.User{}, core.NotFound("user %s", userID)
	}
	return u, nil
}

func (c *Client) MonthBudget(ctx context.Context, userID, month string) (core.Budget, bool, error) {
	if _, err := c.User(ctx, userID); err != nil {
		return core.Budget{}, false, err
	}
	values, err := c.tab(ctx, c.budgetsSheet)
	if err != nil {
		return core.Budget{}, false, err
	}
	budgets, err := parseBudgets(values, userID)
	if err != nil {
		return core.Budget{}, false, err
	}
	b, ok := budgets[month]
	return b, ok, nil
}

func (c *Client) Entries(ctx context.Context, userID string, p core.Period) ([]core.Transaction, error) {
	if _, err := c.User(ctx, userID); err != nil {
		return nil, err
	}
	values, err := c.tab(ctx, c.entriesSheet)
	if err != nil {
		return nil, err
	}
	return parseEntries(values, func(tx core.Transaction) bool {
		return tx.UserID == userID && p.Contains(tx.CreatedAt)
	})
}

func (c *Client) Entry(ctx context.Context, entryID string) (core.Transaction, error) {
	values, err := c.tab(ctx, c.entriesSheet)
	if err != nil {
		return core.Transaction{}, err
	}
	found, err := parseEntries(values, func(tx core.Transaction) bool { return tx.ID == entryID })
	if err != nil {
		return core.Transaction{}, err
	}
	if len(found) == 0 {
		return core.Transaction{}, core.NotFound("entry %s", entryID)
	}
	return found[0], nil
}

// Ping reads the Users header row.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.src.Values(ctx, c.usersSheet+"!A1:B1")
	return err
}

func orDefault(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}
