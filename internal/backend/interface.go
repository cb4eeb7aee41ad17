// Package backend builds the configured ledger backend.
package backend

import (
	"context"
	"time"

	"budgetagent/internal/ledger"
)

// Ledger is what every backend provides to the services.
type Ledger interface {
	ledger.Reader
	ledger.Pinger
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Ledger  Ledger
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Memory: optional seed, reloaded on change when SeedWatch is set.
	// SQLite: optional seed imported at startup.
	SeedFile  string
	SeedWatch bool

	SQLiteDBPath string

	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	UsersSheet               string
	BudgetsSheet             string
	EntriesSheet             string
	SheetsCacheTTL           time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
