package backend

import (
	"context"
	"fmt"
	"log/slog"

	"budgetagent/internal/cache"
	"budgetagent/internal/ledger"
	"budgetagent/internal/ledger/google"
	"budgetagent/internal/ledger/memory"
	"budgetagent/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	caches *cache.Manager
}

// NewFactory creates a backend factory. Backend caches are registered with
// caches when it is non-nil.
func NewFactory(logger *slog.Logger, caches *cache.Manager) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger, caches: caches}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	if config.SeedFile != "" {
		seed, err := ledger.LoadSeed(config.SeedFile)
		if err == nil {
			err = ledger.Import(ctx, repo, seed)
		}
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to import seed into SQLite: %w", err)
		}
		f.logger.Info("Imported seed into SQLite", "seed_file", config.SeedFile, "users", len(seed.Users))
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Ledger:  repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := google.New(ctx, google.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
		UsersSheet:      config.UsersSheet,
		BudgetsSheet:    config.BudgetsSheet,
		EntriesSheet:    config.EntriesSheet,
		CacheTTL:        config.SheetsCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	if f.caches != nil {
		f.caches.Register("sheets_snapshots", cli.Snapshots())
	}

	f.logger.Info("Initialized Google Sheets backend", "cache_ttl", config.SheetsCacheTTL)

	return &BackendResult{Ledger: cli}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	if config.SeedFile == "" {
		f.logger.Warn("Memory backend started without a seed file, ledger is empty")
		return &BackendResult{Ledger: memory.New()}, nil
	}

	seed, err := ledger.LoadSeed(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed: %w", err)
	}
	store, err := memory.NewFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory ledger: %w", err)
	}

	result := &BackendResult{Ledger: store}
	if config.SeedWatch {
		stop, err := store.Watch(config.SeedFile, f.logger)
		if err != nil {
			return nil, err
		}
		result.Cleanup = func() error {
			stop()
			return nil
		}
	}

	f.logger.Info("Initialized memory backend",
		"seed_file", config.SeedFile,
		"users", len(seed.Users),
		"watch", config.SeedWatch)

	return result, nil
}
