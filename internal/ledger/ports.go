// Package ledger defines the read and write ports of the transaction store
// and the YAML seed format shared by every backend.
package ledger

import (
	"context"

	"budgetagent/internal/core"
)

// Ports for the ledger backends.
type (
	UserReader interface {
		// User returns core.ErrNotFound when the user is unknown.
		User(ctx context.Context, userID string) (core.User, error)
	}

	BudgetReader interface {
		// MonthBudget reports found=false when no row exists for the month.
		MonthBudget(ctx context.Context, userID, month string) (b core.Budget, found bool, err error)
	}

	EntryReader interface {
		// Entries returns the user's transactions inside [p.Start, p.End) in
		// any order. Unknown users yield core.ErrNotFound.
		Entries(ctx context.Context, userID string, p core.Period) ([]core.Transaction, error)
	}

	EntryGetter interface {
		Entry(ctx context.Context, entryID string) (core.Transaction, error)
	}

	// Reader is what the insights service consumes.
	Reader interface {
		UserReader
		BudgetReader
		EntryReader
		EntryGetter
	}

	Writer interface {
		PutUser(ctx context.Context, u core.User) error
		PutBudget(ctx context.Context, b core.Budget) error
		AddEntry(ctx context.Context, tx core.Transaction) error
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)
