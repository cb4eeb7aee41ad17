package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	EntryExpense EntryType = "expense"
	EntryIncome  EntryType = "income"
)

type (
	EntryType string

	// User is a ledger owner.
	User struct {
		ID       string
		HomeCity string
	}

	// Budget is the spending budget a user set for one calendar month.
	Budget struct {
		UserID   string
		Month    string // YYYY-MM
		Amount   Money
		HomeCity string
	}

	// Transaction is a single ledger entry as recorded by the expense tracker.
	Transaction struct {
		ID                 string
		UserID             string
		Type               EntryType
		Category           string // label as recorded
		CategoryNormalized string // optional, set by the recording side
		Title              string
		Beneficiary        string
		RawText            string
		Location           string
		Amount             Money
		CreatedAt          time.Time
	}
)

var (
	// ErrInvalidArgument marks malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks a missing user or entry.
	ErrNotFound = errors.New("not found")

	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyUserID   = fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
)

// InvalidArgument wraps a message as an ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// NotFound wraps a message as an ErrNotFound.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// ValidateUserID rejects blank identifiers.
func ValidateUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyUserID
	}
	return nil
}

// IsOutflow reports whether the entry is money leaving the user's account.
func (t Transaction) IsOutflow() bool {
	return t.Type != EntryIncome && t.Amount.IsPositive()
}

func (b Budget) Validate() error {
	if b.Amount.IsNegative() {
		return InvalidArgument("budget for %s is negative", b.Month)
	}
	return nil
}

// ParseEntryType maps free-form type labels to an EntryType. Empty means expense.
func ParseEntryType(s string) EntryType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "credit":
		return EntryIncome
	default:
		return EntryExpense
	}
}
