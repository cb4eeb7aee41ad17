package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"budgetagent/internal/core"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML document used to populate a ledger:
//
//	users:
//	  - id: u1
//	    home_city: Lahore
//	    budgets:
//	      - {month: "2026-01", amount: 100.00}
//	    entries:
//	      - {category: Groceries, amount: 40.00, created_at: 2026-01-03T10:00:00Z}
type Seed struct {
	Users []SeedUser `yaml:"users"`
}

type SeedUser struct {
	ID       string       `yaml:"id"`
	HomeCity string       `yaml:"home_city"`
	Budgets  []SeedBudget `yaml:"budgets"`
	Entries  []SeedEntry  `yaml:"entries"`
}

type SeedBudget struct {
	Month    string     `yaml:"month"`
	Amount   SeedAmount `yaml:"amount"`
	HomeCity string     `yaml:"home_city"`
}

type SeedEntry struct {
	ID                 string     `yaml:"id"`
	Type               string     `yaml:"type"`
	Category           string     `yaml:"category"`
	CategoryNormalized string     `yaml:"category_normalized"`
	Title              string     `yaml:"title"`
	Beneficiary        string     `yaml:"beneficiary"`
	RawText            string     `yaml:"raw_text"`
	Location           string     `yaml:"location"`
	Amount             SeedAmount `yaml:"amount"`
	CreatedAt          time.Time  `yaml:"created_at"`
}

// SeedAmount decodes YAML numbers and strings into Money.
type SeedAmount struct {
	core.Money
}

func (a *SeedAmount) UnmarshalYAML(n *yaml.Node) error {
	m, err := core.ParseMoney(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: amount %q: %w", n.Line, n.Value, err)
	}
	a.Money = m
	return nil
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	s, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return s, nil
}

// ParseSeed decodes and validates a seed document. Entries without an id get
// one derived from their user, position, timestamp and amount, so parsing the
// same document twice yields the same ids.
func ParseSeed(data []byte) (*Seed, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty document")
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	for ui := range s.Users {
		u := &s.Users[ui]
		for ei := range u.Entries {
			if strings.TrimSpace(u.Entries[ei].ID) == "" {
				u.Entries[ei].ID = seedEntryID(u.ID, ei, u.Entries[ei])
			}
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func seedEntryID(userID string, index int, e SeedEntry) string {
	name := fmt.Sprintf("%s/%d/%s/%d", userID, index, e.CreatedAt.UTC().Format(time.RFC3339Nano), e.Amount.Cents)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Validate reports every problem in the document at once.
func (s *Seed) Validate() error {
	var errs []string
	users := map[string]bool{}
	entries := map[string]bool{}

	for i, u := range s.Users {
		if err := core.ValidateUserID(u.ID); err != nil {
			errs = append(errs, fmt.Sprintf("users[%d]: id is required", i))
			continue
		}
		if users[u.ID] {
			errs = append(errs, fmt.Sprintf("users[%d]: duplicate id %q", i, u.ID))
		}
		users[u.ID] = true

		months := map[string]bool{}
		for j, b := range u.Budgets {
			if _, err := core.ParseMonth(b.Month); err != nil {
				errs = append(errs, fmt.Sprintf("user %s budgets[%d]: %v", u.ID, j, err))
				continue
			}
			if months[b.Month] {
				errs = append(errs, fmt.Sprintf("user %s budgets[%d]: duplicate month %s", u.ID, j, b.Month))
			}
			months[b.Month] = true
			if b.Amount.IsNegative() {
				errs = append(errs, fmt.Sprintf("user %s budgets[%d]: amount must not be negative", u.ID, j))
			}
		}
		for j, e := range u.Entries {
			if entries[e.ID] {
				errs = append(errs, fmt.Sprintf("user %s entries[%d]: duplicate id %q", u.ID, j, e.ID))
			}
			entries[e.ID] = true
			if e.CreatedAt.IsZero() {
				errs = append(errs, fmt.Sprintf("user %s entries[%d]: created_at is required", u.ID, j))
			}
		}
	}

	if len(errs) > 0 {
		return errors.New("seed validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}

// Records converts the seed into domain values.
func (s *Seed) Records() ([]core.User, []core.Budget, []core.Transaction) {
	var (
		users   []core.User
		budgets []core.Budget
		txs     []core.Transaction
	)
	for _, u := range s.Users {
		users = append(users, core.User{ID: u.ID, HomeCity: u.HomeCity})
		for _, b := range u.Budgets {
			city := b.HomeCity
			if city == "" {
				city = u.HomeCity
			}
			budgets = append(budgets, core.Budget{UserID: u.ID, Month: b.Month, Amount: b.Amount.Money, HomeCity: city})
		}
		for _, e := range u.Entries {
			txs = append(txs, core.Transaction{
				ID:                 e.ID,
				UserID:             u.ID,
				Type:               core.ParseEntryType(e.Type),
				Category:           e.Category,
				CategoryNormalized: e.CategoryNormalized,
				Title:              e.Title,
				Beneficiary:        e.Beneficiary,
				RawText:            e.RawText,
				Location:           e.Location,
				Amount:             e.Amount.Money,
				CreatedAt:          e.CreatedAt.UTC(),
			})
		}
	}
	return users, budgets, txs
}

// Import writes every seed record through w.
func Import(ctx context.Context, w Writer, s *Seed) error {
	users, budgets, txs := s.Records()
	for _, u := range users {
		if err := w.PutUser(ctx, u); err != nil {
			return fmt.Errorf("import user %s: %w", u.ID, err)
		}
	}
	for _, b := range budgets {
		if err := w.PutBudget(ctx, b); err != nil {
			return fmt.Errorf("import budget %s/%s: %w", b.UserID, b.Month, err)
		}
	}
	for _, tx := range txs {
		if err := w.AddEntry(ctx, tx); err != nil {
			return fmt.Errorf("import entry %s: %w", tx.ID, err)
		}
	}
	return nil
}
