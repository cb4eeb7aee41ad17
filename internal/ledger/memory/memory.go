// Package memory is an in-process ledger backend, typically loaded from a
// YAML seed file.
package memory

import (
	"context"
	"fmt"
	"sync"

	"budgetagent/internal/core"
	"budgetagent/internal/ledger"
)

type dataset struct {
	users   map[string]core.User
	budgets map[string]map[string]core.Budget // user -> month -> budget
	entries map[string][]core.Transaction     // user -> entries
	byID    map[string]core.Transaction
}

func newDataset() *dataset {
	return &dataset{
		users:   map[string]core.User{},
		budgets: map[string]map[string]core.Budget{},
		entries: map[string][]core.Transaction{},
		byID:    map[string]core.Transaction{},
	}
}

type Store struct {
	mu   sync.RWMutex
	data *dataset
}

var (
	_ ledger.Reader = (*Store)(nil)
	_ ledger.Writer = (*Store)(nil)
)

func New() *Store {
	return &Store{data: newDataset()}
}

// NewFromSeed builds a store holding exactly the seed's records.
func NewFromSeed(s *ledger.Seed) (*Store, error) {
	st := New()
	if err := st.Replace(s); err != nil {
		return nil, err
	}
	return st, nil
}

// Replace swaps the whole dataset for the seed's records. Readers see either
// the old or the new dataset, never a mix.
func (s *Store) Replace(seed *ledger.Seed) error {
	next := &Store{data: newDataset()}
	if err := ledger.Import(context.Background(), next, seed); err != nil {
		return err
	}
	s.mu.Lock()
	s.data = next.data
	s.mu.Unlock()
	return nil
}

func (s *Store) PutUser(_ context.Context, u core.User) error {
	if err := core.ValidateUserID(u.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[u.ID] = u
	return nil
}

func (s *Store) PutBudget(_ context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.users[b.UserID]; !ok {
		return core.NotFound("user %s", b.UserID)
	}
	if s.data.budgets[b.UserID] == nil {
		s.data.budgets[b.UserID] = map[string]core.Budget{}
	}
	s.data.budgets[b.UserID][b.Month] = b
	return nil
}

func (s *Store) AddEntry(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.users[tx.UserID]; !ok {
		return core.NotFound("user %s", tx.UserID)
	}
	if tx.ID == "" {
		tx.ID = fmt.Sprintf("mem:%d", len(s.data.byID)+1)
	}
	if _, dup := s.data.byID[tx.ID]; dup {
		return fmt.Errorf("entry %s already exists", tx.ID)
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	s.data.entries[tx.UserID] = append(s.data.entries[tx.UserID], tx)
	s.data.byID[tx.ID] = tx
	return nil
}

func (s *Store) User(_ context.Context, userID string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data.users[userID]
	if !ok {
		return core.User{}, core.NotFound("user %s", userID)
	}
	return u, nil
}

func (s *Store) MonthBudget(_ context.Context, userID, month string) (core.Budget, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data.users[userID]; !ok {
		return core.Budget{}, false, core.NotFound("user %s", userID)
	}
	b, ok := s.data.budgets[userID][month]
	return b, ok, nil
}

func (s *Store) Entries(_ context.Context, userID string, p core.Period) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data.users[userID]; !ok {
		return nil, core.NotFound("user %s", userID)
	}
	out := []core.Transaction{}
	for _, tx := range s.data.entries[userID] {
		if p.Contains(tx.CreatedAt) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) Entry(_ context.Context, entryID string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.data.byID[entryID]
	if !ok {
		return core.Transaction{}, core.NotFound("entry %s", entryID)
	}
	return tx, nil
}

func (s *Store) Ping(context.Context) error { return nil }
