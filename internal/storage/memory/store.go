// Package memory is an in-process implementation of storage.Store used by
// the memory backend and by service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"flowmoney/internal/core"
	"flowmoney/internal/storage"
)

var seedTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SystemCategories mirrors the categories seeded by the SQL migrations.
var SystemCategories = []core.Category{
	{ID: "sys-expense-food", Name: "餐饮", Icon: "🍔", Type: core.Expense, Color: "#f97316", CreatedAt: seedTime},
	{ID: "sys-expense-transport", Name: "交通", Icon: "🚗", Type: core.Expense, Color: "#3b82f6", CreatedAt: seedTime},
	{ID: "sys-expense-shopping", Name: "购物", Icon: "🛍️", Type: core.Expense, Color: "#ec4899", CreatedAt: seedTime},
	{ID: "sys-expense-home", Name: "居住", Icon: "🏠", Type: core.Expense, Color: "#8b5cf6", CreatedAt: seedTime},
	{ID: "sys-expense-fun", Name: "娱乐", Icon: "🎮", Type: core.Expense, Color: "#10b981", CreatedAt: seedTime},
	{ID: "sys-expense-health", Name: "医疗", Icon: "💊", Type: core.Expense, Color: "#ef4444", CreatedAt: seedTime},
	{ID: "sys-income-salary", Name: "工资", Icon: "💰", Type: core.Income, Color: "#22c55e", CreatedAt: seedTime},
	{ID: "sys-income-bonus", Name: "奖金", Icon: "🎁", Type: core.Income, Color: "#eab308", CreatedAt: seedTime},
	{ID: "sys-income-invest", Name: "理财", Icon: "📈", Type: core.Income, Color: "#06b6d4", CreatedAt: seedTime},
}

type Store struct {
	mu           sync.RWMutex
	profiles     map[string]core.Profile
	ledgers      []core.Ledger
	categories   []core.Category
	transactions []core.Transaction

	// MembershipWrites counts UpdateMembership calls.
	MembershipWrites int
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store holding the system categories.
func New() *Store {
	return &Store{
		profiles:   map[string]core.Profile{},
		categories: append([]core.Category(nil), SystemCategories...),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) GetProfile(_ context.Context, userID string) (core.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return core.Profile{}, core.ErrNotFound
	}
	return p, nil
}

func (s *Store) CreateProfile(_ context.Context, p core.Profile) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[p.UserID]; ok {
		return existing, nil
	}
	s.profiles[p.UserID] = p
	return p, nil
}

// PutProfile overwrites a profile as stored.
func (s *Store) PutProfile(p core.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

func (s *Store) UpdateMembership(_ context.Context, userID string, c core.MembershipChange, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return core.ErrNotFound
	}
	s.profiles[userID] = p.Apply(c, now)
	s.MembershipWrites++
	return nil
}

func (s *Store) ExpireMemberships(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.profiles {
		if p.ProExpiresAt == nil || now.Before(*p.ProExpiresAt) {
			continue
		}
		if !p.IsPro && p.MembershipTier == core.TierFree {
			continue
		}
		s.profiles[id] = p.Apply(core.MembershipChange{MembershipTier: core.TierFree}, now)
		n++
	}
	return n, nil
}

func (s *Store) UpdateSavings(_ context.Context, userID string, enabled bool, goal decimal.Decimal, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return core.ErrNotFound
	}
	p.MonthlySavingsEnabled = enabled
	p.MonthlySavingsGoal = goal
	p.UpdatedAt = now
	s.profiles[userID] = p
	return nil
}

func (s *Store) ListProfiles(_ context.Context, search string, limit, offset int) (storage.ProfilePage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search = strings.ToLower(strings.TrimSpace(search))
	var all []core.Profile
	for _, p := range s.profiles {
		if search == "" || strings.Contains(strings.ToLower(p.DisplayName), search) || p.UserID == search {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].UserID < all[j].UserID
	})
	page := storage.ProfilePage{Total: len(all), Profiles: []core.Profile{}}
	if offset < len(all) {
		end := offset + limit
		if end > len(all) || limit <= 0 {
			end = len(all)
		}
		page.Profiles = append(page.Profiles, all[offset:end]...)
	}
	return page, nil
}

func (s *Store) ListLedgers(_ context.Context, userID string) ([]core.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Ledger{}
	for _, l := range s.ledgers {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetLedger(_ context.Context, userID, ledgerID string) (core.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.ledgers {
		if l.UserID == userID && l.ID == ledgerID {
			return l, nil
		}
	}
	return core.Ledger{}, core.ErrNotFound
}

func (s *Store) DefaultLedger(_ context.Context, userID string) (core.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultLedger(userID)
}

func (s *Store) defaultLedger(userID string) (core.Ledger, error) {
	for _, l := range s.ledgers {
		if l.UserID == userID && l.IsDefault {
			return l, nil
		}
	}
	return core.Ledger{}, core.ErrNotFound
}

func (s *Store) CreateLedger(_ context.Context, l core.Ledger) (core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.IsDefault {
		if existing, err := s.defaultLedger(l.UserID); err == nil {
			return existing, nil
		}
	}
	for _, other := range s.ledgers {
		if other.ID == l.ID {
			return core.Ledger{}, core.NewIntegrityError("ledger id already exists")
		}
	}
	s.ledgers = append(s.ledgers, l)
	return l, nil
}

func (s *Store) RenameLedger(_ context.Context, userID, ledgerID, name string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.ledgers {
		if l.UserID == userID && l.ID == ledgerID {
			s.ledgers[i].Name = name
			s.ledgers[i].UpdatedAt = now
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) DeleteLedger(_ context.Context, userID, ledgerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.ledgers {
		if l.UserID == userID && l.ID == ledgerID && !l.IsDefault {
			s.ledgers = append(s.ledgers[:i], s.ledgers[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) CountLedgerTransactions(_ context.Context, userID, ledgerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.transactions {
		if t.UserID == userID && t.LedgerID == ledgerID {
			n++
		}
	}
	return n, nil
}

func visible(c core.Category, userID string) bool {
	return c.UserID == "" || c.UserID == userID
}

func (s *Store) ListCategories(_ context.Context, userID string, t core.EntryType) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Category{}
	for _, c := range s.categories {
		if visible(c, userID) && (t == "" || c.Type == t) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsSystem() != out[j].IsSystem() {
			return out[i].IsSystem()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, userID, categoryID string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.ID == categoryID && visible(c, userID) {
			return c, nil
		}
	}
	return core.Category{}, core.ErrNotFound
}

func (s *Store) FindCategory(_ context.Context, userID string, t core.EntryType, identifier string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best, rank := core.Category{}, 4
	for _, c := range s.categories {
		if c.Type != t || !visible(c, userID) || (c.Icon != identifier && c.Name != identifier) {
			continue
		}
		r := 0
		if !c.IsSystem() {
			r += 2
		}
		if c.Icon != identifier {
			r++
		}
		if r < rank {
			best, rank = c, r
		}
	}
	if rank == 4 {
		return core.Category{}, core.ErrNotFound
	}
	return best, nil
}

func (s *Store) InsertCategory(_ context.Context, c core.Category) (core.Category, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if existing.UserID == c.UserID && existing.Type == c.Type && existing.Icon == c.Icon {
			return existing, false, nil
		}
	}
	s.categories = append(s.categories, c)
	return c, true, nil
}

func (s *Store) DeleteCategory(_ context.Context, userID, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.categories {
		if c.ID == categoryID && c.UserID == userID && !c.IsSystem() {
			s.categories = append(s.categories[:i], s.categories[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) CountCategoryTransactions(_ context.Context, userID, categoryID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.transactions {
		if t.UserID == userID && t.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, t)
	return nil
}

func (s *Store) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.transactions {
		if t.UserID == userID && t.ID == id {
			return t, nil
		}
	}
	return core.Transaction{}, core.ErrNotFound
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.transactions {
		if t.UserID == userID && t.ID == id {
			s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) ListTransactions(_ context.Context, f storage.TransactionFilter) ([]core.TransactionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.TransactionView{}
	for _, t := range s.transactions {
		if t.UserID != f.UserID || (f.LedgerID != "" && t.LedgerID != f.LedgerID) {
			continue
		}
		if !f.From.IsZero() && t.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && t.Date.After(f.To) {
			continue
		}
		if !core.MatchesKeyword(t.Note, f.Keyword) {
			continue
		}
		v := core.TransactionView{Transaction: t}
		for _, c := range s.categories {
			if c.ID == t.CategoryID {
				v.CategoryName, v.CategoryIcon, v.CategoryType = c.Name, c.Icon, c.Type
				break
			}
		}
		for _, l := range s.ledgers {
			if l.ID == t.LedgerID {
				v.LedgerName = l.Name
				break
			}
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
