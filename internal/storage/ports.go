package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"flowmoney/internal/core"
)

// TransactionFilter narrows ListTransactions. Zero values do not filter.
type TransactionFilter struct {
	UserID   string
	LedgerID string
	From     time.Time
	To       time.Time
	Keyword  string
}

// ProfilePage is one page of the admin user listing.
type ProfilePage struct {
	Profiles []core.Profile
	Total    int
}

// UserStore persists profiles and their membership columns.
type UserStore interface {
	// GetProfile returns core.ErrNotFound when the user has no profile yet.
	GetProfile(ctx context.Context, userID string) (core.Profile, error)
	// CreateProfile inserts p unless a profile already exists, and returns the stored row.
	CreateProfile(ctx context.Context, p core.Profile) (core.Profile, error)
	UpdateMembership(ctx context.Context, userID string, c core.MembershipChange, now time.Time) error
	// ExpireMemberships demotes every Pro profile whose expiry is at or before now.
	ExpireMemberships(ctx context.Context, now time.Time) (int, error)
	UpdateSavings(ctx context.Context, userID string, enabled bool, goal decimal.Decimal, now time.Time) error
	ListProfiles(ctx context.Context, search string, limit, offset int) (ProfilePage, error)
}

// LedgerStore persists ledgers. Every lookup is scoped to the owner.
type LedgerStore interface {
	// ListLedgers returns the default ledger first, then by creation time.
	ListLedgers(ctx context.Context, userID string) ([]core.Ledger, error)
	GetLedger(ctx context.Context, userID, ledgerID string) (core.Ledger, error)
	// DefaultLedger returns core.ErrNotFound when the user has none.
	DefaultLedger(ctx context.Context, userID string) (core.Ledger, error)
	// CreateLedger inserts l. A second default for the same user is ignored
	// and the existing default is returned instead.
	CreateLedger(ctx context.Context, l core.Ledger) (core.Ledger, error)
	RenameLedger(ctx context.Context, userID, ledgerID, name string, now time.Time) error
	DeleteLedger(ctx context.Context, userID, ledgerID string) error
	CountLedgerTransactions(ctx context.Context, userID, ledgerID string) (int, error)
}

// CategoryStore persists system and user categories.
type CategoryStore interface {
	// ListCategories returns system categories first, then the user's own.
	// An empty type lists both sides.
	ListCategories(ctx context.Context, userID string, t core.EntryType) ([]core.Category, error)
	GetCategory(ctx context.Context, userID, categoryID string) (core.Category, error)
	// FindCategory matches a system or user category of type t by icon or name.
	FindCategory(ctx context.Context, userID string, t core.EntryType, identifier string) (core.Category, error)
	// InsertCategory inserts c, or returns the row already holding its
	// (user, type, icon) key with created false.
	InsertCategory(ctx context.Context, c core.Category) (core.Category, bool, error)
	DeleteCategory(ctx context.Context, userID, categoryID string) error
	CountCategoryTransactions(ctx context.Context, userID, categoryID string) (int, error)
}

// TransactionStore persists signed monetary entries.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, t core.Transaction) error
	GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id string) error
	// ListTransactions returns rows joined with category and ledger, newest first.
	ListTransactions(ctx context.Context, f TransactionFilter) ([]core.TransactionView, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	UserStore
	LedgerStore
	CategoryStore
	TransactionStore
	Ping(ctx context.Context) error
	Close() error
}
