package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  EntryType = "income"
	Expense EntryType = "expense"

	TierFree MembershipTier = "free"
	TierPro  MembershipTier = "pro"
)

// DefaultLedgerName is the name given to a lazily created default ledger.
const DefaultLedgerName = "默认账本"

const (
	MaxLedgerNameLength = 50
	MaxNoteLength       = 200
)

type (
	EntryType string

	MembershipTier string

	Profile struct {
		UserID                string
		DisplayName           string
		MembershipTier        MembershipTier
		IsPro                 bool
		ProExpiresAt          *time.Time
		TrialStartedAt        *time.Time
		TrialEndsAt           *time.Time
		MonthlySavingsGoal    decimal.Decimal
		MonthlySavingsEnabled bool
		CreatedAt             time.Time
		UpdatedAt             time.Time
	}

	Ledger struct {
		ID        string
		UserID    string
		Name      string
		IsDefault bool
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Category struct {
		ID        string
		UserID    string // empty for system categories
		Name      string
		Icon      string
		Type      EntryType
		Color     string
		CreatedAt time.Time
	}

	Transaction struct {
		ID         string
		UserID     string
		LedgerID   string
		CategoryID string // empty when uncategorised
		Amount     decimal.Decimal
		Date       time.Time
		Note       string
		Mood       Mood // empty when not recorded
		CreatedAt  time.Time
	}

	// TransactionView is a transaction left-joined with its category.
	TransactionView struct {
		Transaction
		CategoryName string
		CategoryIcon string
		CategoryType EntryType
		LedgerName   string
	}

	// Scope is the resolved aggregation scope. A master scope carries no
	// ledger filter and spans every ledger of the user.
	Scope struct {
		Master          bool
		LedgerID        string
		DefaultLedgerID string
	}
)

// IsValid reports whether t is income or expense.
func (t EntryType) IsValid() bool {
	return t == Income || t == Expense
}

// ParseEntryType normalises a caller supplied type string.
func ParseEntryType(s string) (EntryType, error) {
	t := EntryType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", NewValidationError("type", "must be income or expense")
	}
	return t, nil
}

// IsIncome reports whether the stored amount is an income.
func (t Transaction) IsIncome() bool {
	return t.Amount.IsPositive()
}

// IsSystem reports whether the category is shared by every user.
func (c Category) IsSystem() bool {
	return c.UserID == ""
}

// Filter returns the ledger id to filter on, or empty for the master view.
func (s Scope) Filter() string {
	if s.Master {
		return ""
	}
	return s.LedgerID
}

// ValidateLedgerName trims and checks a ledger name.
func ValidateLedgerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", NewValidationError("name", "ledger name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxLedgerNameLength {
		return "", NewValidationError("name", "ledger name too long (max 50 characters)")
	}
	return name, nil
}
