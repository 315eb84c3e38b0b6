package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"flowmoney/internal/core"
	flowlog "flowmoney/internal/log"
	"flowmoney/internal/storage"
)

// CreateTransactionParams is the caller input of CreateTransaction.
type CreateTransactionParams struct {
	Amount             decimal.Decimal
	Type               string
	CategoryIdentifier string // icon or name of the category
	LedgerID           string // default ledger when empty
	Date               string // RFC3339 or YYYY-MM-DD
	Note               string
	Mood               string
}

// DefaultLedgerResolver returns the user's default ledger, creating it if needed.
type DefaultLedgerResolver interface {
	EnsureDefaultLedger(ctx context.Context, userID string) (core.Ledger, error)
}

// TransactionService records and removes transactions and manages the
// categories they reference.
type TransactionService struct {
	transactions storage.TransactionStore
	categories   storage.CategoryStore
	ledgers      storage.LedgerStore
	defaults     DefaultLedgerResolver
	notifier     Notifier
	now          Clock
	loc          *time.Location
	newID        func() string
}

func NewTransactionService(
	transactions storage.TransactionStore,
	categories storage.CategoryStore,
	ledgers storage.LedgerStore,
	defaults DefaultLedgerResolver,
	notifier Notifier,
	now Clock,
	loc *time.Location,
) *TransactionService {
	if loc == nil {
		loc = time.UTC
	}
	return &TransactionService{
		transactions: transactions,
		categories:   categories,
		ledgers:      ledgers,
		defaults:     defaults,
		notifier:     orNoop(notifier),
		now:          orSystemClock(now),
		loc:          loc,
		newID:        uuid.NewString,
	}
}

// CreateTransaction validates and stores one entry and returns its id.
// The stored amount is negative for expenses and positive for incomes.
func (s *TransactionService) CreateTransaction(ctx context.Context, userID string, p CreateTransactionParams) (string, error) {
	if userID == "" {
		return "", core.ErrUnauthorized
	}
	amount, err := core.NormalizeAmount(p.Amount)
	if err != nil {
		return "", err
	}
	entryType, err := core.ParseEntryType(p.Type)
	if err != nil {
		return "", err
	}
	identifier := strings.TrimSpace(p.CategoryIdentifier)
	if identifier == "" {
		return "", core.NewValidationError("category", "category is required")
	}
	note := strings.TrimSpace(p.Note)
	if utf8.RuneCountInString(note) > core.MaxNoteLength {
		return "", core.NewValidationError("note", fmt.Sprintf("note too long (max %d characters)", core.MaxNoteLength))
	}
	date, err := core.ParseDate(p.Date, s.loc)
	if err != nil {
		return "", err
	}

	ledger, err := s.resolveLedger(ctx, userID, p.LedgerID)
	if err != nil {
		return "", err
	}
	category, created, err := s.FindOrCreateCategory(ctx, userID, entryType, identifier)
	if err != nil {
		return "", err
	}

	now := s.now()
	tx := core.Transaction{
		ID:         s.newID(),
		UserID:     userID,
		LedgerID:   ledger.ID,
		CategoryID: category.ID,
		Amount:     core.SignedAmount(amount, entryType),
		Date:       date,
		Note:       note,
		Mood:       core.NormalizeMood(p.Mood),
		CreatedAt:  now,
	}
	if err := s.transactions.InsertTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("save transaction: %w", err)
	}

	if created {
		emit(ctx, s.notifier, userID, core.ChangeCategoryCreated, category.ID, "", now)
	}
	emit(ctx, s.notifier, userID, core.ChangeTransactionCreated, tx.ID, tx.LedgerID, now)
	return tx.ID, nil
}

func (s *TransactionService) resolveLedger(ctx context.Context, userID, ledgerID string) (core.Ledger, error) {
	ledgerID = strings.TrimSpace(ledgerID)
	if ledgerID == "" {
		return s.defaults.EnsureDefaultLedger(ctx, userID)
	}
	l, err := s.ledgers.GetLedger(ctx, userID, ledgerID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Ledger{}, core.NewValidationError("ledger_id", "ledger not found")
	}
	if err != nil {
		return core.Ledger{}, fmt.Errorf("resolve ledger: %w", err)
	}
	return l, nil
}

// FindOrCreateCategory looks identifier up among the system and user
// categories of type t, by icon or name, and creates a user category
// named and iconed after it when nothing matches. created reports whether
// this call inserted the row.
func (s *TransactionService) FindOrCreateCategory(ctx context.Context, userID string, t core.EntryType, identifier string) (core.Category, bool, error) {
	c, err := s.categories.FindCategory(ctx, userID, t, identifier)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Category{}, false, fmt.Errorf("find category: %w", err)
	}

	c, created, err := s.categories.InsertCategory(ctx, core.Category{
		ID:        s.newID(),
		UserID:    userID,
		Name:      identifier,
		Icon:      identifier,
		Type:      t,
		CreatedAt: s.now(),
	})
	if err != nil {
		return core.Category{}, false, fmt.Errorf("create category: %w", err)
	}
	if created {
		slog.InfoContext(ctx, "Category created",
			flowlog.FieldUserID, userID, flowlog.FieldCategoryID, c.ID, "type", t)
	}
	return c, created, nil
}

// DeleteTransaction removes a transaction owned by the user.
func (s *TransactionService) DeleteTransaction(ctx context.Context, userID, id string) error {
	tx, err := s.transactions.GetTransaction(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := s.transactions.DeleteTransaction(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction deleted",
		flowlog.FieldUserID, userID, flowlog.FieldTransactionID, id, flowlog.FieldLedgerID, tx.LedgerID)
	emit(ctx, s.notifier, userID, core.ChangeTransactionDeleted, id, tx.LedgerID, s.now())
	return nil
}

// ListCategories returns system categories first, then the user's own.
// An empty type lists both sides.
func (s *TransactionService) ListCategories(ctx context.Context, userID, entryType string) ([]core.Category, error) {
	var t core.EntryType
	if strings.TrimSpace(entryType) != "" {
		parsed, err := core.ParseEntryType(entryType)
		if err != nil {
			return nil, err
		}
		t = parsed
	}
	cs, err := s.categories.ListCategories(ctx, userID, t)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cs, nil
}

// DeleteCategory removes an unused category owned by the user.
func (s *TransactionService) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	c, err := s.categories.GetCategory(ctx, userID, categoryID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if c.IsSystem() {
		return core.NewIntegrityError("system categories cannot be deleted")
	}
	n, err := s.categories.CountCategoryTransactions(ctx, userID, categoryID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n > 0 {
		return core.NewIntegrityError(fmt.Sprintf("category is used by %d transactions", n))
	}
	if err := s.categories.DeleteCategory(ctx, userID, categoryID); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	emit(ctx, s.notifier, userID, core.ChangeCategoryDeleted, categoryID, "", s.now())
	return nil
}
