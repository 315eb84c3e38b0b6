package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"flowmoney/internal/core"
	"flowmoney/internal/storage"
)

// ProGate authorises Pro-only mutations.
type ProGate interface {
	RequirePro(ctx context.Context, userID string) (core.Profile, error)
}

// LedgerService resolves aggregation scopes and manages ledgers.
type LedgerService struct {
	ledgers  storage.LedgerStore
	gate     ProGate
	notifier Notifier
	now      Clock
	newID    func() string
}

func NewLedgerService(ledgers storage.LedgerStore, gate ProGate, notifier Notifier, now Clock) *LedgerService {
	return &LedgerService{
		ledgers:  ledgers,
		gate:     gate,
		notifier: orNoop(notifier),
		now:      orSystemClock(now),
		newID:    uuid.NewString,
	}
}

// ResolveScope maps the requested ledger to a scope. No ledger, or the
// default ledger, is the master view over every ledger of the user.
func (s *LedgerService) ResolveScope(ctx context.Context, userID, requestedLedgerID string) (core.Scope, error) {
	if userID == "" {
		return core.Scope{}, core.ErrUnauthorized
	}
	var scope core.Scope
	def, err := s.ledgers.DefaultLedger(ctx, userID)
	switch {
	case err == nil:
		scope.DefaultLedgerID = def.ID
	case !errors.Is(err, core.ErrNotFound):
		return core.Scope{}, fmt.Errorf("resolve scope: %w", err)
	}

	requested := strings.TrimSpace(requestedLedgerID)
	if requested == "" || requested == scope.DefaultLedgerID {
		scope.Master = true
		return scope, nil
	}

	if _, err := s.ledgers.GetLedger(ctx, userID, requested); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Scope{}, core.NewValidationError("ledger_id", "ledger not found")
		}
		return core.Scope{}, fmt.Errorf("resolve scope: %w", err)
	}
	scope.LedgerID = requested
	return scope, nil
}

// EnsureDefaultLedger returns the default ledger, creating it when missing.
func (s *LedgerService) EnsureDefaultLedger(ctx context.Context, userID string) (core.Ledger, error) {
	def, err := s.ledgers.DefaultLedger(ctx, userID)
	if err == nil {
		return def, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Ledger{}, fmt.Errorf("default ledger: %w", err)
	}

	now := s.now()
	def, err = s.ledgers.CreateLedger(ctx, core.Ledger{
		ID:        s.newID(),
		UserID:    userID,
		Name:      core.DefaultLedgerName,
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return core.Ledger{}, fmt.Errorf("create default ledger: %w", err)
	}
	slog.InfoContext(ctx, "Default ledger created", "user_id", userID, "ledger_id", def.ID)
	return def, nil
}

// ListLedgers returns the user's ledgers, default first. A user without
// ledgers gets the default one created.
func (s *LedgerService) ListLedgers(ctx context.Context, userID string) ([]core.Ledger, error) {
	ls, err := s.ledgers.ListLedgers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	if len(ls) > 0 {
		return ls, nil
	}
	def, err := s.EnsureDefaultLedger(ctx, userID)
	if err != nil {
		return nil, err
	}
	return []core.Ledger{def}, nil
}

// CreateLedger adds a non-default ledger. Pro only.
func (s *LedgerService) CreateLedger(ctx context.Context, userID, name string) (core.Ledger, error) {
	if _, err := s.gate.RequirePro(ctx, userID); err != nil {
		return core.Ledger{}, err
	}
	name, err := core.ValidateLedgerName(name)
	if err != nil {
		return core.Ledger{}, err
	}
	if _, err := s.EnsureDefaultLedger(ctx, userID); err != nil {
		return core.Ledger{}, err
	}

	now := s.now()
	l, err := s.ledgers.CreateLedger(ctx, core.Ledger{
		ID:        s.newID(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return core.Ledger{}, fmt.Errorf("create ledger: %w", err)
	}
	emit(ctx, s.notifier, userID, core.ChangeLedgerCreated, l.ID, l.ID, now)
	return l, nil
}

// RenameLedger renames a ledger owned by the user. Pro only.
func (s *LedgerService) RenameLedger(ctx context.Context, userID, ledgerID, name string) (core.Ledger, error) {
	if _, err := s.gate.RequirePro(ctx, userID); err != nil {
		return core.Ledger{}, err
	}
	name, err := core.ValidateLedgerName(name)
	if err != nil {
		return core.Ledger{}, err
	}
	l, err := s.ledgers.GetLedger(ctx, userID, ledgerID)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("rename ledger: %w", err)
	}

	now := s.now()
	if err := s.ledgers.RenameLedger(ctx, userID, ledgerID, name, now); err != nil {
		return core.Ledger{}, fmt.Errorf("rename ledger: %w", err)
	}
	emit(ctx, s.notifier, userID, core.ChangeLedgerRenamed, ledgerID, ledgerID, now)
	l.Name = name
	l.UpdatedAt = now
	return l, nil
}

// DeleteLedger removes an empty non-default ledger. Pro only.
func (s *LedgerService) DeleteLedger(ctx context.Context, userID, ledgerID string) error {
	if _, err := s.gate.RequirePro(ctx, userID); err != nil {
		return err
	}
	l, err := s.ledgers.GetLedger(ctx, userID, ledgerID)
	if err != nil {
		return fmt.Errorf("delete ledger: %w", err)
	}
	if l.IsDefault {
		return core.NewIntegrityError("the default ledger cannot be deleted")
	}
	n, err := s.ledgers.CountLedgerTransactions(ctx, userID, ledgerID)
	if err != nil {
		return fmt.Errorf("delete ledger: %w", err)
	}
	if n > 0 {
		return core.NewIntegrityError(fmt.Sprintf("ledger still holds %d transactions", n))
	}

	if err := s.ledgers.DeleteLedger(ctx, userID, ledgerID); err != nil {
		return fmt.Errorf("delete ledger: %w", err)
	}
	slog.InfoContext(ctx, "Ledger deleted", "user_id", userID, "ledger_id", ledgerID)
	emit(ctx, s.notifier, userID, core.ChangeLedgerDeleted, ledgerID, ledgerID, s.now())
	return nil
}
