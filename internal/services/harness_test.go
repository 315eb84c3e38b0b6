package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"flowmoney/internal/cache"
	"flowmoney/internal/core"
	"flowmoney/internal/storage/memory"
)

// Wednesday
var testNow = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

type harness struct {
	now    time.Time
	store  *memory.Store
	events []core.DataChange

	members *MembershipService
	ledgers *LedgerService
	txs     *TransactionService
	agg     *AggregationService
	exports *ExportService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{now: testNow, store: memory.New()}
	clock := func() time.Time { return h.now }
	notifier := NotifierFunc(func(ctx context.Context, c core.DataChange) {
		h.events = append(h.events, c)
		if h.agg != nil {
			h.agg.DataChanged(ctx, c)
		}
	})

	h.members = NewMembershipService(h.store, notifier, clock)
	h.ledgers = NewLedgerService(h.store, h.members, notifier, clock)
	h.txs = NewTransactionService(h.store, h.store, h.store, h.ledgers, notifier, clock, time.UTC)
	h.agg = NewAggregationService(h.store, h.ledgers, h.store,
		cache.NewLRUCache[core.DashboardSummary](100, time.Hour), clock, time.UTC)
	h.exports = NewExportService(h.members, h.store, clock, time.UTC)
	return h
}

// freeUser stores a profile whose trial already ended.
func (h *harness) freeUser(userID string) {
	h.store.PutProfile(core.Profile{
		UserID:         userID,
		MembershipTier: core.TierFree,
		CreatedAt:      h.now.Add(-30 * 24 * time.Hour),
		UpdatedAt:      h.now.Add(-30 * 24 * time.Hour),
	})
}

func (h *harness) record(t *testing.T, userID string, p CreateTransactionParams) string {
	t.Helper()
	if p.Type == "" {
		p.Type = "expense"
	}
	if p.CategoryIdentifier == "" {
		p.CategoryIdentifier = "🍔"
	}
	if p.Date == "" {
		p.Date = "2025-03-12"
	}
	id, err := h.txs.CreateTransaction(context.Background(), userID, p)
	if err != nil {
		t.Fatalf("CreateTransaction(%+v) error = %v", p, err)
	}
	return id
}

func (h *harness) kinds() []core.ChangeKind {
	out := make([]core.ChangeKind, len(h.events))
	for i, e := range h.events {
		out[i] = e.Kind
	}
	return out
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}
