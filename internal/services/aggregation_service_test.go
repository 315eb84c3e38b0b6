package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"flowmoney/internal/cache"
	"flowmoney/internal/core"
	"flowmoney/internal/storage"
	"flowmoney/internal/storage/memory"
)

func TestComputeDashboard_MasterAndSubset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def, err := h.ledgers.EnsureDefaultLedger(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	travel, err := h.ledgers.CreateLedger(ctx, "u1", "Travel")
	if err != nil {
		t.Fatal(err)
	}
	h.record(t, "u1", CreateTransactionParams{Amount: dec("50"), CategoryIdentifier: "🍔"})
	h.record(t, "u1", CreateTransactionParams{Amount: dec("200"), LedgerID: travel.ID})

	master, err := h.agg.ComputeDashboard(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("ComputeDashboard() error = %v", err)
	}
	assertDecimal(t, "master expense", master.Expense, "250")
	if !master.Scope.Master {
		t.Error("expected master scope")
	}

	viaDefault, err := h.agg.ComputeDashboard(ctx, "u1", def.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "default ledger expense", viaDefault.Expense, "250")

	subset, err := h.agg.ComputeDashboard(ctx, "u1", travel.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "travel expense", subset.Expense, "200")

	ids := map[string]bool{}
	for _, v := range master.Transactions {
		ids[v.ID] = true
	}
	for _, v := range subset.Transactions {
		if v.LedgerID != travel.ID {
			t.Errorf("subset row %s belongs to ledger %s", v.ID, v.LedgerID)
		}
		if !ids[v.ID] {
			t.Errorf("subset row %s missing from master view", v.ID)
		}
	}
}

func TestComputeDashboard_BalanceAndWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.record(t, "u1", CreateTransactionParams{Amount: dec("1000"), Type: "income", CategoryIdentifier: "💰", Date: "2025-03-01"})
	h.record(t, "u1", CreateTransactionParams{Amount: dec("120.50"), Date: "2025-03-31T22:00:00Z", Note: "Dinner out"})
	h.record(t, "u1", CreateTransactionParams{Amount: dec("99"), Date: "2025-02-28"})
	h.record(t, "u1", CreateTransactionParams{Amount: dec("99"), Date: "2025-04-01"})

	d, err := h.agg.ComputeDashboard(ctx, "u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "income", d.Income, "1000")
	assertDecimal(t, "expense", d.Expense, "120.50")
	assertDecimal(t, "balance", d.Balance, "879.50")
	if len(d.Transactions) != 2 || d.Transactions[0].Note != "Dinner out" {
		t.Errorf("transactions = %+v", d.Transactions)
	}
	if d.Savings != nil {
		t.Error("savings should be absent when disabled")
	}

	filtered, err := h.agg.ComputeDashboard(ctx, "u1", "", "DINNER")
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "keyword income", filtered.Income, "0")
	assertDecimal(t, "keyword expense", filtered.Expense, "120.50")
}

func TestComputeDashboard_Savings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.members.UpdateSavingsSettings(ctx, "u1", true, dec("1000")); err != nil {
		t.Fatal(err)
	}
	h.record(t, "u1", CreateTransactionParams{Amount: dec("600"), Type: "income", CategoryIdentifier: "💰"})
	h.record(t, "u1", CreateTransactionParams{Amount: dec("100")})

	d, err := h.agg.ComputeDashboard(ctx, "u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Savings == nil {
		t.Fatal("expected savings progress")
	}
	assertDecimal(t, "percent", d.Savings.Percent, "50")
	if d.Savings.Reached {
		t.Error("goal should not be reached")
	}
}

func TestComputeDashboard_CacheEvictedOnChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.record(t, "u1", CreateTransactionParams{Amount: dec("10")})

	first, err := h.agg.ComputeDashboard(ctx, "u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "first expense", first.Expense, "10")

	// a write that bypasses the services is not seen until eviction
	if err := h.store.InsertTransaction(ctx, core.Transaction{
		ID: "raw", UserID: "u1", LedgerID: first.Transactions[0].LedgerID,
		Amount: dec("-5"), Date: testNow, CreatedAt: testNow,
	}); err != nil {
		t.Fatal(err)
	}
	cached, _ := h.agg.ComputeDashboard(ctx, "u1", "", "")
	assertDecimal(t, "cached expense", cached.Expense, "10")

	h.record(t, "u1", CreateTransactionParams{Amount: dec("1")})
	fresh, err := h.agg.ComputeDashboard(ctx, "u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "fresh expense", fresh.Expense, "16")

	if n := h.agg.InvalidateUser("u1"); n != 1 {
		t.Errorf("InvalidateUser() = %d, want 1", n)
	}
	if n := h.agg.InvalidateUser(""); n != 0 {
		t.Errorf("InvalidateUser(\"\") = %d", n)
	}
}

func TestComputeDashboard_NoCache(t *testing.T) {
	h := newHarness(t)
	agg := NewAggregationService(h.store, h.ledgers, nil, nil, func() time.Time { return h.now }, nil)
	h.record(t, "u1", CreateTransactionParams{Amount: dec("7")})

	d, err := agg.ComputeDashboard(context.Background(), "u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "expense", d.Expense, "7")
	if agg.InvalidateUser("u1") != 0 {
		t.Error("nothing to evict without a cache")
	}
}

func TestComputeStats_Week(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// week of Monday 2025-03-10 .. Sunday 2025-03-16
	h.record(t, "u1", CreateTransactionParams{Amount: dec("10"), Date: "2025-03-10", Mood: "happy"})
	h.record(t, "u1", CreateTransactionParams{Amount: dec("30"), Date: "2025-03-16T23:00:00Z", CategoryIdentifier: "🚗", Mood: "anxious"})
	h.record(t, "u1", CreateTransactionParams{Amount: dec("5"), Date: "2025-03-13", CategoryIdentifier: "☕"})
	h.record(t, "u1", CreateTransactionParams{Amount: dec("100"), Date: "2025-03-09"})
	h.record(t, "u1", CreateTransactionParams{Amount: dec("100"), Date: "2025-03-17"})
	h.record(t, "u1", CreateTransactionParams{Amount: dec("500"), Type: "income", CategoryIdentifier: "💰", Date: "2025-03-11"})

	res, err := h.agg.ComputeStats(ctx, "u1", core.StatsFilter{Range: core.RangeWeek, Type: core.FilterExpense, Date: "2025-03-12"}, "")
	if err != nil {
		t.Fatalf("ComputeStats() error = %v", err)
	}
	wantStart := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	if !res.Window.Start.Equal(wantStart) || !res.Window.End.Equal(wantEnd) {
		t.Errorf("window = %v..%v", res.Window.Start, res.Window.End)
	}
	assertDecimal(t, "total", res.TotalAmount, "45")

	sum := decimal.Zero
	for _, c := range res.CategoryStats {
		sum = sum.Add(c.Amount)
	}
	if !sum.Equal(res.TotalAmount) {
		t.Errorf("category stats sum %s != total %s", sum, res.TotalAmount)
	}
	if len(res.CategoryStats) != 3 || res.CategoryStats[0].Name != "交通" {
		t.Errorf("category stats = %+v", res.CategoryStats)
	}
	if len(res.MoodStats) != 3 || res.MoodStats[0].Name != string(core.MoodFear) {
		t.Errorf("mood stats = %+v", res.MoodStats)
	}
}

func TestComputeStats_AllIsExpense(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.record(t, "u1", CreateTransactionParams{Amount: dec("10")})
	h.record(t, "u1", CreateTransactionParams{Amount: dec("500"), Type: "income", CategoryIdentifier: "💰"})

	res, err := h.agg.ComputeStats(ctx, "u1", core.StatsFilter{Range: core.RangeCustom, Type: core.FilterAll}, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.FilterType != core.FilterAll || res.EffectiveType != core.Expense {
		t.Errorf("FilterType=%s EffectiveType=%s", res.FilterType, res.EffectiveType)
	}
	assertDecimal(t, "total", res.TotalAmount, "10")
	if !res.Window.Start.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("custom range should fall back to the month, start = %v", res.Window.Start)
	}
}

func TestComputeStats_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.agg.ComputeStats(ctx, "u1", core.StatsFilter{Date: "yesterday"}, ""); !errors.Is(err, core.ErrValidation) {
		t.Errorf("bad date: error = %v", err)
	}
	if _, err := h.agg.ComputeStats(ctx, "", core.StatsFilter{}, ""); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("anonymous: error = %v", err)
	}
}

// gatedStore holds the first ListTransactions call after it has read its
// rows, until release is closed.
type gatedStore struct {
	*memory.Store

	once    sync.Once
	read    chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func newGatedStore(s *memory.Store) *gatedStore {
	return &gatedStore{Store: s, read: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedStore) ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.TransactionView, error) {
	rows, err := g.Store.ListTransactions(ctx, f)
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.once.Do(func() {
		close(g.read)
		<-g.release
	})
	return rows, err
}

func (g *gatedStore) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestComputeDashboard_WriteDuringFillIsNotCached(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gated := newGatedStore(h.store)
	h.agg = NewAggregationService(gated, h.ledgers, h.store,
		cache.NewLRUCache[core.DashboardSummary](100, time.Hour), func() time.Time { return h.now }, time.UTC)

	done := make(chan Dashboard, 1)
	go func() {
		d, err := h.agg.ComputeDashboard(ctx, "u1", "", "")
		if err != nil {
			t.Error(err)
		}
		done <- d
	}()

	<-gated.read
	h.record(t, "u1", CreateTransactionParams{Amount: dec("50")})
	close(gated.release)

	before := <-done
	assertDecimal(t, "in-flight expense", before.Expense, "0")

	after, err := h.agg.ComputeDashboard(ctx, "u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "expense after write", after.Expense, "50")
	if len(after.Transactions) != 1 {
		t.Errorf("transactions = %d, want 1", len(after.Transactions))
	}
}

func TestComputeDashboard_CancelledCallerDoesNotAbortFill(t *testing.T) {
	h := newHarness(t)
	h.record(t, "u1", CreateTransactionParams{Amount: dec("12")})
	gated := newGatedStore(h.store)
	h.agg = NewAggregationService(gated, h.ledgers, h.store,
		cache.NewLRUCache[core.DashboardSummary](100, time.Hour), func() time.Time { return h.now }, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := h.agg.ComputeDashboard(ctx, "u1", "", "")
		errc <- err
	}()

	<-gated.read
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller error = %v, want context.Canceled", err)
	}
	close(gated.release)

	// The fill finishes on its own and the next caller is served from it
	// or from the cache, with correct totals either way.
	d, err := h.agg.ComputeDashboard(context.Background(), "u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "expense", d.Expense, "12")
	if n := gated.Calls(); n != 1 {
		t.Errorf("store reads = %d, want 1", n)
	}
}

func TestComputeDashboard_DoesNotCreateProfile(t *testing.T) {
	h := newHarness(t)
	if _, err := h.agg.ComputeDashboard(context.Background(), "ghost", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.GetProfile(context.Background(), "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetProfile() error = %v, want not found", err)
	}
}
