package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"flowmoney/internal/core"
)

func TestCreateTransaction_SignsAmount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out := h.record(t, "u1", CreateTransactionParams{Amount: dec("30"), Type: "expense"})
	in := h.record(t, "u1", CreateTransactionParams{Amount: dec("30"), Type: "income", CategoryIdentifier: "💰"})

	gotOut, err := h.store.GetTransaction(ctx, "u1", out)
	if err != nil {
		t.Fatal(err)
	}
	gotIn, err := h.store.GetTransaction(ctx, "u1", in)
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "expense amount", gotOut.Amount, "-30")
	assertDecimal(t, "income amount", gotIn.Amount, "30")

	// a negative magnitude is normalised before signing
	neg := h.record(t, "u1", CreateTransactionParams{Amount: dec("-12.345"), Type: "income", CategoryIdentifier: "💰"})
	gotNeg, _ := h.store.GetTransaction(ctx, "u1", neg)
	assertDecimal(t, "normalised amount", gotNeg.Amount, "12.35")
}

func TestCreateTransaction_DefaultsToDefaultLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.record(t, "u1", CreateTransactionParams{Amount: dec("5")})
	tx, _ := h.store.GetTransaction(ctx, "u1", id)
	def, err := h.store.DefaultLedger(ctx, "u1")
	if err != nil {
		t.Fatalf("default ledger not created: %v", err)
	}
	if tx.LedgerID != def.ID {
		t.Errorf("LedgerID = %q, want %q", tx.LedgerID, def.ID)
	}
	if tx.CategoryID != "sys-expense-food" {
		t.Errorf("CategoryID = %q, want system food", tx.CategoryID)
	}
}

func TestCreateTransaction_Mood(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		raw  string
		want core.Mood
	}{
		{"anxious", core.MoodFear},
		{"regret", core.MoodSad},
		{"Happy", core.MoodHappy},
		{"ecstatic", core.MoodNeutral},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			id := h.record(t, "u1", CreateTransactionParams{Amount: dec("1"), Mood: tt.raw})
			tx, _ := h.store.GetTransaction(ctx, "u1", id)
			if tx.Mood != tt.want {
				t.Errorf("Mood = %q, want %q", tx.Mood, tt.want)
			}
		})
	}
}

func TestCreateTransaction_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	foreign, err := h.ledgers.CreateLedger(ctx, "u2", "Other")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		params    CreateTransactionParams
		wantField string
	}{
		{"zero amount", CreateTransactionParams{Amount: dec("0"), Type: "expense", CategoryIdentifier: "🍔", Date: "2025-03-12"}, "amount"},
		{"bad type", CreateTransactionParams{Amount: dec("1"), Type: "transfer", CategoryIdentifier: "🍔", Date: "2025-03-12"}, "type"},
		{"no category", CreateTransactionParams{Amount: dec("1"), Type: "expense", CategoryIdentifier: " ", Date: "2025-03-12"}, "category"},
		{"long note", CreateTransactionParams{Amount: dec("1"), Type: "expense", CategoryIdentifier: "🍔", Date: "2025-03-12", Note: strings.Repeat("x", core.MaxNoteLength+1)}, "note"},
		{"bad date", CreateTransactionParams{Amount: dec("1"), Type: "expense", CategoryIdentifier: "🍔", Date: "12/03/2025"}, "date"},
		{"foreign ledger", CreateTransactionParams{Amount: dec("1"), Type: "expense", CategoryIdentifier: "🍔", Date: "2025-03-12", LedgerID: foreign.ID}, "ledger_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.txs.CreateTransaction(ctx, "u1", tt.params)
			var ve *core.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.wantField {
				t.Fatalf("error = %v, want validation error on %s", err, tt.wantField)
			}
		})
	}

	if n, _ := h.store.CountLedgerTransactions(ctx, "u2", foreign.ID); n != 0 {
		t.Errorf("rejected input was written")
	}
	if _, err := h.txs.CreateTransaction(ctx, "", CreateTransactionParams{Amount: dec("1")}); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("anonymous: error = %v", err)
	}
}

func TestFindOrCreateCategory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sys, created, err := h.txs.FindOrCreateCategory(ctx, "u1", core.Expense, "餐饮")
	if err != nil || created || sys.ID != "sys-expense-food" {
		t.Fatalf("by name: %+v created=%v err=%v", sys, created, err)
	}

	c, created, err := h.txs.FindOrCreateCategory(ctx, "u1", core.Expense, "☕")
	if err != nil || !created {
		t.Fatalf("first use: created=%v err=%v", created, err)
	}
	if c.Name != "☕" || c.Icon != "☕" || c.UserID != "u1" {
		t.Errorf("created category = %+v", c)
	}
	again, created, err := h.txs.FindOrCreateCategory(ctx, "u1", core.Expense, "☕")
	if err != nil || created || again.ID != c.ID {
		t.Errorf("second use: %+v created=%v err=%v", again, created, err)
	}

	income, created, err := h.txs.FindOrCreateCategory(ctx, "u1", core.Income, "☕")
	if err != nil || !created || income.ID == c.ID {
		t.Errorf("same icon on the income side should be a new category: %+v created=%v", income, created)
	}
}

func TestCreateTransaction_EmitsEvents(t *testing.T) {
	h := newHarness(t)
	h.record(t, "u1", CreateTransactionParams{Amount: dec("3"), CategoryIdentifier: "🧋"})

	got := h.kinds()
	want := []core.ChangeKind{core.ChangeCategoryCreated, core.ChangeTransactionCreated}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestDeleteTransaction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.record(t, "u1", CreateTransactionParams{Amount: dec("3")})

	if err := h.txs.DeleteTransaction(ctx, "u2", id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign delete: error = %v, want ErrNotFound", err)
	}
	if err := h.txs.DeleteTransaction(ctx, "u1", id); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	if _, err := h.store.GetTransaction(ctx, "u1", id); !errors.Is(err, core.ErrNotFound) {
		t.Error("transaction still stored")
	}
	if last := h.events[len(h.events)-1]; last.Kind != core.ChangeTransactionDeleted || last.EntityID != id {
		t.Errorf("last event = %+v", last)
	}
}

func TestListCategories(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.record(t, "u1", CreateTransactionParams{Amount: dec("1"), CategoryIdentifier: "☕"})

	cs, err := h.txs.ListCategories(ctx, "u1", "expense")
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(cs) == 0 || !cs[0].IsSystem() || cs[len(cs)-1].Icon != "☕" {
		t.Errorf("system categories should come first: %+v", cs)
	}
	for _, c := range cs {
		if c.Type != core.Expense {
			t.Errorf("unexpected type %s", c.Type)
		}
	}

	all, err := h.txs.ListCategories(ctx, "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) <= len(cs) {
		t.Errorf("empty type should list both sides, got %d", len(all))
	}
	if _, err := h.txs.ListCategories(ctx, "u1", "bogus"); !errors.Is(err, core.ErrValidation) {
		t.Errorf("bogus type: error = %v", err)
	}
}

func TestDeleteCategory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.record(t, "u1", CreateTransactionParams{Amount: dec("1"), CategoryIdentifier: "☕"})
	used, _ := h.store.FindCategory(ctx, "u1", core.Expense, "☕")
	unused, _, err := h.txs.FindOrCreateCategory(ctx, "u1", core.Expense, "🧋")
	if err != nil {
		t.Fatal(err)
	}

	if err := h.txs.DeleteCategory(ctx, "u1", "sys-expense-food"); !errors.Is(err, core.ErrIntegrity) {
		t.Errorf("system: error = %v, want ErrIntegrity", err)
	}
	if err := h.txs.DeleteCategory(ctx, "u1", used.ID); !errors.Is(err, core.ErrIntegrity) {
		t.Errorf("in use: error = %v, want ErrIntegrity", err)
	}
	if err := h.txs.DeleteCategory(ctx, "u2", unused.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign: error = %v, want ErrNotFound", err)
	}
	if err := h.txs.DeleteCategory(ctx, "u1", unused.ID); err != nil {
		t.Fatalf("DeleteCategory() error = %v", err)
	}
}
