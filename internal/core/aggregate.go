package core

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// UnknownCategory labels dashboard rows without a category.
	UnknownCategory = "unknown"
	// UncategorizedLabel groups statistics rows without a category.
	UncategorizedLabel = "未知"
)

// DashboardSummary is the month overview of a scope.
type DashboardSummary struct {
	Balance      decimal.Decimal
	Income       decimal.Decimal
	Expense      decimal.Decimal
	Transactions []TransactionView
}

// NamedAmount is one bucket of a statistics breakdown.
type NamedAmount struct {
	Name   string
	Amount decimal.Decimal
}

// StatsFilter selects the statistics computed by SummarizeStats.
type StatsFilter struct {
	Range   Range
	Type    FilterType
	Date    string // reference date, now when empty
	Keyword string
}

// StatsResult is a category and mood breakdown over a window.
type StatsResult struct {
	TotalAmount   decimal.Decimal
	CategoryStats []NamedAmount
	MoodStats     []NamedAmount
	FilterType    FilterType
	EffectiveType EntryType
	Window        Window
}

// SavingsProgress reports how far the month balance is from the goal.
type SavingsProgress struct {
	Goal    decimal.Decimal
	Balance decimal.Decimal
	Percent decimal.Decimal
	Reached bool
}

// SummarizeDashboard totals income and expense and orders the rows by date
// then creation time, newest first. Rows are not filtered here.
func SummarizeDashboard(rows []TransactionView) DashboardSummary {
	out := DashboardSummary{
		Income:       decimal.Zero,
		Expense:      decimal.Zero,
		Transactions: make([]TransactionView, len(rows)),
	}
	copy(out.Transactions, rows)
	for _, r := range rows {
		switch {
		case r.Amount.IsPositive():
			out.Income = out.Income.Add(r.Amount)
		case r.Amount.IsNegative():
			out.Expense = out.Expense.Add(r.Amount.Abs())
		}
	}
	out.Balance = out.Income.Sub(out.Expense)
	sort.SliceStable(out.Transactions, func(i, j int) bool {
		a, b := out.Transactions[i], out.Transactions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	for i := range out.Transactions {
		if out.Transactions[i].CategoryName == "" {
			out.Transactions[i].CategoryName = UnknownCategory
		}
	}
	return out
}

// SummarizeStats groups the rows of the effective type by category name and
// by mood. Buckets are sorted by amount descending; ties keep the order in
// which the bucket was first seen.
func SummarizeStats(rows []TransactionView, filter FilterType) StatsResult {
	eff := filter.EffectiveType()
	res := StatsResult{
		TotalAmount:   decimal.Zero,
		CategoryStats: []NamedAmount{},
		MoodStats:     []NamedAmount{},
		FilterType:    filter,
		EffectiveType: eff,
	}
	cats := newBuckets()
	moods := newBuckets()
	for _, r := range rows {
		if r.IsIncome() != (eff == Income) || r.Amount.IsZero() {
			continue
		}
		abs := r.Amount.Abs()
		res.TotalAmount = res.TotalAmount.Add(abs)
		name := r.CategoryName
		if name == "" {
			name = UncategorizedLabel
		}
		cats.add(name, abs)
		moods.add(string(DisplayMood(r.Mood)), abs)
	}
	res.CategoryStats = cats.sorted()
	res.MoodStats = moods.sorted()
	return res
}

// MatchesKeyword reports a case-insensitive substring match on the note.
// An empty keyword matches everything.
func MatchesKeyword(note, keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return true
	}
	return strings.Contains(strings.ToLower(note), strings.ToLower(keyword))
}

// ComputeSavings derives progress toward a monthly goal.
func ComputeSavings(goal, balance decimal.Decimal) SavingsProgress {
	p := SavingsProgress{Goal: goal, Balance: balance, Percent: decimal.Zero}
	if !goal.IsPositive() {
		return p
	}
	pct := balance.Div(goal).Mul(decimal.NewFromInt(100)).Round(2)
	if pct.IsNegative() {
		pct = decimal.Zero
	}
	p.Percent = pct
	p.Reached = balance.GreaterThanOrEqual(goal)
	return p
}

type buckets struct {
	order []string
	sums  map[string]decimal.Decimal
}

func newBuckets() *buckets {
	return &buckets{sums: map[string]decimal.Decimal{}}
}

func (b *buckets) add(name string, amount decimal.Decimal) {
	cur, ok := b.sums[name]
	if !ok {
		b.order = append(b.order, name)
		cur = decimal.Zero
	}
	b.sums[name] = cur.Add(amount)
}

func (b *buckets) sorted() []NamedAmount {
	out := make([]NamedAmount, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, NamedAmount{Name: name, Amount: b.sums[name]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount.GreaterThan(out[j].Amount)
	})
	return out
}
