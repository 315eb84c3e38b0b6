package http

import (
	"time"

	"github.com/shopspring/decimal"

	"flowmoney/internal/core"
	"flowmoney/internal/services"
	"flowmoney/internal/storage"
)

const dateLayout = "2006-01-02"

// Amounts are sent as fixed two-decimal strings so clients never see
// binary floating point.

type profileView struct {
	UserID                string     `json:"user_id"`
	DisplayName           string     `json:"display_name"`
	MembershipTier        string     `json:"membership_tier"`
	IsPro                 bool       `json:"is_pro"`
	ProExpiresAt          *time.Time `json:"pro_expires_at"`
	IsTrial               bool       `json:"is_trial"`
	TrialEndsAt           *time.Time `json:"trial_ends_at"`
	TrialDaysLeft         int        `json:"trial_days_left"`
	MonthlySavingsGoal    string     `json:"monthly_savings_goal"`
	MonthlySavingsEnabled bool       `json:"monthly_savings_enabled"`
}

func newProfileView(p core.Profile, now time.Time) profileView {
	return profileView{
		UserID:                p.UserID,
		DisplayName:           p.DisplayName,
		MembershipTier:        string(p.MembershipTier),
		IsPro:                 p.IsPro,
		ProExpiresAt:          p.ProExpiresAt,
		IsTrial:               p.IsTrial(now),
		TrialEndsAt:           p.TrialEndsAt,
		TrialDaysLeft:         p.TrialDaysLeft(now),
		MonthlySavingsGoal:    core.FormatAmount(p.MonthlySavingsGoal),
		MonthlySavingsEnabled: p.MonthlySavingsEnabled,
	}
}

type ledgerView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

func newLedgerView(l core.Ledger) ledgerView {
	return ledgerView{ID: l.ID, Name: l.Name, IsDefault: l.IsDefault, CreatedAt: l.CreatedAt}
}

type categoryView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	Type     string `json:"type"`
	Color    string `json:"color,omitempty"`
	IsSystem bool   `json:"is_system"`
}

func newCategoryView(c core.Category) categoryView {
	return categoryView{
		ID:       c.ID,
		Name:     c.Name,
		Icon:     c.Icon,
		Type:     string(c.Type),
		Color:    c.Color,
		IsSystem: c.IsSystem(),
	}
}

type transactionView struct {
	ID           string `json:"id"`
	LedgerID     string `json:"ledger_id"`
	LedgerName   string `json:"ledger_name"`
	CategoryID   string `json:"category_id,omitempty"`
	CategoryName string `json:"category_name"`
	CategoryIcon string `json:"category_icon"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	Date         string `json:"date"`
	Note         string `json:"note"`
	Mood         string `json:"mood,omitempty"`
}

func newTransactionView(v core.TransactionView, loc *time.Location) transactionView {
	t := core.Expense
	if v.IsIncome() {
		t = core.Income
	}
	name := v.CategoryName
	if v.CategoryID == "" {
		name = core.UnknownCategory
	}
	return transactionView{
		ID:           v.ID,
		LedgerID:     v.LedgerID,
		LedgerName:   v.LedgerName,
		CategoryID:   v.CategoryID,
		CategoryName: name,
		CategoryIcon: v.CategoryIcon,
		Type:         string(t),
		Amount:       core.FormatAmount(v.Amount),
		Date:         v.Date.In(loc).Format(dateLayout),
		Note:         v.Note,
		Mood:         string(v.Mood),
	}
}

type windowView struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func newWindowView(w core.Window, loc *time.Location) windowView {
	return windowView{Start: w.Start.In(loc).Format(time.RFC3339), End: w.End.In(loc).Format(time.RFC3339)}
}

type savingsView struct {
	Goal    string `json:"goal"`
	Balance string `json:"balance"`
	Percent string `json:"percent"`
	Reached bool   `json:"reached"`
}

type dashboardView struct {
	LedgerID     string            `json:"ledger_id,omitempty"`
	IsMaster     bool              `json:"is_master"`
	Window       windowView        `json:"window"`
	Balance      string            `json:"balance"`
	Income       string            `json:"income"`
	Expense      string            `json:"expense"`
	Transactions []transactionView `json:"transactions"`
	Savings      *savingsView      `json:"savings,omitempty"`
}

func newDashboardView(d services.Dashboard, loc *time.Location) dashboardView {
	out := dashboardView{
		LedgerID:     d.Scope.LedgerID,
		IsMaster:     d.Scope.Master,
		Window:       newWindowView(d.Window, loc),
		Balance:      core.FormatAmount(d.Balance),
		Income:       core.FormatAmount(d.Income),
		Expense:      core.FormatAmount(d.Expense),
		Transactions: make([]transactionView, 0, len(d.Transactions)),
	}
	for _, t := range d.Transactions {
		out.Transactions = append(out.Transactions, newTransactionView(t, loc))
	}
	if d.Savings != nil {
		out.Savings = &savingsView{
			Goal:    core.FormatAmount(d.Savings.Goal),
			Balance: core.FormatAmount(d.Savings.Balance),
			Percent: d.Savings.Percent.StringFixed(2),
			Reached: d.Savings.Reached,
		}
	}
	return out
}

type namedAmountView struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

func newNamedAmounts(in []core.NamedAmount) []namedAmountView {
	out := make([]namedAmountView, 0, len(in))
	for _, n := range in {
		out = append(out, namedAmountView{Name: n.Name, Amount: core.FormatAmount(n.Amount)})
	}
	return out
}

type statsView struct {
	TotalAmount   string            `json:"total_amount"`
	CategoryStats []namedAmountView `json:"category_stats"`
	MoodStats     []namedAmountView `json:"mood_stats"`
	FilterType    string            `json:"filter_type"`
	EffectiveType string            `json:"effective_type"`
	Window        windowView        `json:"window"`
}

func newStatsView(s core.StatsResult, loc *time.Location) statsView {
	return statsView{
		TotalAmount:   core.FormatAmount(s.TotalAmount),
		CategoryStats: newNamedAmounts(s.CategoryStats),
		MoodStats:     newNamedAmounts(s.MoodStats),
		FilterType:    string(s.FilterType),
		EffectiveType: string(s.EffectiveType),
		Window:        newWindowView(s.Window, loc),
	}
}

type userPageView struct {
	Users    []profileView `json:"users"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

func newUserPageView(p storage.ProfilePage, page int, now time.Time) userPageView {
	out := userPageView{
		Users:    make([]profileView, 0, len(p.Profiles)),
		Total:    p.Total,
		Page:     page,
		PageSize: services.AdminPageSize,
	}
	for _, pr := range p.Profiles {
		out.Users = append(out.Users, newProfileView(pr, now))
	}
	return out
}

func parseGoal(raw looseString) (decimal.Decimal, error) {
	s := sanitizeInput(string(raw))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, core.NewValidationError("goal", "must be a number")
	}
	return d, nil
}
