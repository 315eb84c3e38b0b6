package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"flowmoney/internal/cache"
	"flowmoney/internal/core"
	"flowmoney/internal/storage"
)

// ScopeResolver maps a requested ledger to an aggregation scope.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, userID, requestedLedgerID string) (core.Scope, error)
}

// ProfileReader reads a stored profile without reconciling it.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (core.Profile, error)
}

// Dashboard is the month overview returned by ComputeDashboard.
type Dashboard struct {
	core.DashboardSummary
	Scope   core.Scope
	Window  core.Window
	Savings *core.SavingsProgress
}

// AggregationService computes dashboards and statistics. It never writes.
type AggregationService struct {
	transactions storage.TransactionStore
	scopes       ScopeResolver
	profiles     ProfileReader
	cache        cache.Cache[core.DashboardSummary]
	fills        singleflight.Group
	now          Clock
	loc          *time.Location

	// generations is bumped per user on every data change. A fill only
	// stores its result when the generation it started under is current.
	genMu       sync.Mutex
	generations map[string]uint64
}

// NewAggregationService wires the engine. dashboards may be nil to disable
// caching; profiles may be nil to leave savings progress out.
func NewAggregationService(
	transactions storage.TransactionStore,
	scopes ScopeResolver,
	profiles ProfileReader,
	dashboards cache.Cache[core.DashboardSummary],
	now Clock,
	loc *time.Location,
) *AggregationService {
	if loc == nil {
		loc = time.UTC
	}
	return &AggregationService{
		transactions: transactions,
		scopes:       scopes,
		profiles:     profiles,
		cache:        dashboards,
		now:          orSystemClock(now),
		loc:          loc,
		generations:  map[string]uint64{},
	}
}

// ComputeDashboard totals the current calendar month of the resolved scope.
func (s *AggregationService) ComputeDashboard(ctx context.Context, userID, ledgerID, keyword string) (Dashboard, error) {
	scope, err := s.scopes.ResolveScope(ctx, userID, ledgerID)
	if err != nil {
		return Dashboard{}, err
	}
	now := s.now().In(s.loc)
	window := core.MonthWindow(now)
	keyword = strings.TrimSpace(keyword)

	summary, err := s.dashboardSummary(ctx, userID, scope, window, keyword)
	if err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{DashboardSummary: summary, Scope: scope, Window: window}

	if s.profiles != nil {
		p, err := s.profiles.GetProfile(ctx, userID)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return Dashboard{}, fmt.Errorf("load savings settings: %w", err)
		}
		if err == nil && p.MonthlySavingsEnabled {
			savings := core.ComputeSavings(p.MonthlySavingsGoal, summary.Balance)
			d.Savings = &savings
		}
	}
	return d, nil
}

func (s *AggregationService) dashboardSummary(ctx context.Context, userID string, scope core.Scope, window core.Window, keyword string) (core.DashboardSummary, error) {
	load := func(ctx context.Context) (core.DashboardSummary, error) {
		rows, err := s.transactions.ListTransactions(ctx, storage.TransactionFilter{
			UserID:   userID,
			LedgerID: scope.Filter(),
			From:     window.Start,
			To:       window.End,
			Keyword:  keyword,
		})
		if err != nil {
			return core.DashboardSummary{}, fmt.Errorf("load dashboard: %w", err)
		}
		return core.SummarizeDashboard(rows), nil
	}
	if s.cache == nil {
		return load(ctx)
	}

	key := dashboardKey(userID, scope, window, keyword)
	if summary, ok := s.cache.Get(key); ok {
		return summary, nil
	}

	// Callers arriving after a change never join a fill started before it.
	gen := s.generation(userID)
	flight := key + "#" + strconv.FormatUint(gen, 10)
	ch := s.fills.DoChan(flight, func() (any, error) {
		summary, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.storeIfCurrent(userID, gen, key, summary)
		return summary, nil
	})
	select {
	case <-ctx.Done():
		return core.DashboardSummary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.DashboardSummary{}, res.Err
		}
		return res.Val.(core.DashboardSummary), nil
	}
}

func (s *AggregationService) generation(userID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[userID]
}

// storeIfCurrent caches summary unless userID's data changed since gen.
func (s *AggregationService) storeIfCurrent(userID string, gen uint64, key string, summary core.DashboardSummary) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[userID] != gen {
		return
	}
	s.cache.Set(key, summary)
}

func dashboardKey(userID string, scope core.Scope, window core.Window, keyword string) string {
	scopeKey := "master"
	if !scope.Master {
		scopeKey = scope.LedgerID
	}
	return userID + "|" + scopeKey + "|" + window.Start.Format("2006-01") + "|" + strings.ToLower(keyword)
}

// InvalidateUser drops every cached dashboard of userID and keeps fills
// already in progress from caching what they read.
func (s *AggregationService) InvalidateUser(userID string) int {
	if s.cache == nil || userID == "" {
		return 0
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[userID]++
	return s.cache.DeletePrefix(userID + "|")
}

// DataChanged evicts the user's cached dashboards.
func (s *AggregationService) DataChanged(_ context.Context, change core.DataChange) {
	s.InvalidateUser(change.UserID)
}

// ComputeStats groups the window selected by filter into category and
// mood breakdowns. The reference date defaults to now.
func (s *AggregationService) ComputeStats(ctx context.Context, userID string, filter core.StatsFilter, ledgerID string) (core.StatsResult, error) {
	scope, err := s.scopes.ResolveScope(ctx, userID, ledgerID)
	if err != nil {
		return core.StatsResult{}, err
	}
	if filter.Range == "" {
		filter.Range = core.RangeMonth
	}
	if filter.Type == "" {
		filter.Type = core.FilterExpense
	}

	ref := s.now().In(s.loc)
	if strings.TrimSpace(filter.Date) != "" {
		parsed, err := core.ParseDate(filter.Date, s.loc)
		if err != nil {
			return core.StatsResult{}, err
		}
		ref = parsed.In(s.loc)
	}
	window := core.StatsWindow(filter.Range, ref)

	rows, err := s.transactions.ListTransactions(ctx, storage.TransactionFilter{
		UserID:   userID,
		LedgerID: scope.Filter(),
		From:     window.Start,
		To:       window.End,
		Keyword:  filter.Keyword,
	})
	if err != nil {
		return core.StatsResult{}, fmt.Errorf("load stats: %w", err)
	}

	res := core.SummarizeStats(rows, filter.Type)
	res.Window = window
	return res, nil
}
