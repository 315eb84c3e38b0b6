// Package http serves the flowmoney JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"flowmoney/internal/auth"
	"flowmoney/internal/core"
	"flowmoney/internal/export"
	flowlog "flowmoney/internal/log"
	"flowmoney/internal/middleware/ratelimit"
	"flowmoney/internal/middleware/security"
	"flowmoney/internal/middleware/trace"
	"flowmoney/internal/services"
	"flowmoney/internal/storage"
)

// Memberships is the profile surface used by the handlers.
type Memberships interface {
	ResolveIdentity(ctx context.Context, userID, displayName string) (core.Profile, error)
	GrantPermanentPro(ctx context.Context, userID string) (core.Profile, error)
	UpdateSavingsSettings(ctx context.Context, userID string, enabled bool, goal decimal.Decimal) (core.Profile, error)
	GrantMembershipDays(ctx context.Context, userID string, isPro bool, days int) (core.Profile, error)
	ListProfiles(ctx context.Context, search string, page int) (storage.ProfilePage, error)
}

// Ledgers manages ledgers.
type Ledgers interface {
	ListLedgers(ctx context.Context, userID string) ([]core.Ledger, error)
	CreateLedger(ctx context.Context, userID, name string) (core.Ledger, error)
	RenameLedger(ctx context.Context, userID, ledgerID, name string) (core.Ledger, error)
	DeleteLedger(ctx context.Context, userID, ledgerID string) error
}

// Aggregations computes read models.
type Aggregations interface {
	ComputeDashboard(ctx context.Context, userID, ledgerID, keyword string) (services.Dashboard, error)
	ComputeStats(ctx context.Context, userID string, filter core.StatsFilter, ledgerID string) (core.StatsResult, error)
}

// Transactions records entries and manages categories.
type Transactions interface {
	CreateTransaction(ctx context.Context, userID string, p services.CreateTransactionParams) (string, error)
	DeleteTransaction(ctx context.Context, userID, id string) error
	ListCategories(ctx context.Context, userID, entryType string) ([]core.Category, error)
	DeleteCategory(ctx context.Context, userID, categoryID string) error
}

// Exports renders downloads.
type Exports interface {
	Export(ctx context.Context, userID string, format export.Format) (services.File, error)
}

// Pinger reports store reachability for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionServer upgrades a request to a data-changed stream of userID.
type SessionServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

// Deps are the collaborators of the API server. Sessions may be nil to
// disable /api/ws.
type Deps struct {
	Verifier     *auth.Verifier
	Memberships  Memberships
	Ledgers      Ledgers
	Aggregations Aggregations
	Transactions Transactions
	Exports      Exports
	Sessions     SessionServer
	Store        Pinger
	Logger       *flowlog.Logger
	Location     *time.Location
	Clock        func() time.Time

	RateLimitPerMinute int
}

// Server wraps http.Server with the API routes and their middleware.
type Server struct {
	http.Server

	deps         Deps
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	errLog       *flowlog.StructuredLogger
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = flowlog.FromContext(context.Background())
	}

	s := &Server{
		deps:     deps,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector: security.NewDetector(),
		errLog:   flowlog.NewStructuredLogger(deps.Logger),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("GET /api/profile", s.authed(s.handleGetProfile))
	mux.Handle("POST /api/profile/upgrade", s.authed(s.handleUpgrade))
	mux.Handle("PUT /api/profile/savings", s.authed(s.handleUpdateSavings))

	mux.Handle("GET /api/ledgers", s.authed(s.handleListLedgers))
	mux.Handle("POST /api/ledgers", s.authed(s.handleCreateLedger))
	mux.Handle("PUT /api/ledgers/{id}", s.authed(s.handleRenameLedger))
	mux.Handle("DELETE /api/ledgers/{id}", s.authed(s.handleDeleteLedger))

	mux.Handle("GET /api/dashboard", s.authed(s.handleDashboard))
	mux.Handle("GET /api/stats", s.authed(s.handleStats))

	mux.Handle("POST /api/transactions", s.authed(s.handleCreateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.authed(s.handleDeleteTransaction))
	mux.Handle("GET /api/categories", s.authed(s.handleListCategories))
	mux.Handle("DELETE /api/categories/{id}", s.authed(s.handleDeleteCategory))

	mux.Handle("GET /api/export", s.authed(s.handleExport))
	mux.Handle("GET /api/ws", s.authed(s.handleSessions))

	mux.Handle("GET /api/admin/users", s.admin(s.handleAdminListUsers))
	mux.Handle("PUT /api/admin/users/{id}/membership", s.admin(s.handleAdminMembership))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, retry later", "")
	}

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, onLimit)(handler)
	handler = s.detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = s.tracer.Middleware(handler)
	handler = flowlog.Middleware(deps.Logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)

		traffic := s.tracer.GetMetrics()
		limits := s.limiter.GetMetrics()
		s.deps.Logger.Info("HTTP traffic summary",
			"requests", traffic.TotalRequests,
			"failed", traffic.FailedRequests,
			"rate_limited", limits.Rejected,
			"suspicious", s.detector.GetMetrics().SuspiciousRequests)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.errLog.LogError(r.Context(), "Readiness check failed", err, flowlog.ComponentStorage, flowlog.OpRead, nil)
			writeErrorCode(w, http.StatusServiceUnavailable, "unavailable", "store unreachable", "")
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
