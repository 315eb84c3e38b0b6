package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"flowmoney/internal/auth"
	"flowmoney/internal/backend"
	"flowmoney/internal/cache"
	"flowmoney/internal/cli"
	"flowmoney/internal/core"
	apphttp "flowmoney/internal/http"
	flowlog "flowmoney/internal/log"
	"flowmoney/internal/notify"
	"flowmoney/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(flowlog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	loc := cfg.Location()

	ctx, stop := cli.SignalContext()
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", flowlog.FieldError, err)
		os.Exit(1)
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", flowlog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", flowlog.FieldError, err)
		}
	}()
	store := be.Store

	// Services emit into fanout, which is filled once every consumer exists.
	var fanout services.Notifiers
	notifier := services.NotifierFunc(func(ctx context.Context, c core.DataChange) {
		fanout.DataChanged(ctx, c)
	})

	members := services.NewMembershipService(store, notifier, nil)
	ledgers := services.NewLedgerService(store, members, notifier, nil)
	txs := services.NewTransactionService(store, store, store, ledgers, notifier, nil, loc)
	exports := services.NewExportService(members, store, nil, loc)

	var dashboards cache.Cache[core.DashboardSummary]
	if cfg.DashboardCacheSize > 0 {
		lru := cache.NewLRUCache[core.DashboardSummary](cfg.DashboardCacheSize, cfg.DashboardCacheTTL)
		cacheManager := cache.NewManager()
		cacheManager.Register(lru)
		cacheManager.StartCleanup(time.Minute)
		defer func() {
			cacheManager.Stop()
			st := lru.Stats()
			logger.Info("Dashboard cache stats",
				"hits", st.Hits,
				"misses", st.Misses,
				"evictions", st.Evictions)
		}()
		dashboards = lru
	}
	agg := services.NewAggregationService(store, ledgers, store, dashboards, nil, loc)

	hub := notify.NewHub()
	defer hub.Close()

	fanout = services.Notifiers{agg, hub}
	if be.Publisher != nil {
		fanout = append(fanout, be.Publisher)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Verifier:           auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Memberships:        members,
		Ledgers:            ledgers,
		Aggregations:       agg,
		Transactions:       txs,
		Exports:            exports,
		Sessions:           hub,
		Store:              store,
		Logger:             logger.WithComponent(flowlog.ComponentHTTP),
		Location:           loc,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		logger.Info("Shutting down server", flowlog.FieldOperation, flowlog.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", flowlog.FieldError, err)
		}
	}()

	logger.Info("Starting flowmoney server",
		flowlog.FieldOperation, flowlog.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", loc.String(),
		"amqp", be.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", flowlog.FieldError, err, "port", cfg.Port)
		stop()
	}
	<-shutdownDone
	logger.Info("Server stopped gracefully")
}
