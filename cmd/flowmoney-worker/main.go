package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"flowmoney/internal/backend"
	"flowmoney/internal/cli"
	flowlog "flowmoney/internal/log"
	"flowmoney/internal/services"
	gsheet "flowmoney/internal/sheets/google"
	"flowmoney/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(flowlog.ComponentWorker)
	logger.Info("Starting flowmoney-worker", flowlog.FieldOperation, flowlog.OpStartup)
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

	members := services.NewMembershipService(be.Store, nil, nil)
	exports := services.NewExportService(members, be.Store, nil, loc)

	g, gctx := errgroup.WithContext(ctx)

	expiry := services.NewExpiryProcessor(members, services.ExpiryProcessorConfig{Interval: cfg.ExpirySweepInterval})
	g.Go(func() error {
		return expiry.Run(gctx)
	})
	logger.Info("Membership expiry sweep scheduled", "interval", cfg.ExpirySweepInterval)

	switch {
	case cfg.GoogleSpreadsheetID == "":
		logger.Info("Sheets mirror disabled, no GOOGLE_SPREADSHEET_ID provided")
	case be.Publisher == nil:
		logger.Warn("Sheets mirror disabled, AMQP is not available")
	default:
		sheetsClient, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", flowlog.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

		syncWorker := worker.NewSyncWorker(members, exports, sheetsClient)
		g.Go(func() error {
			return be.Publisher.Consume(gctx, syncWorker.HandleDataChanged)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", flowlog.FieldError, err)
		stop()
		return
	}
	logger.Info("Worker stopped gracefully", flowlog.FieldOperation, flowlog.OpShutdown)
}
