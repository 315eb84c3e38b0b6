// Package worker holds the background handlers run by flowmoney-worker.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"flowmoney/internal/amqp"
	"flowmoney/internal/core"
	flowlog "flowmoney/internal/log"
	"flowmoney/internal/sheets"
)

type (
	ProfileResolver interface {
		ResolveProfile(ctx context.Context, userID string) (core.Profile, error)
	}

	// RowSource returns every transaction of a user as export rows.
	RowSource interface {
		Rows(ctx context.Context, userID string) ([]core.ExportRow, error)
	}
)

// SyncWorker mirrors a Pro user's transactions to a spreadsheet tab each
// time their data changes.
type SyncWorker struct {
	profiles ProfileResolver
	rows     RowSource
	sheets   sheets.ExportWriter
}

func NewSyncWorker(profiles ProfileResolver, rows RowSource, writer sheets.ExportWriter) *SyncWorker {
	return &SyncWorker{profiles: profiles, rows: rows, sheets: writer}
}

// mirrored lists the changes that alter exported rows or who gets a mirror.
var mirrored = map[core.ChangeKind]bool{
	core.ChangeTransactionCreated: true,
	core.ChangeTransactionDeleted: true,
	core.ChangeLedgerRenamed:      true,
	core.ChangeMembership:         true,
}

// HandleDataChanged processes a single data changed message from AMQP.
func (w *SyncWorker) HandleDataChanged(ctx context.Context, msg *amqp.DataChangedMessage) error {
	if !mirrored[msg.Kind] {
		slog.DebugContext(ctx, "Skipping change without export impact",
			flowlog.FieldUserID, msg.UserID, flowlog.FieldKind, msg.Kind)
		return nil
	}
	slog.InfoContext(ctx, "Processing data changed message",
		flowlog.FieldUserID, msg.UserID,
		flowlog.FieldKind, msg.Kind,
		"entity_id", msg.EntityID)
	return w.Mirror(ctx, msg.UserID)
}

// Mirror rewrites the user's tab. Users without Pro are skipped.
func (w *SyncWorker) Mirror(ctx context.Context, userID string) error {
	var (
		profile core.Profile
		rows    []core.ExportRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := w.profiles.ResolveProfile(gctx, userID)
		if err != nil {
			return fmt.Errorf("resolve profile: %w", err)
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		r, err := w.rows.Rows(gctx, userID)
		if err != nil {
			return fmt.Errorf("load rows: %w", err)
		}
		rows = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if !profile.IsPro {
		slog.DebugContext(ctx, "Skipping sheet mirror for non-Pro user", "user_id", userID)
		return nil
	}

	values := make([][]string, len(rows))
	for i, r := range rows {
		values[i] = r.Values()
	}
	tab := sheets.TabName(userID)
	if err := w.sheets.ReplaceRows(ctx, tab, core.ExportHeader, values); err != nil {
		return fmt.Errorf("mirror to sheets: %w", err)
	}
	slog.InfoContext(ctx, "Mirrored transactions to sheet",
		flowlog.FieldOperation, flowlog.OpSync,
		flowlog.FieldUserID, userID,
		"tab", tab,
		"rows", len(rows))
	return nil
}
