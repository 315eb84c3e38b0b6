package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"flowmoney/internal/core"
	"flowmoney/internal/export"
	"flowmoney/internal/storage"
)

// ExportService renders a user's transactions for download.
type ExportService struct {
	gate         ProGate
	transactions storage.TransactionStore
	now          Clock
	loc          *time.Location
}

func NewExportService(gate ProGate, transactions storage.TransactionStore, now Clock, loc *time.Location) *ExportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ExportService{
		gate:         gate,
		transactions: transactions,
		now:          orSystemClock(now),
		loc:          loc,
	}
}

// Rows returns every transaction of the user as export rows, newest first.
// It does not check membership; callers that serve users must go through Export.
func (s *ExportService) Rows(ctx context.Context, userID string) ([]core.ExportRow, error) {
	views, err := s.transactions.ListTransactions(ctx, storage.TransactionFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("load export rows: %w", err)
	}
	rows := make([]core.ExportRow, 0, len(views))
	for _, v := range views {
		rows = append(rows, core.NewExportRow(v, s.loc))
	}
	return rows, nil
}

// Export renders the user's transactions in format. Pro only.
func (s *ExportService) Export(ctx context.Context, userID string, format export.Format) (File, error) {
	if _, err := s.gate.RequirePro(ctx, userID); err != nil {
		return File{}, err
	}
	rows, err := s.Rows(ctx, userID)
	if err != nil {
		return File{}, err
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, rows); err != nil {
		return File{}, fmt.Errorf("render export: %w", err)
	}
	slog.InfoContext(ctx, "Export rendered",
		"user_id", userID,
		"format", format,
		"rows", len(rows),
		"bytes", buf.Len())

	return File{
		Name:        format.FileName(s.now().In(s.loc)),
		ContentType: format.ContentType(),
		Body:        buf.Bytes(),
	}, nil
}

// File is a rendered export.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}
