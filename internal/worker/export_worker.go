package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"spendwatch/internal/amqp"
	"spendwatch/internal/core"
	"spendwatch/internal/sheets"
	"spendwatch/internal/storage"
)

// ExportWorker copies exceeded transactions from SQLite to the Google Sheets
// report. It consumes AMQP notifications and also scans for pending rows as a
// backup, so a lost message never loses a report line.
type ExportWorker struct {
	storage      *storage.SQLiteRepository
	report       sheets.ReportWriter
	defaultLimit decimal.Decimal
	batchSize    int
}

func NewExportWorker(storage *storage.SQLiteRepository, report sheets.ReportWriter, defaultLimit decimal.Decimal, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:      storage,
		report:       report,
		defaultLimit: defaultLimit,
		batchSize:    batchSize,
	}
}

// HandleExceededMessage processes a single exceeded-transaction message from AMQP.
func (w *ExportWorker) HandleExceededMessage(ctx context.Context, msg *amqp.ExceededMessage) error {
	slog.InfoContext(ctx, "Processing exceeded message",
		"transaction_id", msg.TransactionID,
		"category", msg.Category)

	et, err := w.storage.GetExceededByID(ctx, msg.TransactionID, w.defaultLimit)
	if err != nil {
		return fmt.Errorf("get exceeded transaction from storage: %w", err)
	}
	if et == nil {
		slog.WarnContext(ctx, "Exceeded transaction not found, dropping message",
			"transaction_id", msg.TransactionID)
		return nil
	}

	if err := w.exportToReport(ctx, *et); err != nil {
		return fmt.Errorf("export transaction to report: %w", err)
	}
	return nil
}

// ProcessPendingExports exports any rows that haven't reached the report yet.
// This is a backup mechanism in case AMQP messages are lost.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) error {
	ids, err := w.storage.PendingExports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending exports: %w", err)
	}

	if len(ids) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(ids))

	for _, id := range ids {
		et, err := w.storage.GetExceededByID(ctx, id, w.defaultLimit)
		if err != nil || et == nil {
			slog.ErrorContext(ctx, "Failed to get exceeded transaction", "id", id, "error", err)
			if err := w.storage.MarkExportError(ctx, id); err != nil {
				slog.ErrorContext(ctx, "Failed to mark export error", "id", id, "error", err)
			}
			continue
		}

		if err := w.exportToReport(ctx, *et); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction", "id", id, "error", err)
			continue
		}
	}

	return nil
}

// StartupExportCheck drains the pending backlog at worker startup. This is
// useful to recover from missed AMQP messages or worker downtime.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	ids, err := w.storage.PendingExports(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending exports for startup check: %w", err)
	}

	if len(ids) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing...",
		"count", len(ids))

	successCount := 0
	errorCount := 0

	for _, id := range ids {
		et, err := w.storage.GetExceededByID(ctx, id, w.defaultLimit)
		if err != nil || et == nil {
			slog.ErrorContext(ctx, "Failed to get exceeded transaction for startup export",
				"id", id, "error", err)
			if err := w.storage.MarkExportError(ctx, id); err != nil {
				slog.ErrorContext(ctx, "Failed to mark export error", "id", id, "error", err)
			}
			errorCount++
			continue
		}

		if err := w.exportToReport(ctx, *et); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction during startup",
				"id", id, "error", err)
			errorCount++
			continue
		}

		successCount++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(ids),
		"exported", successCount,
		"errors", errorCount)

	return nil
}

func (w *ExportWorker) exportToReport(ctx context.Context, et core.ExceededTransaction) error {
	ref, err := w.report.Append(ctx, et)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, et.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", et.ID, "error", markErr)
		}
		return fmt.Errorf("append to report: %w", err)
	}

	if err := w.storage.MarkExported(ctx, et.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as exported", "id", et.ID, "error", err)
		// Don't return an error here, the row actually reached the report
	}

	slog.InfoContext(ctx, "Successfully exported transaction",
		"id", et.ID,
		"report_ref", ref,
		"category", et.Category,
		"usd_amount", et.USDAmount)

	return nil
}
