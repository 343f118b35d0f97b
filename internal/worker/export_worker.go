// Package worker contains the export worker that mirrors occurrences to the
// budget spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spendify/internal/amqp"
	"spendify/internal/sheets"
	"spendify/internal/store"
)

// ExportWorker consumes occurrence-created messages and appends a row per
// occurrence to the spreadsheet.
type ExportWorker struct {
	expenses store.ExpenseStore
	appender sheets.OccurrenceAppender
}

func NewExportWorker(expenses store.ExpenseStore, appender sheets.OccurrenceAppender) *ExportWorker {
	return &ExportWorker{
		expenses: expenses,
		appender: appender,
	}
}

// HandleOccurrenceMessage processes a single occurrence message. A record
// deleted between publish and consume is acknowledged and skipped, not
// retried forever.
func (w *ExportWorker) HandleOccurrenceMessage(ctx context.Context, msg *amqp.OccurrenceCreatedMessage) error {
	expense, err := w.expenses.GetExpense(ctx, msg.ExpenseID)
	if errors.Is(err, store.ErrNotFound) {
		slog.WarnContext(ctx, "Occurrence vanished before export, skipping",
			"expense_id", msg.ExpenseID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense: %w", err)
	}

	if expense.IsTemplate() {
		slog.WarnContext(ctx, "Refusing to export a template record",
			"expense_id", expense.ID)
		return nil
	}

	rowRef, err := w.appender.Append(ctx, expense)
	if err != nil {
		return fmt.Errorf("append to spreadsheet: %w", err)
	}

	slog.InfoContext(ctx, "Exported occurrence",
		"expense_id", expense.ID,
		"row_ref", rowRef)
	return nil
}
