// Package sheets defines the outbound port for mirroring occurrences to a
// budget spreadsheet.
package sheets

import (
	"context"

	"spendify/internal/core"
)

// OccurrenceAppender appends one occurrence row and returns a row reference.
type OccurrenceAppender interface {
	Append(ctx context.Context, e core.Expense) (rowRef string, err error)
}
