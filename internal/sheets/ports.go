package sheets

import "context"

// Ports for the spreadsheet adapter.
type (
	// RowAppender appends rows after the last row of a range such as "Activity!A:F".
	RowAppender interface {
		AppendRows(ctx context.Context, rng string, rows [][]any) error
	}
)
