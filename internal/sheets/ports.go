package sheets

import "context"

// ReportWriter publishes a tabular site report. Writing the same title
// again replaces the previous report.
type ReportWriter interface {
	WriteReport(ctx context.Context, title string, rows [][]string) error
}
