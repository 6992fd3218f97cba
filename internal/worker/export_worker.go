package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chantier/internal/amqp"
	"chantier/internal/core"
	"chantier/internal/sheets"
	"chantier/internal/storage"
)

// Exporter produces report rows for a site.
type Exporter interface {
	Site(ctx context.Context, sess core.Session, id int64) (core.Site, error)
	Export(ctx context.Context, sess core.Session, id int64, date *core.Date) ([][]string, error)
}

// ExportWorker turns queued export requests into spreadsheet reports.
type ExportWorker struct {
	exporter Exporter
	writer   sheets.ReportWriter
}

func NewExportWorker(exporter Exporter, writer sheets.ReportWriter) *ExportWorker {
	return &ExportWorker{exporter: exporter, writer: writer}
}

// HandleExportRequest writes the requested report. Requests for sites that
// no longer exist or carry no owner are dropped; any other failure is
// returned so the message is redelivered.
func (w *ExportWorker) HandleExportRequest(ctx context.Context, msg *amqp.ExportRequestMessage) error {
	sess := msg.Session()
	date, err := msg.Day()
	if err != nil {
		slog.WarnContext(ctx, "Dropping export request with bad date",
			"site_id", msg.SiteID,
			"date", msg.Date,
			"error", err)
		return nil
	}

	site, err := w.exporter.Site(ctx, sess, msg.SiteID)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, core.ErrNoSession) {
		slog.WarnContext(ctx, "Dropping export request for unknown site",
			"site_id", msg.SiteID,
			"owner_id", msg.OwnerID,
			"error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load site: %w", err)
	}

	rows, err := w.exporter.Export(ctx, sess, msg.SiteID, date)
	if err != nil {
		return fmt.Errorf("build export rows: %w", err)
	}

	title := ReportTitle(site, date)
	if err := w.writer.WriteReport(ctx, title, rows); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	slog.InfoContext(ctx, "Export written",
		"site_id", site.ID,
		"title", title,
		"rows", len(rows))
	return nil
}

// ReportTitle names a report after its site, suffixed with the day for
// single-day exports.
func ReportTitle(site core.Site, date *core.Date) string {
	title := fmt.Sprintf("%s #%d", site.Name, site.ID)
	if date != nil {
		title += " " + date.String()
	}
	return title
}
