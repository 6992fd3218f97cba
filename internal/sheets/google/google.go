package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ports "chantier/internal/sheets"

	"golang.org/x/oauth2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// maxTitleLength is the Sheets limit for tab names.
const maxTitleLength = 100

var _ ports.ReportWriter = (*Client)(nil)

// Client writes each report to its own tab of one spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// Credentials selects how the client authenticates. The first non-empty
// field wins, in declaration order.
type Credentials struct {
	ServiceAccountJSON string
	ServiceAccountFile string
	// AccessToken is a short-lived OAuth token, e.g. from
	// `gcloud auth print-access-token`.
	AccessToken string
}

// ClientOptions turns the credentials into API options.
func (c Credentials) ClientOptions(ctx context.Context) ([]goption.ClientOption, error) {
	opts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}
	switch {
	case strings.TrimSpace(c.ServiceAccountJSON) != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return append(opts, goption.WithCredentialsJSON([]byte(c.ServiceAccountJSON))), nil
	case strings.TrimSpace(c.ServiceAccountFile) != "":
		data, err := os.ReadFile(c.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Using service account credentials file", "path", c.ServiceAccountFile)
		return append(opts, goption.WithCredentialsJSON(data)), nil
	case strings.TrimSpace(c.AccessToken) != "":
		slog.InfoContext(ctx, "Using static access token")
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(c.AccessToken), TokenType: "Bearer"})
		return append(opts, goption.WithTokenSource(ts)), nil
	default:
		return nil, errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_ACCESS_TOKEN)")
	}
}

func New(ctx context.Context, spreadsheetID string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// WriteReport replaces the content of the tab named after title, creating
// the tab first when needed.
func (c *Client) WriteReport(ctx context.Context, title string, rows [][]string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	tab := sanitizeTitle(title)
	if tab == "" {
		return errors.New("empty report title")
	}

	if err := c.ensureSheet(ctx, tab); err != nil {
		return err
	}

	rng := quoteSheet(tab)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %q: %w", tab, err)
	}

	vr := &gsheet.ValueRange{Values: toValues(rows)}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng+"!A1", vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update sheet %q: %w", tab, err)
	}

	slog.InfoContext(ctx, "Report written to Google Sheets",
		"spreadsheet_id", c.spreadsheetID,
		"sheet", tab,
		"rows", len(rows))
	return nil
}

func (c *Client) ensureSheet(ctx context.Context, tab string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: tab},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", tab, err)
	}
	slog.InfoContext(ctx, "Created report sheet", "sheet", tab)
	return nil
}

func toValues(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		row := make([]interface{}, len(r))
		for j, v := range r {
			row[j] = v
		}
		out[i] = row
	}
	return out
}

// sanitizeTitle drops characters Sheets rejects in tab names.
func sanitizeTitle(title string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return ' '
		}
		return r
	}, title)
	clean = strings.Join(strings.Fields(clean), " ")
	if r := []rune(clean); len(r) > maxTitleLength {
		clean = strings.TrimSpace(string(r[:maxTitleLength]))
	}
	return clean
}

func quoteSheet(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}
