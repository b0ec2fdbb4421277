package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"moneta/internal/log"
	ports "moneta/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
	now           func() time.Time
}

var _ ports.PageViewAppender = (*Client)(nil)

// Config selects the spreadsheet and the service-account credentials.
type Config struct {
	SpreadsheetID string
	// SheetName is the base tab name; the current year is prefixed unless it already starts with one.
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// New creates a Sheets client authenticated with a service account.
// Extra options are passed to the Sheets service and replace the
// credentials when they carry their own (tests use WithoutAuthentication).
func New(ctx context.Context, cfg Config, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "PageViews"
	}

	if len(opts) == 0 {
		creds, err := readCredentials(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	c := &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     yearPrefixedName(base, time.Now().Year()),
		logger:        logger,
		now:           time.Now,
	}
	logger.InfoContext(ctx, "Google Sheets sink ready", "sheet", c.sheetName)
	return c, nil
}

// readCredentials loads service account JSON from the config, falling back
// to GOOGLE_APPLICATION_CREDENTIALS.
func readCredentials(ctx context.Context, cfg Config, logger *log.Logger) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		logger.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		logger.DebugContext(ctx, "Reading service account credentials", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// SheetName returns the year-prefixed tab page views are appended to.
func (c *Client) SheetName() string {
	return c.sheetName
}

// TrackPageView appends one row, for TRACKING_SINK=sheets.
func (c *Client) TrackPageView(ctx context.Context, identifier string) error {
	path, _, _ := strings.Cut(identifier, "?")
	_, err := c.AppendPageViews(ctx, []ports.PageView{{
		Identifier: identifier,
		Path:       path,
		OccurredAt: c.now(),
	}})
	return err
}

// AppendPageViews appends one row per view below the existing data and
// returns the updated range.
func (c *Client) AppendPageViews(ctx context.Context, views []ports.PageView) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(views) == 0 {
		return "", nil
	}

	rows := make([][]any, len(views))
	for i, v := range views {
		rows[i] = pageViewRow(v)
	}

	rng := fmt.Sprintf("%s!A:D", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Appended page views", "rows", len(rows), "range", ref)
	return ref, nil
}

func pageViewRow(v ports.PageView) []any {
	return []any{
		v.OccurredAt.UTC().Format(time.RFC3339),
		v.Identifier,
		v.Path,
		v.MessageID,
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
