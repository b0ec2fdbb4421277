package sheets

import (
	"context"
	"time"
)

// PageView is one row of the page-view sheet.
type PageView struct {
	MessageID  string
	Identifier string
	Path       string
	OccurredAt time.Time
}

// Ports for outbound adapters.
type (
	// PageViewAppender mirrors journaled page views to a spreadsheet.
	PageViewAppender interface {
		AppendPageViews(ctx context.Context, views []PageView) (rowRef string, err error)
	}
)
