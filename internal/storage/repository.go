package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"moneta/internal/log"

	_ "modernc.org/sqlite"
)

// PageView is one journaled navigation.
type PageView struct {
	ID         int64
	MessageID  string
	Identifier string
	Path       string
	OccurredAt time.Time
	RecordedAt time.Time
	MirroredAt time.Time
}

// PathCount is the number of views of one path.
type PathCount struct {
	Path  string
	Views int64
}

// SQLiteRepository is the local page-view journal.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer; page views arrive from request goroutines and the worker
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentStorage),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// TrackPageView journals identifier directly, for TRACKING_SINK=sqlite.
func (r *SQLiteRepository) TrackPageView(ctx context.Context, identifier string) error {
	_, err := r.RecordPageView(ctx, PageView{
		MessageID:  uuid.NewString(),
		Identifier: identifier,
		OccurredAt: r.now(),
	})
	return err
}

// RecordPageView stores pv and reports whether it was new. Recording the same
// message id twice is a no-op, so redelivered messages are harmless.
func (r *SQLiteRepository) RecordPageView(ctx context.Context, pv PageView) (bool, error) {
	if pv.MessageID == "" {
		return false, fmt.Errorf("record page view: empty message id")
	}
	if pv.Path == "" {
		pv.Path, _, _ = strings.Cut(pv.Identifier, "?")
	}
	if pv.OccurredAt.IsZero() {
		pv.OccurredAt = r.now()
	}

	inserted, err := r.queries.InsertPageView(ctx, InsertPageViewParams{
		MessageID:  pv.MessageID,
		Identifier: pv.Identifier,
		Path:       pv.Path,
		OccurredAt: pv.OccurredAt.UnixMilli(),
		RecordedAt: r.now().UnixMilli(),
	})
	if err != nil {
		return false, fmt.Errorf("insert page view: %w", err)
	}
	if !inserted {
		r.logger.DebugContext(ctx, "Duplicate page view ignored", "message_id", pv.MessageID)
	}
	return inserted, nil
}

// ListUnmirrored returns up to limit page views not yet copied to the mirror sink, oldest first.
func (r *SQLiteRepository) ListUnmirrored(ctx context.Context, limit int) ([]PageView, error) {
	rows, err := r.queries.ListUnmirrored(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list unmirrored page views: %w", err)
	}
	views := make([]PageView, len(rows))
	for i, row := range rows {
		views[i] = PageView{
			ID:         row.ID,
			MessageID:  row.MessageID,
			Identifier: row.Identifier,
			Path:       row.Path,
			OccurredAt: time.UnixMilli(row.OccurredAt).UTC(),
			RecordedAt: time.UnixMilli(row.RecordedAt).UTC(),
		}
		if row.MirroredAt.Valid {
			views[i].MirroredAt = time.UnixMilli(row.MirroredAt.Int64).UTC()
		}
	}
	return views, nil
}

// MarkMirrored flags the given rows as copied.
func (r *SQLiteRepository) MarkMirrored(ctx context.Context, ids []int64) error {
	n, err := r.queries.MarkMirrored(ctx, r.now().UnixMilli(), ids)
	if err != nil {
		return fmt.Errorf("mark page views mirrored: %w", err)
	}
	r.logger.DebugContext(ctx, "Page views marked as mirrored", "count", n)
	return nil
}

// TopPaths returns the most viewed paths since the given time.
func (r *SQLiteRepository) TopPaths(ctx context.Context, since time.Time, limit int) ([]PathCount, error) {
	rows, err := r.queries.TopPaths(ctx, since.UnixMilli(), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("top paths: %w", err)
	}
	out := make([]PathCount, len(rows))
	for i, row := range rows {
		out[i] = PathCount{Path: row.Path, Views: row.Views}
	}
	return out, nil
}

// Count returns the number of journaled page views.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.queries.CountPageViews(ctx)
	if err != nil {
		return 0, fmt.Errorf("count page views: %w", err)
	}
	return n, nil
}
