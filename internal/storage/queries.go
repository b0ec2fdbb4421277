package storage

import (
	"context"
	"database/sql"
	"strings"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type PageViewRow struct {
	ID         int64
	MessageID  string
	Identifier string
	Path       string
	OccurredAt int64
	RecordedAt int64
	MirroredAt sql.NullInt64
}

const insertPageView = `
INSERT INTO page_views (message_id, identifier, path, occurred_at, recorded_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(message_id) DO NOTHING
`

type InsertPageViewParams struct {
	MessageID  string
	Identifier string
	Path       string
	OccurredAt int64
	RecordedAt int64
}

// InsertPageView reports whether a row was written; a duplicate message id writes nothing.
func (q *Queries) InsertPageView(ctx context.Context, arg InsertPageViewParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertPageView,
		arg.MessageID,
		arg.Identifier,
		arg.Path,
		arg.OccurredAt,
		arg.RecordedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const listUnmirrored = `
SELECT id, message_id, identifier, path, occurred_at, recorded_at, mirrored_at
FROM page_views
WHERE mirrored_at IS NULL
ORDER BY id
LIMIT ?
`

func (q *Queries) ListUnmirrored(ctx context.Context, limit int64) ([]PageViewRow, error) {
	rows, err := q.db.QueryContext(ctx, listUnmirrored, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PageViewRow
	for rows.Next() {
		var i PageViewRow
		if err := rows.Scan(
			&i.ID,
			&i.MessageID,
			&i.Identifier,
			&i.Path,
			&i.OccurredAt,
			&i.RecordedAt,
			&i.MirroredAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (q *Queries) MarkMirrored(ctx context.Context, mirroredAt int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, mirroredAt)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE page_views SET mirrored_at = ? WHERE id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `)`
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const topPaths = `
SELECT path, COUNT(*) AS views
FROM page_views
WHERE occurred_at >= ?
GROUP BY path
ORDER BY views DESC, path
LIMIT ?
`

type TopPathsRow struct {
	Path  string
	Views int64
}

func (q *Queries) TopPaths(ctx context.Context, since int64, limit int64) ([]TopPathsRow, error) {
	rows, err := q.db.QueryContext(ctx, topPaths, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TopPathsRow
	for rows.Next() {
		var i TopPathsRow
		if err := rows.Scan(&i.Path, &i.Views); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countPageViews = `SELECT COUNT(*) FROM page_views`

func (q *Queries) CountPageViews(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countPageViews)
	var count int64
	err := row.Scan(&count)
	return count, err
}
