package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFallback implements Searcher with an ILIKE scan over the files table.
// File names are short, so a trigram-free scan is good enough when
// Meilisearch is down.
type PgFallback struct {
	db *sql.DB
}

// NewPgFallback creates a PostgreSQL-backed searcher.
func NewPgFallback(db *sql.DB) *PgFallback {
	return &PgFallback{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFallback) Healthy() bool {
	return true
}

// Search matches file names case-insensitively within the given organizations.
func (p *PgFallback) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || len(q.OrgIDs) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args := []any{"%" + q.Text + "%"}
	argN := 2

	placeholders := make([]string, len(q.OrgIDs))
	for i, id := range q.OrgIDs {
		placeholders[i] = fmt.Sprintf("$%d", argN)
		args = append(args, id)
		argN++
	}

	where := fmt.Sprintf("name ILIKE $1 AND org_id IN (%s) AND NOT pending_delete",
		strings.Join(placeholders, ", "))
	if q.FilterType != "" {
		where += fmt.Sprintf(" AND type = $%d", argN)
		args = append(args, q.FilterType)
		argN++
	}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM files WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("search count: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT id, name, org_id, type
		FROM files
		WHERE %s
		ORDER BY created_at DESC, id
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Name, &r.OrgID, &r.Type); err != nil {
			return nil, 0, fmt.Errorf("search scan: %w", err)
		}
		r.Snippet = r.Name
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all live file records for full reindexing.
func (p *PgFallback) LoadAllRecords(ctx context.Context) ([]FileRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, org_id, type
		FROM files
		WHERE NOT pending_delete
	`)
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}
	defer rows.Close()

	files := make([]FileRecord, 0)
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.Name, &f.OrgID, &f.Type); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}

	return files, nil
}
