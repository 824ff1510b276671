package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Search runs a ranked full-text query with filters applied store-side.
// Hits come back ordered by bm25 rank (best first).
func (s *Store) Search(ctx context.Context, q Query) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, nil
	}

	where, args := buildFilters(q)
	match := BuildMatchExpr(text, q.Scope)

	query := `
		SELECT d.file_path, d.file_name, d.folder_path, d.file_type,
		       d.file_size, d.modified_at, d.indexed_at,
		       snippet(documents_fts, -1, '<mark>', '</mark>', '...', 64),
		       rank
		FROM documents_fts
		JOIN documents d ON documents_fts.rowid = d.id
		WHERE documents_fts MATCH ?` + where + `
		ORDER BY rank`
	argv := append([]any{match}, args...)
	if q.Limit > 0 {
		query += ` LIMIT ?`
		argv = append(argv, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, argv...)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", text, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var folder, modified, indexed, snippet sql.NullString
		if err := rows.Scan(&h.Path, &h.Name, &folder, &h.Kind, &h.Size,
			&modified, &indexed, &snippet, &h.Rank); err != nil {
			return nil, err
		}
		h.Folder = folder.String
		h.Modified = parseStoredTime(modified.String)
		h.Indexed = parseStoredTime(indexed.String)
		h.Snippet = buildSnippet(snippet.String, text, h.Name, h.Folder)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// buildFilters renders the optional predicate clauses and their args.
func buildFilters(q Query) (string, []any) {
	var (
		where strings.Builder
		args  []any
	)

	if len(q.Kinds) > 0 {
		where.WriteString(" AND d.file_type IN (?" + strings.Repeat(",?", len(q.Kinds)-1) + ")")
		for _, k := range q.Kinds {
			args = append(args, k)
		}
	}
	if !q.ModifiedFrom.IsZero() {
		where.WriteString(" AND d.modified_at >= ?")
		args = append(args, q.ModifiedFrom.UTC().Format(timeFormat))
	}
	if !q.ModifiedTo.IsZero() {
		where.WriteString(" AND d.modified_at <= ?")
		args = append(args, q.ModifiedTo.UTC().Format(timeFormat))
	}
	if q.MinSize > 0 {
		where.WriteString(" AND d.file_size >= ?")
		args = append(args, q.MinSize)
	}
	if q.MaxSize > 0 {
		where.WriteString(" AND d.file_size <= ?")
		args = append(args, q.MaxSize)
	}
	return where.String(), args
}

// BuildMatchExpr renders an FTS5 MATCH expression: each term quoted with
// a prefix wildcard, AND-joined, optionally confined to one column.
func BuildMatchExpr(text string, scope Scope) string {
	var column string
	switch scope {
	case ScopeName:
		column = "file_name: "
	case ScopeFolder:
		column = "folder_path: "
	case ScopeContent:
		column = "content: "
	}

	words := strings.Fields(text)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, column+`"`+escapeFTS(w)+`"*`)
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return "(" + strings.Join(terms, " AND ") + ")"
}

// escapeFTS escapes double quotes inside a quoted FTS5 term.
func escapeFTS(term string) string {
	return strings.ReplaceAll(term, `"`, `""`)
}

// buildSnippet falls back to naming the matching field when the content
// snippet carries no highlight, which happens when the hit came from the
// file name or folder columns.
func buildSnippet(snippet, query, name, folder string) string {
	if strings.Contains(snippet, "<mark>") {
		return snippet
	}
	lower := strings.ToLower(query)
	if strings.Contains(strings.ToLower(name), lower) {
		return "Match in filename: " + name
	}
	if folder != "" && strings.Contains(strings.ToLower(folder), lower) {
		return "Match in folder: " + folder
	}
	if snippet != "" {
		return snippet
	}
	return "No preview available"
}

func parseStoredTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
