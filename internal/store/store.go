package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, FTS5 built in
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// timeFormat is how timestamps are persisted: RFC 3339 in UTC with a
// fixed nine-digit fraction. The fixed width matters: range filters are
// plain string comparisons, which only equal chronological order when
// every stored value has the same shape. RFC3339Nano trims trailing
// zeros and breaks that.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a single collection's document store.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	readOnly  bool
	closed    bool
	stopWords map[string]struct{}
}

// Option configures a Store on open.
type Option func(*Store)

// WithStopWords overrides the default stop-word set.
func WithStopWords(words []string) Option {
	return func(s *Store) {
		s.stopWords = BuildStopWordMap(words)
	}
}

// Open opens (or creates) the writable store at path. If path is empty an
// in-memory store is created for testing. The returned handle is the
// collection's only writer and must not be shared across concurrent
// indexing runs.
func Open(path string, opts ...Option) (*Store, error) {
	return open(path, false, opts...)
}

// OpenReadOnly opens an existing store for querying. Multiple read-only
// handles may coexist with one writer thanks to WAL mode.
func OpenReadOnly(path string, opts ...Option) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store %s: %w", path, err)
	}
	return open(path, true, opts...)
}

func open(path string, readOnly bool, opts ...Option) (*Store, error) {
	var dsn string
	switch {
	case path == "":
		dsn = ":memory:"
	case readOnly:
		dsn = path + "?mode=ro"
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	// Single connection: SQLite allows one writer, and serializing reads
	// through one connection avoids lock churn on the hot write path.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if readOnly {
		pragmas = []string{"PRAGMA busy_timeout = 5000", "PRAGMA query_only = ON"}
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{
		db:        db,
		path:      path,
		readOnly:  readOnly,
		stopWords: defaultStopWordSet,
	}
	for _, opt := range opts {
		opt(s)
	}

	if !readOnly {
		if err := s.initSchema(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
	}

	return s, nil
}

// initSchema creates the documents table, the FTS5 mirror with its sync
// triggers, and the word-frequency table.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_path TEXT UNIQUE NOT NULL,
		file_name TEXT NOT NULL,
		folder_path TEXT,
		file_type TEXT NOT NULL,
		file_size INTEGER,
		modified_at TEXT,
		indexed_at TEXT NOT NULL,
		content TEXT
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		file_name,
		folder_path,
		content,
		content='documents',
		content_rowid='id'
	);

	CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
		INSERT INTO documents_fts(rowid, file_name, folder_path, content)
		VALUES (new.id, new.file_name, new.folder_path, new.content);
	END;

	-- documents_fts is external-content, so old rows must be removed via
	-- the 'delete' command with the old values spelled out: inside an
	-- AFTER trigger the content table no longer holds them.
	CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
		INSERT INTO documents_fts(documents_fts, rowid, file_name, folder_path, content)
		VALUES ('delete', old.id, old.file_name, old.folder_path, old.content);
		INSERT INTO documents_fts(rowid, file_name, folder_path, content)
		VALUES (new.id, new.file_name, new.folder_path, new.content);
	END;

	CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
		INSERT INTO documents_fts(documents_fts, rowid, file_name, folder_path, content)
		VALUES ('delete', old.id, old.file_name, old.folder_path, old.content);
	END;

	CREATE TABLE IF NOT EXISTS word_counts (
		word TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_word_count ON word_counts(count DESC);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path ("" for in-memory stores).
func (s *Store) Path() string { return s.path }

// Write upserts a document by path. When the stored modified_at matches
// the incoming one the write is a no-op and the store is untouched.
// Otherwise the row is replaced and the word-frequency table receives the
// content delta in the same transaction, so document and frequencies can
// never diverge. Returns true when the store was mutated.
func (s *Store) Write(ctx context.Context, doc *Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	if s.readOnly {
		return false, fmt.Errorf("store %s is read-only", s.path)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldModified, oldContent sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT modified_at, content FROM documents WHERE file_path = ?`, doc.Path).
		Scan(&oldModified, &oldContent)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("look up document: %w", err)
	}

	modified := doc.Modified.UTC().Format(timeFormat)
	if exists && oldModified.String == modified {
		// Unchanged file: re-indexing must not mutate the store.
		return false, nil
	}

	indexed := doc.Indexed
	if indexed.IsZero() {
		indexed = time.Now()
	}

	if exists {
		_, err = tx.ExecContext(ctx, `
			UPDATE documents
			SET file_name = ?, folder_path = ?, file_type = ?, file_size = ?,
			    modified_at = ?, indexed_at = ?, content = ?
			WHERE file_path = ?`,
			doc.Name, doc.Folder, doc.Kind, doc.Size,
			modified, indexed.UTC().Format(timeFormat), doc.Content, doc.Path)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents
				(file_path, file_name, folder_path, file_type, file_size, modified_at, indexed_at, content)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.Path, doc.Name, doc.Folder, doc.Kind, doc.Size,
			modified, indexed.UTC().Format(timeFormat), doc.Content)
	}
	if err != nil {
		return false, fmt.Errorf("write document %s: %w", doc.Path, err)
	}

	deltas := wordDeltas(oldContent.String, doc.Content, s.stopWords)
	if err := applyWordDeltas(ctx, tx, deltas); err != nil {
		return false, fmt.Errorf("update word counts for %s: %w", doc.Path, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit write %s: %w", doc.Path, err)
	}
	return true, nil
}

// applyWordDeltas upserts additive word-count changes and drops entries
// that reach zero.
func applyWordDeltas(ctx context.Context, tx *sql.Tx, deltas map[string]int) error {
	if len(deltas) == 0 {
		return nil
	}

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO word_counts (word, count) VALUES (?, ?)
		ON CONFLICT(word) DO UPDATE SET count = count + excluded.count`)
	if err != nil {
		return err
	}
	defer upsert.Close()

	for word, delta := range deltas {
		if _, err := upsert.ExecContext(ctx, word, delta); err != nil {
			return fmt.Errorf("word %q: %w", word, err)
		}
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM word_counts WHERE count <= 0`)
	return err
}

// Remove deletes a document record. Stale records are never removed
// automatically; this is the explicit path for it. The word-frequency
// table gives up the document's contribution in the same transaction.
func (s *Store) Remove(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var content sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT content FROM documents WHERE file_path = ?`, path).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("delete document %s: %w", path, err)
	}

	deltas := wordDeltas(content.String, "", s.stopWords)
	if err := applyWordDeltas(ctx, tx, deltas); err != nil {
		return fmt.Errorf("update word counts: %w", err)
	}

	return tx.Commit()
}

// Stats reports document totals by kind and the word table size.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	stats := &Stats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.Documents); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM word_counts`).Scan(&stats.Words); err != nil {
		return nil, fmt.Errorf("count words: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT file_type, COUNT(*) FROM documents GROUP BY file_type ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			return nil, err
		}
		stats.ByKind = append(stats.ByKind, kc)
	}
	return stats, rows.Err()
}

// TopWords returns the most frequent words, descending.
func (s *Store) TopWords(ctx context.Context, limit int) ([]WordCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT word, count FROM word_counts ORDER BY count DESC, word ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query word counts: %w", err)
	}
	defer rows.Close()

	var words []WordCount
	for rows.Next() {
		var wc WordCount
		if err := rows.Scan(&wc.Word, &wc.Count); err != nil {
			return nil, err
		}
		words = append(words, wc)
	}
	return words, rows.Err()
}

// RebuildWordCounts recomputes the word table from stored content.
// Recovery path for stores written before frequency tracking or after a
// corruption; normal writes keep counts incremental.
func (s *Store) RebuildWordCounts(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM word_counts`); err != nil {
		return fmt.Errorf("clear word counts: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT content FROM documents`)
	if err != nil {
		return fmt.Errorf("read documents: %w", err)
	}

	totals := make(map[string]int)
	for rows.Next() {
		var content sql.NullString
		if err := rows.Scan(&content); err != nil {
			rows.Close()
			return err
		}
		for w, n := range CountWords(content.String, s.stopWords) {
			totals[w] += n
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}

	if err := applyWordDeltas(ctx, tx, totals); err != nil {
		return fmt.Errorf("write word counts: %w", err)
	}

	slog.Info("word_counts_rebuilt",
		slog.String("store", s.path),
		slog.Int("words", len(totals)))
	return tx.Commit()
}

// Compact reclaims disk space. Out-of-band operation; never called during
// an indexing run.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	// VACUUM cannot run inside WAL without a checkpoint first.
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Reader = (*Store)(nil)
