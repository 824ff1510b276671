// Package store provides the per-collection document store: SQLite with an
// FTS5 virtual table for ranked full-text search plus an incrementally
// maintained word-frequency table.
//
// Exactly one writable Store is opened per collection at a time; all other
// access goes through read-only handles. This single-writer discipline is
// structural, not lock-based: a writer handle is never shared across
// concurrent indexing runs.
package store

import (
	"context"
	"time"
)

// Document is one indexed file inside a store, keyed by absolute path.
type Document struct {
	Path     string    // Absolute path, unique within the store
	Name     string    // Base name for display
	Folder   string    // Folder path relative to the collection root, separators flattened to spaces
	Kind     string    // Display kind ("PDF Document", "CSV File", ...)
	Size     int64     // Size in bytes
	Modified time.Time // Source file mtime; drives the idempotence check
	Indexed  time.Time // When this record was last written
	Content  string    // Extracted plain text
}

// Scope selects which fields a query matches against.
type Scope string

const (
	ScopeAll     Scope = "all"
	ScopeName    Scope = "name"
	ScopeFolder  Scope = "folder"
	ScopeContent Scope = "content"
)

// Query is a store-level search request. Filters are applied inside the
// store; ranking comes from FTS5 bm25.
type Query struct {
	Text  string
	Scope Scope

	// Kinds restricts results to the given document kinds (empty = all).
	Kinds []string

	// ModifiedFrom/ModifiedTo bound the document mtime (zero = unbounded).
	ModifiedFrom time.Time
	ModifiedTo   time.Time

	// MinSize/MaxSize bound the document size in bytes (zero = unbounded).
	MinSize int64
	MaxSize int64

	// Limit caps the number of hits (0 = no limit). Federation leaves this
	// at 0 so the global sort sees every per-store match.
	Limit int
}

// Hit is one search result.
type Hit struct {
	Path     string
	Name     string
	Folder   string
	Kind     string
	Size     int64
	Modified time.Time
	Indexed  time.Time
	Snippet  string

	// Rank is the FTS5 bm25 rank; more negative means more relevant.
	Rank float64

	// StoreID identifies the store this hit came from. Set by the
	// federation engine, empty for direct store queries.
	StoreID string
}

// KindCount is a per-kind document tally.
type KindCount struct {
	Kind  string
	Count int
}

// Stats summarizes a store's contents.
type Stats struct {
	Documents int
	ByKind    []KindCount
	Words     int // distinct entries in the word-frequency table
}

// WordCount is one word-frequency entry.
type WordCount struct {
	Word  string
	Count int
}

// Reader is the read-only surface of a store, used by the federation
// engine and the stats command.
type Reader interface {
	Search(ctx context.Context, q Query) ([]Hit, error)
	Stats(ctx context.Context) (*Stats, error)
	TopWords(ctx context.Context, limit int) ([]WordCount, error)
	Close() error
}
