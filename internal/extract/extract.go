// Package extract turns document files into plain text.
// Every extractor is stateless and safe for concurrent use; the indexer
// worker pool calls into a single shared Registry from many goroutines.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// FailureKind classifies extraction failures for error reporting.
type FailureKind string

const (
	FailureOpen     FailureKind = "open"
	FailureParse    FailureKind = "parse"
	FailureEncoding FailureKind = "encoding"
)

// Error is the typed failure returned by extractors.
type Error struct {
	Path  string
	Kind  FailureKind
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %s failure: %v", e.Path, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// newError wraps cause as a typed extraction failure.
func newError(path string, kind FailureKind, cause error) *Error {
	return &Error{Path: path, Kind: kind, Cause: cause}
}

// Extractor extracts plain text from one family of document formats.
type Extractor interface {
	// Extensions returns the lowercase file extensions this extractor handles.
	Extensions() []string

	// Kind returns the human-readable document kind for display and filtering.
	Kind() string

	// Extract returns the plain text content of the file at path.
	// Failures are returned as *Error.
	Extract(ctx context.Context, path string) (string, error)
}

// Registry routes files to extractors by extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry creates a registry with all built-in extractors registered:
// PDF, DOCX, XLSX, CSV, and plain text/markdown.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	r.Register(&PDFExtractor{})
	r.Register(&DocxExtractor{})
	r.Register(&XlsxExtractor{})
	r.Register(&CSVExtractor{})
	r.Register(&TextExtractor{})
	return r
}

// Register adds an extractor for all of its extensions.
// Later registrations win, which lets callers override built-ins.
func (r *Registry) Register(e Extractor) {
	for _, ext := range e.Extensions() {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// Supports reports whether files with the given path have an extractor.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[normalizeExt(path)]
	return ok
}

// KindFor returns the document kind label for the given path.
func (r *Registry) KindFor(path string) (string, bool) {
	e, ok := r.byExt[normalizeExt(path)]
	if !ok {
		return "", false
	}
	return e.Kind(), true
}

// Extract extracts text from the file at path.
// Returns *Error when the file is supported but cannot be read, and a
// plain error when no extractor is registered for its extension.
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	e, ok := r.byExt[normalizeExt(path)]
	if !ok {
		return "", fmt.Errorf("no extractor for %q", filepath.Ext(path))
	}
	return e.Extract(ctx, path)
}

func normalizeExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
