package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDoc(path, content string, modified time.Time) *Document {
	return &Document{
		Path:     path,
		Name:     filepath.Base(path),
		Folder:   "reports 2024",
		Kind:     "Text File",
		Size:     int64(len(content)),
		Modified: modified,
		Content:  content,
	}
}

func wordCountMap(t *testing.T, s *Store) map[string]int {
	t.Helper()
	words, err := s.TopWords(context.Background(), 1000)
	require.NoError(t, err)
	m := make(map[string]int, len(words))
	for _, wc := range words {
		m[wc.Word] = wc.Count
	}
	return m
}

func TestWriteAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mod := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	written, err := s.Write(ctx, testDoc("/data/alpha.txt", "quarterly revenue grew strongly", mod))
	require.NoError(t, err)
	assert.True(t, written)

	hits, err := s.Search(ctx, Query{Text: "revenue", Scope: ScopeAll})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/data/alpha.txt", hits[0].Path)
	assert.Equal(t, "alpha.txt", hits[0].Name)
	assert.Contains(t, hits[0].Snippet, "<mark>")
	assert.True(t, hits[0].Modified.Equal(mod), "modified timestamp must round-trip")
}

func TestWriteIdempotence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mod := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := testDoc("/data/alpha.txt", "stable content here", mod)

	written, err := s.Write(ctx, doc)
	require.NoError(t, err)
	require.True(t, written)

	before := wordCountMap(t, s)
	statsBefore, err := s.Stats(ctx)
	require.NoError(t, err)

	// Same path, same modified_at: must be a no-op.
	written, err = s.Write(ctx, testDoc("/data/alpha.txt", "stable content here", mod))
	require.NoError(t, err)
	assert.False(t, written)

	assert.Equal(t, before, wordCountMap(t, s))
	statsAfter, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, statsBefore, statsAfter)
}

func TestWriteUpdateOnChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	written, err := s.Write(ctx, testDoc("/data/alpha.txt", "oldword oldword", t0))
	require.NoError(t, err)
	require.True(t, written)

	written, err = s.Write(ctx, testDoc("/data/alpha.txt", "newword", t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, written)

	counts := wordCountMap(t, s)
	assert.Equal(t, 1, counts["newword"])
	assert.NotContains(t, counts, "oldword", "words sourced only from the old content must be gone")

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents, "update must replace, not duplicate")

	hits, err := s.Search(ctx, Query{Text: "oldword"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFTSIndexConsistencyAfterUpdateAndRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t0 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	_, err := s.Write(ctx, testDoc("/p/x.txt", "obsolete wording here", t0))
	require.NoError(t, err)
	_, err = s.Write(ctx, testDoc("/p/x.txt", "fresh phrasing now", t0.Add(time.Minute)))
	require.NoError(t, err)

	hits, err := s.Search(ctx, Query{Text: "obsolete"})
	require.NoError(t, err)
	assert.Empty(t, hits, "terms present only in the replaced content must stop matching")

	hits, err = s.Search(ctx, Query{Text: "fresh"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	require.NoError(t, s.Remove(ctx, "/p/x.txt"))

	// FTS5 checks the index against the content table; a sync trigger
	// that leaves stale terms behind makes this statement fail.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents_fts(documents_fts, rank) VALUES ('integrity-check', 1)`)
	assert.NoError(t, err)
}

func TestStopWordFilter(t *testing.T) {
	s, err := Open("", WithStopWords([]string{"the", "on", "a"}))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.Write(ctx, testDoc("/data/cat.txt", "the cat sat on a mat", time.Now()))
	require.NoError(t, err)

	counts := wordCountMap(t, s)
	assert.Equal(t, map[string]int{"cat": 1, "sat": 1, "mat": 1}, counts)
}

func TestWordCountsAcrossDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Write(ctx, testDoc("/d/one.txt", "axis appears once", time.Now()))
	require.NoError(t, err)
	_, err = s.Write(ctx, testDoc("/d/two.txt", "axis axis axis appears", time.Now()))
	require.NoError(t, err)

	counts := wordCountMap(t, s)
	assert.Equal(t, 4, counts["axis"])
	assert.Equal(t, 2, counts["appears"])
}

func TestRemoveReleasesWordCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Write(ctx, testDoc("/d/one.txt", "unique wording", time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, "/d/one.txt"))

	assert.Empty(t, wordCountMap(t, s))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)

	// Removing a missing document is not an error.
	assert.NoError(t, s.Remove(ctx, "/d/never-existed.txt"))
}

func TestSearchScopes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &Document{
		Path:     "/data/budget.txt",
		Name:     "budget.txt",
		Folder:   "finance 2024",
		Kind:     "Text File",
		Modified: time.Now(),
		Content:  "totals and projections",
	}
	_, err := s.Write(ctx, doc)
	require.NoError(t, err)

	hits, err := s.Search(ctx, Query{Text: "budget", Scope: ScopeName})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Match in filename: budget.txt", hits[0].Snippet)

	hits, err = s.Search(ctx, Query{Text: "finance", Scope: ScopeFolder})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = s.Search(ctx, Query{Text: "budget", Scope: ScopeContent})
	require.NoError(t, err)
	assert.Empty(t, hits, "content scope must not match the file name")

	hits, err = s.Search(ctx, Query{Text: "projections", Scope: ScopeContent})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	small := testDoc("/d/small.txt", "shared keyword", old)
	small.Size = 10
	large := testDoc("/d/large.txt", "shared keyword", recent)
	large.Size = 10000
	large.Kind = "PDF Document"

	_, err := s.Write(ctx, small)
	require.NoError(t, err)
	_, err = s.Write(ctx, large)
	require.NoError(t, err)

	hits, err := s.Search(ctx, Query{Text: "keyword", Kinds: []string{"PDF Document"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/d/large.txt", hits[0].Path)

	hits, err = s.Search(ctx, Query{Text: "keyword", ModifiedFrom: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/d/large.txt", hits[0].Path)

	hits, err = s.Search(ctx, Query{Text: "keyword", MaxSize: 100})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/d/small.txt", hits[0].Path)

	hits, err = s.Search(ctx, Query{Text: "keyword", MinSize: 100, MaxSize: 100000})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/d/large.txt", hits[0].Path)
}

func TestSearchDateFilterSecondBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Zero nanoseconds on purpose: mixed fractional precision between
	// stored values and bounds is where string-compared dates go wrong.
	mod := time.Date(2026, 1, 2, 23, 59, 59, 0, time.UTC)
	_, err := s.Write(ctx, testDoc("/d/eod.txt", "boundary keyword", mod))
	require.NoError(t, err)

	endOfDay := time.Date(2026, 1, 2, 23, 59, 59, 999999999, time.UTC)
	hits, err := s.Search(ctx, Query{Text: "keyword", ModifiedTo: endOfDay})
	require.NoError(t, err)
	assert.Len(t, hits, 1, "mtime earlier in the same second is inside the bound")

	hits, err = s.Search(ctx, Query{Text: "keyword", ModifiedFrom: mod})
	require.NoError(t, err)
	assert.Len(t, hits, 1, "bounds are inclusive")

	hits, err = s.Search(ctx, Query{Text: "keyword", ModifiedTo: mod.Add(-time.Nanosecond)})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchPrefixAndMultiWord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Write(ctx, testDoc("/d/a.txt", "distributed searching infrastructure", time.Now()))
	require.NoError(t, err)
	_, err = s.Write(ctx, testDoc("/d/b.txt", "searching elsewhere", time.Now()))
	require.NoError(t, err)

	// Prefix match.
	hits, err := s.Search(ctx, Query{Text: "distrib"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	// Multi-word is AND semantics.
	hits, err = s.Search(ctx, Query{Text: "distributed searching"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/d/a.txt", hits[0].Path)
}

func TestSearchEmptyQuery(t *testing.T) {
	s := newTestStore(t)
	hits, err := s.Search(context.Background(), Query{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBuildMatchExpr(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		scope Scope
		want  string
	}{
		{name: "single word", text: "cat", scope: ScopeAll, want: `"cat"*`},
		{name: "multi word", text: "big cat", scope: ScopeAll, want: `("big"* AND "cat"*)`},
		{name: "name scope", text: "report", scope: ScopeName, want: `file_name: "report"*`},
		{name: "folder scope", text: "a b", scope: ScopeFolder, want: `(folder_path: "a"* AND folder_path: "b"*)`},
		{name: "embedded quote escaped", text: `say"hi`, scope: ScopeAll, want: `"say""hi"*`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildMatchExpr(tt.text, tt.scope))
		})
	}
}

func TestRebuildWordCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Write(ctx, testDoc("/d/a.txt", "gadget gadget widget", time.Now()))
	require.NoError(t, err)
	_, err = s.Write(ctx, testDoc("/d/b.txt", "widget", time.Now()))
	require.NoError(t, err)

	want := wordCountMap(t, s)
	require.NoError(t, s.RebuildWordCounts(ctx))
	assert.Equal(t, want, wordCountMap(t, s), "rebuild must reproduce incremental counts")
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Write(ctx, testDoc("/d/a.txt", "durable content", time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()

	hits, err := ro.Search(ctx, Query{Text: "durable"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = ro.Write(ctx, testDoc("/d/b.txt", "nope", time.Now()))
	assert.Error(t, err, "read-only handle must refuse writes")
}

func TestClosedStore(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Write(context.Background(), testDoc("/d/a.txt", "x", time.Now()))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Search(context.Background(), Query{Text: "x"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCompact(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "store.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, err = s.Write(ctx, testDoc("/d/a.txt", "some content to checkpoint", time.Now()))
	require.NoError(t, err)
	assert.NoError(t, s.Compact(ctx))
}
