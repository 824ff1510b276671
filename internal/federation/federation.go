// Package federation answers queries that span every registered
// collection: it fans the query out to each collection's store, merges
// the per-store hits into one globally ordered list, and paginates the
// result. A failing store degrades that collection's results, never the
// whole query.
package federation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/docufind/docufind/internal/registry"
	"github.com/docufind/docufind/internal/store"
)

// DefaultPageSize is used when a request leaves PageSize unset.
const DefaultPageSize = 10

// defaultCacheSize bounds how many read-only store handles stay open
// between queries.
const defaultCacheSize = 32

// Request is one federated search.
type Request struct {
	Query store.Query
	Sort  SortOrder

	// Page is 1-based; values below 1 are treated as 1.
	Page     int
	PageSize int

	// StoreIDs restricts the search to the given collections.
	// Empty means every registered collection.
	StoreIDs []string
}

// Response is the merged, ordered, paginated result of a Request.
type Response struct {
	Hits       []store.Hit
	TotalCount int
	TotalPages int
	Page       int
	PageSize   int

	// StoreErrors maps a collection's store ID to its failure. Hits from
	// the remaining collections are still present and correctly ordered.
	StoreErrors map[string]error
}

// Engine executes federated queries over the source registry's stores.
type Engine struct {
	reg *registry.Registry
	log *slog.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, *store.Store]
}

// NewEngine creates an engine over the given registry. cacheSize bounds
// the open read-only handles; 0 selects the default. An evicted handle is
// closed immediately, so a query racing the eviction reports that one
// store as failed rather than blocking.
func NewEngine(reg *registry.Registry, cacheSize int, log *slog.Logger) (*Engine, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	if log == nil {
		log = slog.Default()
	}
	cache, err := lru.NewWithEvict[string, *store.Store](cacheSize, func(id string, st *store.Store) {
		if cerr := st.Close(); cerr != nil {
			log.Warn("store_handle_close_failed", slog.String("store_id", id), slog.String("error", cerr.Error()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create store handle cache: %w", err)
	}
	return &Engine{reg: reg, log: log, cache: cache}, nil
}

// Close releases every cached store handle.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Purge()
}

// Search runs the request against every selected collection and returns
// one merged page.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	entries, err := e.selectEntries(req.StoreIDs)
	if err != nil {
		return nil, err
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var (
		hitsMu   sync.Mutex
		all      []store.Hit
		failures = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, entry := range entries {
		g.Go(func() error {
			hits, serr := e.searchOne(gctx, entry, req.Query)
			hitsMu.Lock()
			defer hitsMu.Unlock()
			if serr != nil {
				failures[entry.StoreID] = serr
				e.log.Warn("federated_store_query_failed",
					slog.String("store_id", entry.StoreID),
					slog.String("root", entry.Root),
					slog.String("error", serr.Error()))
				return nil
			}
			all = append(all, hits...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sortHits(all, req.Sort)

	total := len(all)
	resp := &Response{
		TotalCount:  total,
		TotalPages:  (total + pageSize - 1) / pageSize,
		Page:        page,
		PageSize:    pageSize,
		StoreErrors: failures,
	}
	start := (page - 1) * pageSize
	if start < total {
		end := start + pageSize
		if end > total {
			end = total
		}
		resp.Hits = all[start:end]
	}
	return resp, nil
}

// searchOne queries a single collection, tagging each hit with its store
// ID. A panic inside a store driver is confined to that store.
func (e *Engine) searchOne(ctx context.Context, entry *registry.Entry, q store.Query) (hits []store.Hit, err error) {
	defer func() {
		if r := recover(); r != nil {
			hits, err = nil, fmt.Errorf("store %s crashed: %v", entry.StoreID, r)
		}
	}()

	rd, err := e.reader(entry)
	if err != nil {
		return nil, err
	}
	hits, err = rd.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].StoreID = entry.StoreID
	}
	return hits, nil
}

// Stats aggregates document, kind, and word counts across the selected
// collections. Per-store failures are returned alongside the partial
// totals.
func (e *Engine) Stats(ctx context.Context, storeIDs []string) (*store.Stats, map[string]error, error) {
	entries, err := e.selectEntries(storeIDs)
	if err != nil {
		return nil, nil, err
	}

	total := &store.Stats{}
	byKind := make(map[string]int)
	failures := make(map[string]error)
	for _, entry := range entries {
		rd, rerr := e.reader(entry)
		if rerr != nil {
			failures[entry.StoreID] = rerr
			continue
		}
		st, serr := rd.Stats(ctx)
		if serr != nil {
			failures[entry.StoreID] = serr
			continue
		}
		total.Documents += st.Documents
		total.Words += st.Words
		for _, kc := range st.ByKind {
			byKind[kc.Kind] += kc.Count
		}
	}
	total.ByKind = sortedKindCounts(byKind)
	return total, failures, nil
}

// TopWords merges per-store word frequencies and returns the n most
// frequent words overall.
func (e *Engine) TopWords(ctx context.Context, storeIDs []string, n int) ([]store.WordCount, map[string]error, error) {
	entries, err := e.selectEntries(storeIDs)
	if err != nil {
		return nil, nil, err
	}

	// Over-fetch per store so a word that is moderately frequent in every
	// collection is not cut before the merge.
	perStore := n * 4
	if perStore < 100 {
		perStore = 100
	}

	counts := make(map[string]int)
	failures := make(map[string]error)
	for _, entry := range entries {
		rd, rerr := e.reader(entry)
		if rerr != nil {
			failures[entry.StoreID] = rerr
			continue
		}
		words, werr := rd.TopWords(ctx, perStore)
		if werr != nil {
			failures[entry.StoreID] = werr
			continue
		}
		for _, wc := range words {
			counts[wc.Word] += wc.Count
		}
	}
	return topN(counts, n), failures, nil
}

// selectEntries resolves the requested store IDs against the registry.
// An unknown ID is a request error, not a degraded store.
func (e *Engine) selectEntries(storeIDs []string) ([]*registry.Entry, error) {
	entries, err := e.reg.List()
	if err != nil {
		return nil, fmt.Errorf("list registered collections: %w", err)
	}
	if len(storeIDs) == 0 {
		return entries, nil
	}
	byID := make(map[string]*registry.Entry, len(entries))
	for _, entry := range entries {
		byID[entry.StoreID] = entry
	}
	selected := make([]*registry.Entry, 0, len(storeIDs))
	for _, id := range storeIDs {
		entry, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", registry.ErrUnknownStore, id)
		}
		selected = append(selected, entry)
	}
	return selected, nil
}

// reader returns a cached read-only handle for the entry's store,
// opening and caching one on miss.
func (e *Engine) reader(entry *registry.Entry) (store.Reader, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.cache.Get(entry.StoreID); ok {
		return st, nil
	}
	st, err := store.OpenReadOnly(entry.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store for %s: %w", entry.Root, err)
	}
	e.cache.Add(entry.StoreID, st)
	return st, nil
}
