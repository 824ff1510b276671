package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/docufind/docufind/internal/federation"
	"github.com/docufind/docufind/internal/output"
	"github.com/docufind/docufind/internal/store"
	"github.com/docufind/docufind/internal/telemetry"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	scope    string
	sort     string
	page     int
	pageSize int
	kinds    []string
	after    string
	before   string
	minSize  string
	maxSize  string
	stores   []string
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search every registered collection",
		Long: `Search all registered collections at once and return one merged,
ordered result list. Words match as prefixes: "budg" finds "budget".

Examples:
  docufind search "quarterly revenue"
  docufind search invoice --scope name
  docufind search report --kind "PDF Document" --after 2026-01-01
  docufind search budget --sort modified --page 2
  docufind search meeting --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scope, "scope", "s", "all", "Where to match: all, name, folder, content")
	cmd.Flags().StringVar(&opts.sort, "sort", "", "Result order: relevance, modified, name, size")
	cmd.Flags().IntVarP(&opts.page, "page", "p", 1, "Result page (1-based)")
	cmd.Flags().IntVarP(&opts.pageSize, "page-size", "n", 0, "Results per page")
	cmd.Flags().StringSliceVarP(&opts.kinds, "kind", "k", nil, "Restrict to document kinds (repeatable)")
	cmd.Flags().StringVar(&opts.after, "after", "", "Only documents modified on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.before, "before", "", "Only documents modified on or before this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.minSize, "min-size", "", "Minimum file size (e.g. 10KB)")
	cmd.Flags().StringVar(&opts.maxSize, "max-size", "", "Maximum file size (e.g. 5MB)")
	cmd.Flags().StringSliceVar(&opts.stores, "store", nil, "Restrict to specific store IDs (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}

	req, err := buildRequest(query, cfg.Search.PageSize, cfg.Search.DefaultSort, opts)
	if err != nil {
		return err
	}

	eng, err := federation.NewEngine(reg, cfg.Search.StoreCacheSize, slog.Default())
	if err != nil {
		return err
	}
	defer eng.Close()

	collector := openCollector(cfg.DataDir())
	defer func() { _ = collector.Close() }()

	start := time.Now()
	resp, err := eng.Search(ctx, *req)
	if err != nil {
		return err
	}
	collector.Record(telemetry.QueryEvent{
		Query:       query,
		Scope:       req.Query.Scope,
		ResultCount: resp.TotalCount,
		Latency:     time.Since(start),
		Timestamp:   time.Now(),
	})
	snap := collector.Snapshot()
	slog.Debug("query_recorded",
		slog.String("scope", string(req.Query.Scope)),
		slog.Int64("session_queries", snap.TotalQueries),
		slog.Float64("zero_result_pct", snap.ZeroResultPercentage()))

	if opts.format == "json" {
		return printJSON(cmd, resp)
	}
	printText(out, query, resp)
	return nil
}

// buildRequest converts CLI flags into a federated search request.
func buildRequest(query string, defaultPageSize int, defaultSort string, opts searchOptions) (*federation.Request, error) {
	scope := store.Scope(strings.ToLower(opts.scope))
	switch scope {
	case store.ScopeAll, store.ScopeName, store.ScopeFolder, store.ScopeContent:
	default:
		return nil, fmt.Errorf("unknown scope %q (use: all, name, folder, content)", opts.scope)
	}

	sortFlag := opts.sort
	if sortFlag == "" {
		sortFlag = defaultSort
	}
	order, ok := federation.ParseSortOrder(sortFlag)
	if !ok {
		return nil, fmt.Errorf("unknown sort %q (use: relevance, modified, name, size)", sortFlag)
	}

	q := store.Query{Text: query, Scope: scope, Kinds: opts.kinds}
	var err error
	if q.ModifiedFrom, err = parseDateFlag(opts.after, false); err != nil {
		return nil, err
	}
	if q.ModifiedTo, err = parseDateFlag(opts.before, true); err != nil {
		return nil, err
	}
	if q.MinSize, err = parseSizeFlag(opts.minSize); err != nil {
		return nil, err
	}
	if q.MaxSize, err = parseSizeFlag(opts.maxSize); err != nil {
		return nil, err
	}

	pageSize := opts.pageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}

	return &federation.Request{
		Query:    q,
		Sort:     order,
		Page:     opts.page,
		PageSize: pageSize,
		StoreIDs: opts.stores,
	}, nil
}

// parseDateFlag parses a YYYY-MM-DD flag. endOfDay pushes the bound to
// the last nanosecond of that day so --before is inclusive.
func parseDateFlag(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

func parseSizeFlag(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}

// openCollector opens query metrics persistence; metrics degrade to
// memory-only when the store cannot be opened.
func openCollector(dataDir string) *telemetry.Collector {
	ms, err := telemetry.OpenMetricsStore(dataDir)
	if err != nil {
		slog.Warn("metrics_store_unavailable", slog.String("error", err.Error()))
		return telemetry.NewCollectorWithConfig(nil, telemetry.CollectorConfig{FlushInterval: 0})
	}
	return telemetry.NewCollectorWithConfig(ms, telemetry.CollectorConfig{FlushInterval: 0})
}

func printText(out *output.Writer, query string, resp *federation.Response) {
	for id, serr := range resp.StoreErrors {
		out.Warningf("collection %s unavailable: %v", id, serr)
	}

	if resp.TotalCount == 0 {
		out.Statusf("🔍", "No results found for %q", query)
		return
	}

	out.Statusf("🔍", "Found %d results for %q (page %d of %d):",
		resp.TotalCount, query, resp.Page, resp.TotalPages)
	out.Newline()

	rank := (resp.Page-1)*resp.PageSize + 1
	for i, hit := range resp.Hits {
		out.Statusf("", "%d. %s", rank+i, hit.Path)
		out.Statusf("", "   %s · %s · modified %s",
			hit.Kind, humanize.IBytes(uint64(hit.Size)), humanize.Time(hit.Modified))
		if snippet := plainSnippet(hit.Snippet); snippet != "" {
			out.Status("", "   "+snippet)
		}
		out.Newline()
	}
}

func printJSON(cmd *cobra.Command, resp *federation.Response) error {
	type jsonHit struct {
		Path     string    `json:"path"`
		Name     string    `json:"name"`
		Kind     string    `json:"kind"`
		Size     int64     `json:"size"`
		Modified time.Time `json:"modified"`
		Snippet  string    `json:"snippet"`
		StoreID  string    `json:"store_id"`
	}
	type jsonResponse struct {
		Hits        []jsonHit         `json:"hits"`
		TotalCount  int               `json:"total_count"`
		TotalPages  int               `json:"total_pages"`
		Page        int               `json:"page"`
		PageSize    int               `json:"page_size"`
		StoreErrors map[string]string `json:"store_errors,omitempty"`
	}

	jr := jsonResponse{
		Hits:       make([]jsonHit, 0, len(resp.Hits)),
		TotalCount: resp.TotalCount,
		TotalPages: resp.TotalPages,
		Page:       resp.Page,
		PageSize:   resp.PageSize,
	}
	for _, hit := range resp.Hits {
		jr.Hits = append(jr.Hits, jsonHit{
			Path:     hit.Path,
			Name:     hit.Name,
			Kind:     hit.Kind,
			Size:     hit.Size,
			Modified: hit.Modified,
			Snippet:  hit.Snippet,
			StoreID:  hit.StoreID,
		})
	}
	if len(resp.StoreErrors) > 0 {
		jr.StoreErrors = make(map[string]string, len(resp.StoreErrors))
		for id, serr := range resp.StoreErrors {
			jr.StoreErrors[id] = serr.Error()
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(jr)
}

// plainSnippet strips the match markers for terminal display.
func plainSnippet(s string) string {
	s = strings.ReplaceAll(s, "<mark>", "")
	s = strings.ReplaceAll(s, "</mark>", "")
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
