package cmd

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/docufind/docufind/internal/config"
	"github.com/docufind/docufind/internal/federation"
	"github.com/docufind/docufind/internal/output"
	"github.com/docufind/docufind/internal/store"
	"github.com/docufind/docufind/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var topWords int
	var stores []string
	var showQueries bool
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate index statistics",
		Long: `Show document counts by kind and the most frequent content words
across the selected collections. With --queries, also show query
telemetry: volume by scope, latency distribution, top query terms,
and recent queries that found nothing.

Examples:
  docufind stats
  docufind stats --words 25
  docufind stats --store 1a2b3c4d5e6f7a8b
  docufind stats --queries --days 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := openRegistry(cfg)
			if err != nil {
				return err
			}
			eng, err := federation.NewEngine(reg, cfg.Search.StoreCacheSize, slog.Default())
			if err != nil {
				return err
			}
			defer eng.Close()

			stats, failures, err := eng.Stats(cmd.Context(), stores)
			if err != nil {
				return err
			}
			for id, serr := range failures {
				out.Warningf("collection %s unavailable: %v", id, serr)
			}

			out.Statusf("📊", "%s documents, %s distinct words",
				humanize.Comma(int64(stats.Documents)), humanize.Comma(int64(stats.Words)))
			out.Newline()
			for _, kc := range stats.ByKind {
				out.Statusf("", "%-20s %s", kc.Kind, humanize.Comma(int64(kc.Count)))
			}

			if topWords > 0 {
				words, _, werr := eng.TopWords(cmd.Context(), stores, topWords)
				if werr != nil {
					return werr
				}
				out.Newline()
				out.Statusf("🔤", "Top %d words:", len(words))
				for _, wc := range words {
					out.Statusf("", "%-20s %s", wc.Word, humanize.Comma(int64(wc.Count)))
				}
			}

			if showQueries {
				return printQueryStats(out, cfg, days)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topWords, "words", "w", 10, "How many top words to show (0 = none)")
	cmd.Flags().StringSliceVar(&stores, "store", nil, "Restrict to specific store IDs (repeatable)")
	cmd.Flags().BoolVar(&showQueries, "queries", false, "Show query telemetry")
	cmd.Flags().IntVar(&days, "days", 30, "Telemetry window in days (with --queries)")

	return cmd
}

// latencyOrder fixes the display order of the histogram buckets.
var latencyOrder = []struct {
	bucket telemetry.LatencyBucket
	label  string
}{
	{telemetry.BucketP10, "< 10ms"},
	{telemetry.BucketP50, "10-50ms"},
	{telemetry.BucketP100, "50-100ms"},
	{telemetry.BucketP500, "100-500ms"},
	{telemetry.BucketP1000, ">= 500ms"},
}

// printQueryStats renders the persisted query telemetry for the window.
func printQueryStats(out *output.Writer, cfg *config.Config, days int) error {
	ms, err := telemetry.OpenMetricsStore(cfg.DataDir())
	if err != nil {
		return fmt.Errorf("open query metrics: %w", err)
	}
	defer func() { _ = ms.Close() }()

	to := time.Now()
	from := to.AddDate(0, 0, -days)
	scopes, err := ms.GetScopeCounts(from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("scope counts: %w", err)
	}
	latency, err := ms.GetLatencyCounts(from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("latency counts: %w", err)
	}
	terms, err := ms.GetTopTerms(10)
	if err != nil {
		return fmt.Errorf("top query terms: %w", err)
	}
	zero, err := ms.GetZeroResultQueries(10)
	if err != nil {
		return fmt.Errorf("zero-result queries: %w", err)
	}

	var total int64
	scopeNames := make([]string, 0, len(scopes))
	for scope, n := range scopes {
		total += n
		scopeNames = append(scopeNames, string(scope))
	}
	sort.Strings(scopeNames)

	out.Newline()
	out.Statusf("🔎", "Queries in the last %d days: %s", days, humanize.Comma(total))
	if total == 0 {
		return nil
	}
	for _, name := range scopeNames {
		out.Statusf("", "%-20s %s", "scope "+name, humanize.Comma(scopes[store.Scope(name)]))
	}

	out.Newline()
	out.Statusf("⏱️", "Latency:")
	for _, b := range latencyOrder {
		if n, ok := latency[b.bucket]; ok && n > 0 {
			out.Statusf("", "%-20s %s", b.label, humanize.Comma(n))
		}
	}

	if len(terms) > 0 {
		out.Newline()
		out.Statusf("🔤", "Top query terms:")
		for _, tc := range terms {
			out.Statusf("", "%-20s %s", tc.Term, humanize.Comma(tc.Count))
		}
	}
	if len(zero) > 0 {
		out.Newline()
		out.Statusf("🚫", "Recent queries with no results:")
		for _, q := range zero {
			out.Statusf("", "%s", q)
		}
	}
	return nil
}
