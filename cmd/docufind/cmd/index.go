package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/docufind/docufind/internal/extract"
	"github.com/docufind/docufind/internal/indexer"
	"github.com/docufind/docufind/internal/output"
	"github.com/docufind/docufind/internal/registry"
	"github.com/docufind/docufind/internal/scheduler"
	"github.com/docufind/docufind/internal/store"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	sequential bool
	workers    int
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index <folder>...",
		Short: "Register folders and index their documents",
		Long: `Register each folder as a collection (if not already registered) and
index every supported document in it. Re-running only rewrites files
whose modification time changed.

Multiple folders are indexed concurrently, each into its own store.

Examples:
  docufind index ~/Documents/reports
  docufind index ~/Documents/reports ~/Archive/contracts
  docufind index --workers 4 ~/Documents/reports`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.sequential, "sequential", false, "Disable parallel extraction")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Extraction workers per collection (0 = automatic)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, folders []string, opts indexOptions) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	maxFileSize, err := cfg.MaxFileSizeBytes()
	if err != nil {
		return err
	}

	// Register every folder up front so a bad path fails before any
	// indexing starts.
	entries := make(map[string]*registry.Entry, len(folders))
	roots := make([]string, 0, len(folders))
	for _, folder := range folders {
		entry, rerr := reg.ResolveOrCreate(folder)
		if rerr != nil {
			return fmt.Errorf("register %s: %w", folder, rerr)
		}
		if _, dup := entries[entry.Root]; dup {
			continue
		}
		entries[entry.Root] = entry
		roots = append(roots, entry.Root)
	}

	parallel := cfg.ParallelEnabled() && !opts.sequential
	workers := opts.workers
	if workers == 0 {
		workers = cfg.Indexing.Workers
	}

	extractors := extract.NewRegistry()
	showProgress := len(roots) == 1

	indexOne := func(ctx context.Context, root string, coreBudget int) (*indexer.Summary, error) {
		entry := entries[root]
		st, serr := store.Open(entry.StorePath)
		if serr != nil {
			return nil, fmt.Errorf("open store: %w", serr)
		}
		defer func() { _ = st.Close() }()

		runOpts := indexer.Options{
			Parallel:    parallel,
			Workers:     workers,
			MaxFileSize: maxFileSize,
		}
		if runOpts.Workers == 0 && len(roots) > 1 {
			runOpts.Workers = coreBudget
		}
		if showProgress {
			runOpts.Progress = func(done, total int, message string) {
				out.Progress(done, total, message)
			}
		}

		o := indexer.New(root, st, extractors, slog.Default())
		return o.Run(ctx, runOpts)
	}

	start := time.Now()
	var total indexer.Summary
	var failed int
	for res := range scheduler.New(indexOne, slog.Default()).Run(ctx, roots) {
		if res.Err != nil {
			failed++
			out.Errorf("%s: %v", res.Root, res.Err)
			continue
		}
		total.Indexed += res.Summary.Indexed
		total.Errored += res.Summary.Errored
		total.Skipped += res.Summary.Skipped
		out.Successf("%s: %d indexed, %d errors, %d skipped",
			res.Root, res.Summary.Indexed, res.Summary.Errored, res.Summary.Skipped)
	}

	out.Newline()
	out.Statusf("📚", "Indexed %d documents across %d collections in %s",
		total.Indexed, len(roots)-failed, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d of %d collections failed", failed, len(roots))
	}
	return nil
}
