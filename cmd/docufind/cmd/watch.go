package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docufind/docufind/internal/extract"
	"github.com/docufind/docufind/internal/indexer"
	"github.com/docufind/docufind/internal/output"
	"github.com/docufind/docufind/internal/store"
	"github.com/docufind/docufind/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var quiet time.Duration

	cmd := &cobra.Command{
		Use:   "watch <folder>",
		Short: "Keep a collection's index current as files change",
		Long: `Index the folder, then keep watching it. Created and modified
documents are re-extracted and written to the collection's store,
removed documents are dropped from it. Runs until interrupted.

Examples:
  docufind watch ~/Documents/reports
  docufind watch --quiet 2s ~/Documents/reports`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, args[0], quiet)
		},
	}

	cmd.Flags().DurationVar(&quiet, "quiet", 400*time.Millisecond, "How long a file must stay unchanged before it is reindexed")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, folder string, quiet time.Duration) error {
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

	entry, err := reg.ResolveOrCreate(folder)
	if err != nil {
		return fmt.Errorf("register %s: %w", folder, err)
	}
	st, err := store.Open(entry.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractors := extract.NewRegistry()
	orch := indexer.New(entry.Root, st, extractors, slog.Default())
	runOpts := indexer.Options{
		Parallel:    cfg.ParallelEnabled(),
		MaxFileSize: maxFileSize,
	}

	summary, err := orch.Run(ctx, runOpts)
	if err != nil {
		return err
	}
	out.Successf("Indexed %d documents, watching %s", summary.Indexed, entry.Root)

	w, err := watch.New(entry.Root, watch.Options{Quiet: quiet}, slog.Default())
	if err != nil {
		return err
	}

	watchDone := make(chan error, 1)
	go func() { watchDone <- w.Run(ctx) }()

	for {
		select {
		case <-ctx.Done():
			<-watchDone
			out.Newline()
			out.Status("👋", "Stopped watching")
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				err := <-watchDone
				if err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}
			applyBatch(ctx, out, st, orch, runOpts, batch)
		}
	}
}

// applyBatch folds one debounced batch into the store. Writes go
// through a normal index pass over the folder, which rewrites only
// documents whose modification time changed, so a burst of writes
// costs one sweep rather than one pass per event.
func applyBatch(ctx context.Context, out *output.Writer, st *store.Store, orch *indexer.Orchestrator, opts indexer.Options, batch []watch.Event) {
	var removed int
	var sweep bool
	for _, ev := range batch {
		switch ev.Op {
		case watch.OpRemove:
			if err := st.Remove(ctx, ev.Path); err != nil {
				slog.Warn("remove from index failed", "path", ev.Path, "error", err)
				continue
			}
			removed++
		case watch.OpWrite:
			sweep = true
		}
	}

	if sweep {
		summary, err := orch.Run(ctx, opts)
		if err != nil {
			out.Warningf("reindex failed: %v", err)
			return
		}
		if summary.Indexed > 0 || removed > 0 {
			out.Statusf("🔄", "Indexed %d documents, removed %d", summary.Indexed, removed)
		}
		return
	}
	if removed > 0 {
		out.Statusf("🔄", "Removed %d", removed)
	}
}
