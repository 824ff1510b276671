package cmd

import (
	"fmt"
	"os"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/docufind/docufind/internal/output"
	"github.com/docufind/docufind/internal/store"
)

func newCompactCmd() *cobra.Command {
	var rebuildWords bool
	var stores []string

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Reclaim disk space in the collection stores",
		Long: `Checkpoint and vacuum each collection's store, reclaiming space left
by removed or rewritten documents. With --rebuild-words the word
frequency table is recounted from the stored documents first.

Examples:
  docufind compact
  docufind compact --rebuild-words
  docufind compact --store 1a2b3c4d5e6f7a8b`,
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
			entries, err := reg.List()
			if err != nil {
				return err
			}

			var compacted, failed int
			var reclaimed int64
			for _, entry := range entries {
				if len(stores) > 0 && !slices.Contains(stores, entry.StoreID) {
					continue
				}

				before := storeSize(entry.StorePath)
				st, serr := store.Open(entry.StorePath)
				if serr != nil {
					failed++
					out.Warningf("%s: %v", entry.Root, serr)
					continue
				}

				if rebuildWords {
					if rerr := st.RebuildWordCounts(cmd.Context()); rerr != nil {
						failed++
						out.Warningf("%s: rebuild word counts: %v", entry.Root, rerr)
						_ = st.Close()
						continue
					}
				}
				cerr := st.Compact(cmd.Context())
				_ = st.Close()
				if cerr != nil {
					failed++
					out.Warningf("%s: %v", entry.Root, cerr)
					continue
				}

				compacted++
				if delta := before - storeSize(entry.StorePath); delta > 0 {
					reclaimed += delta
				}
			}

			out.Successf("Compacted %d stores, reclaimed %s",
				compacted, humanize.IBytes(uint64(reclaimed)))
			if failed > 0 {
				return fmt.Errorf("%d stores could not be compacted", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuildWords, "rebuild-words", false, "Recount word frequencies before compacting")
	cmd.Flags().StringSliceVar(&stores, "store", nil, "Restrict to specific store IDs (repeatable)")

	return cmd
}

func storeSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
