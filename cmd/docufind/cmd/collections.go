package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/docufind/docufind/internal/output"
)

func newCollectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"col"},
		Short:   "Manage registered collections",
		Long: `List, add, remove, and link document collections. Each collection is
a folder with its own search store; removing a collection only forgets
the folder-to-store mapping, the store file stays on disk.`,
	}

	cmd.AddCommand(newCollectionsListCmd())
	cmd.AddCommand(newCollectionsAddCmd())
	cmd.AddCommand(newCollectionsRemoveCmd())
	cmd.AddCommand(newCollectionsLinkCmd())

	return cmd
}

func newCollectionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered collections",
		Args:  cobra.NoArgs,
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

			if len(entries) == 0 {
				out.Status("📂", "No collections registered. Run 'docufind index <folder>' to add one.")
				return nil
			}

			out.Statusf("📂", "%d collections:", len(entries))
			out.Newline()
			for _, entry := range entries {
				size := "missing store"
				if info, serr := os.Stat(entry.StorePath); serr == nil {
					size = humanize.IBytes(uint64(info.Size()))
				}
				out.Statusf("", "%s  %s (%s)", entry.StoreID, entry.Root, size)
			}
			return nil
		},
	}
}

func newCollectionsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <folder>",
		Short: "Register a folder without indexing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := openRegistry(cfg)
			if err != nil {
				return err
			}
			entry, err := reg.ResolveOrCreate(args[0])
			if err != nil {
				return err
			}

			out.Successf("Registered %s as %s", entry.Root, entry.StoreID)
			out.Statusf("", "Index it with: docufind index %s", entry.Root)
			return nil
		},
	}
}

func newCollectionsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <folder>",
		Short: "Forget a collection's registration",
		Long: `Remove the folder from the registry. The collection's store file is
kept; re-adding the same folder later reuses it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := openRegistry(cfg)
			if err != nil {
				return err
			}
			if err := reg.Remove(args[0]); err != nil {
				return err
			}

			out.Successf("Removed %s from the registry", args[0])
			return nil
		},
	}
}

func newCollectionsLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <folder> <store-id>",
		Short: "Point a folder at an existing store",
		Long: `Register a folder against an already existing store, for example
after a folder was moved. Both paths then share one search store.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := openRegistry(cfg)
			if err != nil {
				return err
			}
			entry, err := reg.Link(args[0], args[1])
			if err != nil {
				return fmt.Errorf("link %s to %s: %w", args[0], args[1], err)
			}

			out.Successf("Linked %s to store %s", entry.Root, entry.StoreID)
			return nil
		},
	}
}
