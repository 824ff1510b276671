package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docufind/docufind/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var lines int
	var logFile string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log entries",
		Long: `Print the last lines of the log file. Commands log to a rotating
file rather than the console, so this is where indexing warnings and
per-file failures end up.

Examples:
  docufind logs
  docufind logs -n 200
  docufind logs --file /tmp/docufind.log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			explicit := logFile
			if explicit == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				explicit = filepath.Join(cfg.LogDir(), "docufind.log")
			}
			path, err := logging.FindLogFile(explicit)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read log file: %w", err)
			}
			for _, line := range tailLines(string(data), lines) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&logFile, "file", "", "Log file path (default: the configured log location)")

	return cmd
}

// tailLines returns the last n non-empty-terminated lines of content.
func tailLines(content string, n int) []string {
	content = strings.TrimRight(content, "\n")
	if content == "" || n <= 0 {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
