package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardex/internal/logging"
)

type logsOptions struct {
	lines    int
	follow   bool
	level    string
	criteria string
	pattern  string
	file     string
	noColor  bool
}

func newLogsCmd() *cobra.Command {
	o := &logsOptions{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View shardex log files",
		Long: `Show the last lines of the shardex log, optionally following new entries.
JSON lines are rendered as "time LEVEL [criteria] message key=value".`,
		Example: `  shardex logs -n 100
  shardex logs -f --level warn
  shardex logs --criteria 1 --grep commit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, o)
		},
	}

	cmd.Flags().IntVarP(&o.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&o.follow, "follow", "f", false, "Follow new entries")
	cmd.Flags().StringVar(&o.level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&o.criteria, "criteria", "", "Only entries for this shard")
	cmd.Flags().StringVar(&o.pattern, "grep", "", "Only lines matching this regular expression")
	cmd.Flags().StringVar(&o.file, "file", "", "Log file (default: ~/.shardex/logs/shardex.log)")
	cmd.Flags().BoolVar(&o.noColor, "no-color", false, "Disable colored levels")

	return cmd
}

func runLogs(cmd *cobra.Command, o *logsOptions) error {
	path, err := logging.FindLogFile(o.file)
	if err != nil {
		return err
	}

	filter := logging.Filter{Level: o.level, Criteria: o.criteria}
	if o.pattern != "" {
		re, err := regexp.Compile(o.pattern)
		if err != nil {
			return fmt.Errorf("invalid --grep pattern: %w", err)
		}
		filter.Pattern = re
	}

	color := !o.noColor && logging.IsTerminal(cmd.OutOrStdout())
	w := cmd.OutOrStdout()

	entries, err := logging.Tail(path, o.lines, filter)
	if err != nil {
		return err
	}
	for _, e := range entries {
		_, _ = fmt.Fprintln(w, logging.Format(e, color))
	}
	if !o.follow {
		return nil
	}

	ch := make(chan logging.Entry)
	errCh := make(chan error, 1)
	go func() {
		errCh <- logging.Follow(cmd.Context(), path, filter, ch)
		close(ch)
	}()
	for e := range ch {
		_, _ = fmt.Fprintln(w, logging.Format(e, color))
	}
	return <-errCh
}
