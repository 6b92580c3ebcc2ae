// Package cmd provides the CLI commands for shardex.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardex/internal/config"
	"github.com/Aman-CERP/shardex/internal/errors"
	"github.com/Aman-CERP/shardex/internal/logging"
	"github.com/Aman-CERP/shardex/internal/profiling"
	"github.com/Aman-CERP/shardex/pkg/shardindex"
	"github.com/Aman-CERP/shardex/pkg/version"
)

// DataDir is the root used when the configuration names none.
const DataDir = ".shardex"

// rootOptions holds the persistent flags and the logger they produce.
type rootOptions struct {
	configPath string
	debug      bool
	profile    profiling.Options

	logger   *slog.Logger
	cleanup  func()
	profiler *profiling.Session
}

// NewRootCmd creates the root command for the shardex CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "shardex",
		Short: "Partitioned full-text index",
		Long: `shardex keeps one bleve index per shard and presents them as one.

Documents are routed to a shard by a field value (status by default).
Commits, deletes and readers span every shard in configuration order.

Run 'shardex init' to write a .shardex.yaml in the current directory.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("shardex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a config file (default: nearest .shardex.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.shardex/logs/")

	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "cpuprofile", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "memprofile", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "trace", "", "Write an execution trace to this file")
	_ = cmd.PersistentFlags().MarkHidden("trace")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := opts.startLogging(cmd); err != nil {
			return err
		}
		if opts.profile.Enabled() {
			p, err := profiling.Start(opts.profile)
			if err != nil {
				return err
			}
			opts.profiler = p
		}
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		err := opts.profiler.Stop()
		opts.stopLogging()
		return err
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newLsCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newAddCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	cmd.AddCommand(newMergeCmd(opts))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// startLogging installs the debug file logger, or a console logger on stderr.
func (o *rootOptions) startLogging(cmd *cobra.Command) error {
	if !o.debug {
		o.logger = logging.Console(cmd.ErrOrStderr(), "warn")
		return nil
	}

	cfg := logging.DebugConfig()
	cfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	o.logger = logger
	o.cleanup = cleanup
	slog.SetDefault(logger)
	logger.Info("debug logging enabled",
		slog.String("log_file", cfg.FilePath),
		slog.String("version", version.Version),
		slog.String("command", cmd.CommandPath()))
	return nil
}

func (o *rootOptions) stopLogging() {
	if o.cleanup != nil {
		o.logger.Info("debug logging stopped")
		o.cleanup()
		o.cleanup = nil
	}
}

// loadConfig reads --config, or the nearest .shardex.yaml above the working
// directory. A config without a root keeps its data in DataDir next to it.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		dir string
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
		dir = filepath.Dir(o.configPath)
	} else {
		dir, err = config.FindConfigDir(".")
		if err != nil {
			return nil, err
		}
		cfg, err = config.Load(dir)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Root == "" {
		cfg.Root = filepath.Join(dir, DataDir)
	}
	if len(cfg.Shards) == 0 {
		return nil, errors.ConfigError("no shards configured", nil).
			WithSuggestion("Run 'shardex init' or add a shards: list to " + config.FileName)
	}
	return cfg, nil
}

// openIndex loads the configuration and opens the index. When the config
// names a log file and --debug is off, logs go to that file instead.
func (o *rootOptions) openIndex(ctx context.Context) (*shardindex.Index, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger := o.logger
	if cfg.Logging.File != "" && !o.debug {
		fileLogger, cleanup, err := logging.Setup(logging.Config{
			Level:     cfg.Logging.Level,
			FilePath:  cfg.Logging.File,
			MaxSizeMB: cfg.Logging.MaxSizeMB,
			MaxFiles:  cfg.Logging.MaxFiles,
			NoSync:    cfg.Logging.NoSync,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to setup file logging: %w", err)
		}
		o.cleanup = cleanup
		o.logger = fileLogger
		logger = fileLogger
	}
	if logger == nil {
		logger = slog.Default()
	}

	return shardindex.Open(ctx, cfg, shardindex.WithLogger(logger))
}

// writeJSONError prints err as one JSON object for --json callers. The
// human-readable form still goes to stderr.
func writeJSONError(w io.Writer, err error) {
	data, jerr := errors.FormatJSON(err)
	if jerr != nil {
		return
	}
	_, _ = fmt.Fprintln(w, string(data))
}

// closeIndex closes idx and folds its error into err.
func closeIndex(ctx context.Context, idx *shardindex.Index, err *error) {
	if cerr := idx.Close(ctx); cerr != nil && *err == nil {
		*err = cerr
	}
}
