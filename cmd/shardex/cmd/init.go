package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardex/configs"
	"github.com/Aman-CERP/shardex/internal/config"
	"github.com/Aman-CERP/shardex/internal/output"
)

func newInitCmd() *cobra.Command {
	var force, restore bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter .shardex.yaml",
		Long: `Write a commented .shardex.yaml with two shards ("0" and "1") routed by
the status field. An existing file is kept unless --force is given, in
which case it is backed up first. --restore puts the newest backup back.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if restore {
				return runRestore(cmd, dir)
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config (a backup is kept)")
	cmd.Flags().BoolVar(&restore, "restore", false, "Restore the newest config backup")
	cmd.MarkFlagsMutuallyExclusive("force", "restore")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	out := output.New(cmd.OutOrStdout())
	path := filepath.Join(dir, config.FileName)

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warningf("%s already exists (use --force to overwrite)", path)
			return nil
		}
		backup, err := config.BackupConfig(path)
		if err != nil {
			return fmt.Errorf("failed to back up config: %w", err)
		}
		out.Statusf("💾", "Backed up existing config to %s", backup)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out.Successf("Wrote %s", path)
	out.Line("Add documents with: shardex add docs.jsonl")
	return nil
}

func runRestore(cmd *cobra.Command, dir string) error {
	path := filepath.Join(dir, config.FileName)
	backup, err := config.RestoreLatest(path)
	if err != nil {
		return err
	}
	output.New(cmd.OutOrStdout()).Successf("Restored %s from %s", path, filepath.Base(backup))
	return nil
}
