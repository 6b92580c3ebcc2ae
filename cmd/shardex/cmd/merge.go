package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardex/internal/output"
)

func newMergeCmd(opts *rootOptions) *cobra.Command {
	var maxSegments int

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Force merge every shard",
		Long: `Merge the segments of every shard down to about --max-segments, dropping
deleted and replaced documents. Pending changes are committed afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			idx, err := opts.openIndex(ctx)
			if err != nil {
				return err
			}
			defer closeIndex(ctx, idx, &err)

			if err := idx.ForceMerge(ctx, maxSegments); err != nil {
				return err
			}
			if _, err := idx.Commit(ctx); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Merged %d shards", len(idx.Config().Shards))
			return nil
		},
	}

	cmd.Flags().IntVar(&maxSegments, "max-segments", 1, "Segments to keep per shard")

	return cmd
}
