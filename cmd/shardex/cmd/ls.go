package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List index files across all shards",
		Long: `List every file in the index as one namespace. Shard files carry their
criteria as a prefix, for example 0$commit-1.json.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			idx, err := opts.openIndex(cmd.Context())
			if err != nil {
				return err
			}
			defer closeIndex(cmd.Context(), idx, &err)

			files, err := idx.Files()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, f := range files {
				_, _ = fmt.Fprintln(w, f)
			}
			return nil
		},
	}
}
