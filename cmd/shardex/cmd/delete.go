package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardex/internal/output"
)

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	var field, value, queryStr string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete documents from every shard and commit",
		Long: `Delete documents by exact term (--field and --value) or by a bleve query
string (--query). Deletes are applied to every shard.`,
		Example: `  shardex delete --field owner --value ops
  shardex delete --query 'status:1 +title:draft'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			byTerm := field != "" || value != ""
			if byTerm == (queryStr != "") {
				return fmt.Errorf("give either --field and --value, or --query")
			}
			if byTerm && (field == "" || value == "") {
				return fmt.Errorf("--field and --value must be given together")
			}

			idx, err := opts.openIndex(cmd.Context())
			if err != nil {
				return err
			}
			defer closeIndex(cmd.Context(), idx, &err)

			ctx := cmd.Context()
			if byTerm {
				_, err = idx.Delete(ctx, field, value)
			} else {
				_, err = idx.DeleteQuery(ctx, queryStr)
			}
			if err != nil {
				return err
			}

			committed, err := idx.Commit(ctx)
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Deleted (%d shards committed)", committed)
			return nil
		},
	}

	cmd.Flags().StringVar(&field, "field", "", "Field to match")
	cmd.Flags().StringVar(&value, "value", "", "Exact value of --field")
	cmd.Flags().StringVarP(&queryStr, "query", "q", "", "Bleve query string")

	return cmd
}
