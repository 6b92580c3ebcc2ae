package cmd

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardex/internal/output"
	"github.com/Aman-CERP/shardex/internal/profiling"
	"github.com/Aman-CERP/shardex/pkg/shardindex"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-shard document counts",
		Long: `Display document counts, commit generations and writer state for every
shard, followed by totals for the whole index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if jsonOutput {
				defer func() {
					if err != nil {
						writeJSONError(cmd.OutOrStdout(), err)
					}
				}()
			}

			idx, err := opts.openIndex(cmd.Context())
			if err != nil {
				return err
			}
			defer closeIndex(cmd.Context(), idx, &err)

			st, err := idx.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printStats(output.New(cmd.OutOrStdout()), st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func printStats(out *output.Writer, st *shardindex.Stats) {
	rows := make([][]string, 0, len(st.Shards)+1)
	for _, s := range st.Shards {
		rows = append(rows, []string{
			s.Criteria,
			strconv.Itoa(s.NumDocs),
			strconv.Itoa(s.MaxDoc),
			strconv.FormatInt(s.Generation, 10),
		})
	}
	rows = append(rows, []string{"total", strconv.Itoa(st.NumDocs), strconv.Itoa(st.MaxDoc), ""})
	out.Table([]string{"SHARD", "DOCS", "MAX_DOC", "GENERATION"}, rows)

	out.Newline()
	out.Statusf("💾", "Buffered: %d docs, %s", st.PendingDocs, profiling.FormatBytes(uint64(max(st.RAMBytesUsed, 0))))
	if st.SoftDeletesField != "" {
		out.Statusf("📄", "Live documents: %d (soft deletes field %q)", st.LiveDocs, st.SoftDeletesField)
	}
	if st.Uncommitted {
		out.Warning("Uncommitted changes pending")
	}
	for _, k := range slices.Sorted(maps.Keys(st.LiveCommitData)) {
		out.Statusf("🏷", "%s=%s", k, st.LiveCommitData[k])
	}
}
