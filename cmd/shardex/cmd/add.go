package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardex/internal/engine"
	"github.com/Aman-CERP/shardex/internal/output"
	"github.com/Aman-CERP/shardex/pkg/shardindex"
)

func newAddCmd(opts *rootOptions) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "add <file|->",
		Short: "Index JSON-lines documents and commit",
		Long: `Read one JSON object per line and index it. The "id" key becomes the
document ID (one is generated when absent); every other key is a field.
The routing field (status by default) picks the shard.

With --replace, a document replaces the existing one with the same ID.
The old version stays in the index marked with the soft deletes field.`,
		Example: `  shardex add docs.jsonl
  cat docs.jsonl | shardex add -
  shardex add --replace updates.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			in, closeIn, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeIn()

			docs, err := readDocuments(in)
			if err != nil {
				return err
			}

			idx, err := opts.openIndex(cmd.Context())
			if err != nil {
				return err
			}
			defer closeIndex(cmd.Context(), idx, &err)

			return runAdd(cmd, idx, docs, replace)
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Soft-update documents by ID instead of adding")

	return cmd
}

func runAdd(cmd *cobra.Command, idx *shardindex.Index, docs []engine.Document, replace bool) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	if len(docs) == 0 {
		out.Warning("No documents to add")
		return nil
	}

	if replace {
		for _, d := range docs {
			if d.ID == "" {
				return fmt.Errorf("replace needs an id on every document")
			}
			if _, err := idx.Replace(ctx, d); err != nil {
				return err
			}
		}
	} else if _, err := idx.Add(ctx, docs...); err != nil {
		return err
	}

	committed, err := idx.Commit(ctx)
	if err != nil {
		return err
	}
	slog.Debug("documents added",
		slog.Int("count", len(docs)),
		slog.Bool("replace", replace),
		slog.Int("shards_committed", committed))

	out.Successf("Indexed %d documents (%d shards committed)", len(docs), committed)
	return nil
}

// openInput opens path, or stdin for "-".
func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// readDocuments parses JSON lines. Blank lines are skipped.
func readDocuments(r io.Reader) ([]engine.Document, error) {
	var docs []engine.Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var fields map[string]any
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNo, err)
		}

		var id string
		if v, ok := fields["id"]; ok {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("line %d: id must be a string", lineNo)
			}
			id = s
			delete(fields, "id")
		}
		docs = append(docs, engine.Document{ID: id, Fields: fields})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return docs, nil
}
