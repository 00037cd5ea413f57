package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
	"github.com/Aman-CERP/docquery/internal/hybrid"
)

// newSearchCmd implements search(query, mode, top_k, threshold, buffer) ->
// [SearchHit] (spec §6).
func newSearchCmd() *cobra.Command {
	var mode string
	var topK int
	var threshold float64
	var buffer string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid, lexical, or semantic search over loaded buffers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			scope, err := resolveBufferScope(cmd, e, buffer)
			if err != nil {
				return err
			}

			results, err := e.searcher.Search(cmd.Context(), hybrid.Query{
				Text:        args[0],
				Mode:        hybrid.Mode(mode),
				TopK:        topK,
				Threshold:   float32(threshold),
				BufferScope: scope,
			})
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), engerrors.FormatForCLI(err))
				os.Exit(1)
			}

			for _, r := range results {
				chunk, _ := e.store.GetChunk(cmd.Context(), r.ChunkID)
				snippet := ""
				if chunk != nil {
					snippet = truncate(chunk.Text, 120)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%.4f\t%s\n", r.ChunkID, r.FusedScore, snippet)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(hybrid.ModeHybrid), "search mode: hybrid, lexical, or semantic")
	cmd.Flags().IntVar(&topK, "top-k", 20, "maximum results to return")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum score threshold")
	cmd.Flags().StringVar(&buffer, "buffer", "", "restrict the search to one buffer (id or name)")

	return cmd
}

// resolveBufferScope resolves a --buffer flag value (id or name, possibly
// empty) into the *int64 BufferScope the searcher and orchestrator expect.
func resolveBufferScope(cmd *cobra.Command, e *engine, buffer string) (*int64, error) {
	if buffer == "" {
		return nil, nil
	}
	buf, err := e.store.GetBuffer(cmd.Context(), buffer)
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, fmt.Errorf("buffer %q not found", buffer)
	}
	return &buf.ID, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
