package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
	"github.com/Aman-CERP/docquery/internal/store"
	"github.com/Aman-CERP/docquery/pkg/chunkspan"
)

// newLoadCmd implements load_buffer(name, bytes, strategy, chunk_size,
// overlap) -> BufferId (spec §6).
func newLoadCmd() *cobra.Command {
	var file string
	var strategy string
	var chunkSize int
	var overlap int

	cmd := &cobra.Command{
		Use:   "load <name>",
		Short: "Load a new buffer from a file (or stdin with --file -)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			content, err := readInput(file)
			if err != nil {
				return err
			}

			spans, err := chunkspan.Split(content, chunkspan.Strategy(strategy), chunkSize, overlap)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), engerrors.FormatForCLI(err))
				os.Exit(1)
			}

			e, err := newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			bufID, err := e.store.PutBuffer(cmd.Context(), &store.Buffer{Name: name, Content: content})
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), engerrors.FormatForCLI(err))
				os.Exit(1)
			}

			chunks := spansToChunks(bufID, spans)
			if err := e.store.PutChunks(cmd.Context(), bufID, chunks); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), engerrors.FormatForCLI(err))
				os.Exit(1)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "buffer %d loaded (%d chunks)\n", bufID, len(chunks))
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "-", "path to read buffer content from ('-' for stdin)")
	cmd.Flags().StringVar(&strategy, "strategy", "fixed", "chunking strategy: fixed or paragraph")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", chunkspan.DefaultChunkSize, "chunk size in bytes")
	cmd.Flags().IntVar(&overlap, "overlap", chunkspan.DefaultOverlap, "chunk overlap in bytes")

	return cmd
}

func readInput(path string) (string, error) {
	if path == "-" || path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func spansToChunks(bufferID int64, spans []chunkspan.Span) []*store.Chunk {
	chunks := make([]*store.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = &store.Chunk{
			BufferID:    bufferID,
			Index:       s.Index,
			Start:       s.Start,
			End:         s.End,
			Text:        s.Text,
			Strategy:    s.Strategy,
			TokenCount:  s.TokenCount,
			Overlap:     s.Overlap,
			ContentHash: s.ContentHash,
		}
	}
	return chunks
}
