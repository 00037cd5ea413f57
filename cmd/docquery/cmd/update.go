package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
	"github.com/Aman-CERP/docquery/pkg/chunkspan"
)

// newUpdateCmd implements update_buffer(id_or_name, bytes, strategy,
// chunk_size, overlap, reembed) (spec §6).
func newUpdateCmd() *cobra.Command {
	var file string
	var strategy string
	var chunkSize int
	var overlap int
	var reembed bool

	cmd := &cobra.Command{
		Use:   "update <buffer>",
		Short: "Replace a buffer's content and re-chunk it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			buf, err := e.store.GetBuffer(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), engerrors.FormatForCLI(err))
				os.Exit(1)
			}
			if buf == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "buffer %q not found\n", args[0])
				os.Exit(1)
			}

			chunks := spansToChunks(buf.ID, spans)
			if err := e.store.UpdateBuffer(cmd.Context(), buf.ID, content, chunks); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), engerrors.FormatForCLI(err))
				os.Exit(1)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "buffer %d updated (%d chunks)\n", buf.ID, len(chunks))

			if reembed {
				embedded, skipped, err := embedBuffer(cmd.Context(), e, buf.ID, true)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), engerrors.FormatForCLI(err))
					os.Exit(1)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "embedded %d chunks, skipped %d\n", embedded, skipped)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "-", "path to read buffer content from ('-' for stdin)")
	cmd.Flags().StringVar(&strategy, "strategy", "fixed", "chunking strategy: fixed or paragraph")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", chunkspan.DefaultChunkSize, "chunk size in bytes")
	cmd.Flags().IntVar(&overlap, "overlap", chunkspan.DefaultOverlap, "chunk overlap in bytes")
	cmd.Flags().BoolVar(&reembed, "reembed", false, "immediately re-embed every chunk after updating")

	return cmd
}
