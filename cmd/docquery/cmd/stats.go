package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

// newStatsCmd implements stats() -> {buffers, chunks, bytes,
// embedded_chunks} (spec §6).
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store-wide buffer, chunk, and embedding counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			s, err := e.store.Stats(cmd.Context())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), engerrors.FormatForCLI(err))
				os.Exit(1)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "buffers: %d\nchunks: %d\nbytes: %d\nembedded_chunks: %d\n",
				s.Buffers, s.Chunks, s.Bytes, s.EmbeddedChunks)
			return nil
		},
	}
}
