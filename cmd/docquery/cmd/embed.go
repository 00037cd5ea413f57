package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

// newEmbedCmd implements embed_buffer(id, force) -> counts (spec §6).
// Incremental by default: only chunks whose stored embedding model differs
// from the active embedder's model are processed. force re-embeds every
// chunk regardless.
func newEmbedCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "embed <buffer>",
		Short: "Compute embeddings for a buffer's chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			embedded, skipped, err := embedBuffer(cmd.Context(), e, buf.ID, force)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), engerrors.FormatForCLI(err))
				os.Exit(1)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "embedded %d chunks, skipped %d already current\n", embedded, skipped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-embed every chunk, ignoring the content hash and model on record")

	return cmd
}

// embedBuffer computes and stores embeddings for a buffer's chunks. When
// force is false, a chunk already embedded under the active model is
// skipped -- running embed_buffer twice in a row does zero model calls on
// the second run.
func embedBuffer(ctx context.Context, e *engine, bufferID int64, force bool) (embedded, skipped int, err error) {
	model := e.embedder.ModelName()

	chunks, err := e.store.ListChunks(ctx, bufferID)
	if err != nil {
		return 0, 0, err
	}

	for _, c := range chunks {
		if !force {
			if _, getErr := e.store.GetEmbedding(ctx, c.ID, model); getErr == nil {
				skipped++
				continue
			}
		}

		vec, embErr := e.embedder.Embed(ctx, c.Text)
		if embErr != nil {
			return embedded, skipped, engerrors.ProviderTransientError("failed to embed chunk", embErr)
		}
		if err := e.store.PutEmbedding(ctx, c.ID, model, vec); err != nil {
			return embedded, skipped, err
		}
		embedded++
	}

	return embedded, skipped, nil
}
