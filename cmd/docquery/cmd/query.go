package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
	"github.com/Aman-CERP/docquery/internal/orchestrator"
)

// newQueryCmd implements query(question, buffer, overrides) -> QueryResult,
// the full Plan -> Search -> Scale -> LoadChunks -> FanOut -> Collect ->
// Synthesize -> Done pipeline (spec §4.10, §6).
func newQueryCmd() *cobra.Command {
	var buffer string
	var searchMode string
	var topK int
	var threshold float64
	var maxChunks int
	var concurrency int
	var skipPlan bool

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question against loaded buffers via the agent pipeline",
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

			overrides := orchestrator.Overrides{SkipPlan: skipPlan}
			if cmd.Flags().Changed("mode") {
				overrides.SearchMode = &searchMode
			}
			if cmd.Flags().Changed("top-k") {
				overrides.TopK = &topK
			}
			if cmd.Flags().Changed("threshold") {
				overrides.Threshold = &threshold
			}
			if cmd.Flags().Changed("max-chunks") {
				overrides.MaxChunks = &maxChunks
			}
			if cmd.Flags().Changed("concurrency") {
				overrides.Concurrency = &concurrency
			}

			result, err := orchestrator.Query(cmd.Context(), e.orchestratorConfig(), args[0], scope, overrides)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), engerrors.FormatForCLI(err))
				os.Exit(1)
			}

			if result.SynthesisError != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "synthesis failed: %s\n", result.SynthesisError)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), result.Report)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "request_id=%s tier=%s chunks=%d/%d findings=%d/%d batches=%d (%d failed) tokens=%d elapsed=%s\n",
				result.RequestID, result.Tier, result.ChunksAnalyzed, result.ChunksAvailable,
				result.FindingsCount, result.FindingsCount+result.FindingsFiltered,
				result.BatchesProcessed, result.BatchesFailed, result.TotalTokens, result.Elapsed)
			return nil
		},
	}

	cmd.Flags().StringVar(&buffer, "buffer", "", "restrict the query to one buffer (id or name)")
	cmd.Flags().StringVar(&searchMode, "mode", "", "override the search mode: hybrid, lexical, or semantic")
	cmd.Flags().IntVar(&topK, "top-k", 0, "override the search top-k")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "override the search threshold")
	cmd.Flags().IntVar(&maxChunks, "max-chunks", 0, "override the maximum chunks analyzed")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override the batch concurrency")
	cmd.Flags().BoolVar(&skipPlan, "skip-plan", false, "skip the planner and use the default plan")

	return cmd
}
