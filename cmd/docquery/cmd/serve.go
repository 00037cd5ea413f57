package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docquery/internal/logging"
	"github.com/Aman-CERP/docquery/internal/mcpbridge"
)

// newServeCmd starts the MCP server over stdio. The MCP transport owns
// stdin/stdout exclusively for JSON-RPC framing, so this command never
// writes to either stream -- all logging goes to file via
// logging.SetupMCPMode, regardless of --debug.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cleanup, err := logging.SetupMCPMode()
			if err != nil {
				return fmt.Errorf("failed to setup MCP logging: %w", err)
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := newEngine(ctx)
			if err != nil {
				slog.Error("failed to initialize engine", slog.String("error", err.Error()))
				return err
			}
			defer e.Close()

			bridge := mcpbridge.New(e.tools, e.store, e.orchestratorConfig(), slog.Default())
			if err := bridge.RegisterResources(ctx); err != nil {
				slog.Error("failed to register resources", slog.String("error", err.Error()))
				return err
			}

			slog.Info("MCP server starting")
			if err := bridge.Serve(ctx); err != nil && ctx.Err() == nil {
				slog.Error("MCP server exited with error", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}
}
