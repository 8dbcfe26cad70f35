package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook gateway as an HTTP server",
	Long:  "Serves the LINE webhook endpoint together with health, readiness and metrics endpoints.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(runCtx, "cmd.serve")
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to start: %v\n", err)
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.shutdownTracer(flushCtx); err != nil {
				a.log.Warn("Failed to flush traces", "error", err)
			}
		}()

		if err := a.service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("Gateway runtime failed", "error", err)
			return err
		}

		a.log.Info("Gateway stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
