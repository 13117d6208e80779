package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"healthmate/internal/logger"
	"healthmate/internal/processor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the alerting service",
	Long: `Start the HTTP API, the evaluation workers, the retention sweeper and,
when KAFKA_ENABLED is set, the device reading consumer and push notification producer.

Stops gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTPAddr = addr
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err := processor.New(cfg).Run(ctx)
		log := logger.WithComponent("main")
		log.Info().Msg("exited")
		return err
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
