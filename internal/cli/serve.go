package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	service "github.com/okian/communityrank/internal/app"
	"github.com/okian/communityrank/internal/config"
	"github.com/okian/communityrank/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot: gateway listeners, periodic sync and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(ctx)
		if err != nil {
			return err
		}
		if err := logger.SetLevelString(cfg.LogLevel); err != nil {
			return err
		}
		log := logger.Get()

		svc, err := service.New(ctx, cfg)
		if err != nil {
			return err
		}
		if err := svc.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		log.Info(ctx, "shutdown signal received")

		// The signal context is already done; stop with a fresh one.
		return svc.Stop(cmd.Context())
	},
}
