package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openmined/photosync/internal/client"
	"github.com/openmined/photosync/internal/client/config"
	photosync "github.com/openmined/photosync/internal/client/sync"
	"github.com/openmined/photosync/internal/version"
)

func init() {
	rootCmd.AddCommand(newWebCmd())
}

func newWebCmd() *cobra.Command {
	var schedule bool
	var rateLimit string

	webCmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the sync dashboard",
		Long: `Serve the browser dashboard: live progress over a websocket, manual
passes with an optional start date, cancellation and settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			slog.Info("photosync", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

			mgr := photosync.NewManager(config.NewHolder(cfg))
			daemon, err := client.NewClientDaemon(mgr, &client.ControlPlaneConfig{
				Addr:      cfg.HTTP.Addr,
				AuthToken: cfg.HTTP.Token,
				RateLimit: rateLimit,
			}, schedule)
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			if err := daemon.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("daemon start", "error", err)
				return err
			}
			return nil
		},
	}

	webCmd.Flags().StringP("http-addr", "a", config.DefaultHTTPAddr, "Address to bind the dashboard")
	webCmd.Flags().StringP("http-token", "t", "", "Access token for the dashboard API")
	webCmd.Flags().BoolVar(&schedule, "schedule", false, "Also sync every poll interval")
	webCmd.Flags().StringVar(&rateLimit, "http-rate", client.DefaultRateLimit, "Per-IP request rate for the dashboard API")

	return webCmd
}
