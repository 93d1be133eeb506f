package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/findmykit/trackagent"
	"github.com/findmykit/trackagent/internal/config"
	"github.com/findmykit/trackagent/pkg/server"
	"github.com/findmykit/trackagent/pkg/storage"
)

func newServeCmd() *cobra.Command {
	var (
		interval time.Duration
		target   string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tracking loop with the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if interval > 0 {
				cfg.Interval = interval
			}
			if target != "" {
				cfg.TargetDevice = target
			}
			if cfg.APIKey == "" {
				log.Warn().Msg("API_KEY is not set: protected endpoints will refuse to serve")
			}

			provider, _, err := loadProvider(cfg)
			if err != nil {
				return err
			}
			sink, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer sink.Close()

			tracker, err := trackagent.NewTracker(trackagent.TrackerConfig{
				Provider: provider,
				Sink:     sink,
				Interval: cfg.Interval,
				Target:   cfg.TargetDevice,
			})
			if err != nil {
				return err
			}
			srv, err := server.New(server.Config{
				Host:     cfg.Host,
				Port:     cfg.Port,
				APIKey:   cfg.APIKey,
				Tracker:  tracker,
				Provider: provider,
				Records:  sink,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			trackerErr := make(chan error, 1)
			go func() {
				err := tracker.Run(ctx)
				trackerErr <- err
				if err != nil {
					// A dead tracker (expired session) makes the server
					// pointless; take it down too.
					cancel()
				}
			}()

			if err := srv.Run(ctx); err != nil {
				return err
			}
			if err := <-trackerErr; err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "polling interval override (e.g. 5m)")
	cmd.Flags().StringVar(&target, "target", "", "target device selector override")
	return cmd
}
