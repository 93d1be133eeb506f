package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/findmykit/trackagent"
	"github.com/findmykit/trackagent/internal/config"
	"github.com/findmykit/trackagent/pkg/storage"
)

func newTrackCmd() *cobra.Command {
	var (
		once     bool
		interval time.Duration
		target   string
	)
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Poll device locations into the local store",
		Long: `track runs the fetch-map-persist loop without the HTTP API. With --once it
performs exactly one cycle and exits, which suits cron-style scheduling.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if interval > 0 {
				cfg.Interval = interval
			}
			if target != "" {
				cfg.TargetDevice = target
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
				Provider:   provider,
				Sink:       sink,
				Interval:   cfg.Interval,
				Target:     cfg.TargetDevice,
				SingleShot: once,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return tracker.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	cmd.Flags().DurationVar(&interval, "interval", 0, "polling interval override (e.g. 5m)")
	cmd.Flags().StringVar(&target, "target", "", "target device selector override")
	return cmd
}
