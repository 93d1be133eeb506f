package main

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/findmykit/trackagent/internal/config"
)

func newAlarmCmd() *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "alarm",
		Short: "Play a sound on the target device",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if device != "" {
				cfg.TargetDevice = device
			}
			provider, _, err := loadProvider(cfg)
			if err != nil {
				return err
			}

			devices, err := provider.ListDevices(cmd.Context())
			if err != nil {
				return err
			}
			for _, dev := range devices {
				if dev.Name == cfg.TargetDevice || dev.Model == cfg.TargetDevice {
					if err := provider.PlaySound(cmd.Context(), dev.ID); err != nil {
						return err
					}
					log.Info().Str("device", dev.Name).Msg("alarm request sent")
					return nil
				}
			}
			return errors.Errorf("no device matched %q", cfg.TargetDevice)
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "device name or model (defaults to TARGET_DEVICE)")
	return cmd
}
