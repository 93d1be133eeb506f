package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/findmykit/trackagent"
	"github.com/findmykit/trackagent/internal/config"
)

func newDevicesCmd() *cobra.Command {
	var exportPath string
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List account devices with status and location",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			provider, _, err := loadProvider(cfg)
			if err != nil {
				return err
			}

			snapshots, err := trackagent.CollectSnapshots(cmd.Context(), provider)
			if err != nil {
				return err
			}
			if len(snapshots) == 0 {
				fmt.Println("No devices found.")
				return nil
			}

			for i, snap := range snapshots {
				fmt.Printf("Device #%d: %s (%s)\n", i+1, snap.Name, snap.Model)
				fmt.Printf("  Class: %s\n", snap.DeviceClass)
				if snap.BatteryLevel != nil {
					fmt.Printf("  Battery: %.0f%% (%s)\n", *snap.BatteryLevel*100, snap.BatteryStatus)
				}
				if snap.Location != nil {
					fmt.Printf("  Location: %.6f, %.6f (±%.0fm) at %s\n",
						snap.Location.Latitude, snap.Location.Longitude,
						snap.Location.Accuracy, snap.Location.FixTime.Local().Format("2006-01-02 15:04:05"))
				} else {
					fmt.Println("  Location: not available")
				}
			}

			if exportPath != "" {
				return trackagent.ExportJSON(exportPath, snapshots)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&exportPath, "export", "", "write device snapshots to a JSON file")
	return cmd
}
