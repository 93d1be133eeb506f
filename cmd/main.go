package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/findmykit/trackagent/internal/env"
)

var rootCmd = &cobra.Command{
	Use:   "trackagent",
	Short: "Apple device location tracking agent",
	Long: `trackagent polls Apple's device-location services for the devices on an
account, persists location/battery snapshots to a local store, and serves the
latest position plus a remote-alarm action over a small HTTP API. Run
"trackagent login" once to save a session, then "trackagent serve" or
"trackagent track".`,
}

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.AddCommand(
		newServeCmd(),
		newTrackCmd(),
		newDevicesCmd(),
		newAlarmCmd(),
		newLoginCmd(),
		newVersionCmd(),
	)
	_ = env.Ensure()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("trackagent command failed")
	}
}
