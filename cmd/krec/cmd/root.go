package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "krec",
	Short: "Inspect KRec robot telemetry recordings",
	Long: `krec inspects .krec recording files: per-timestep actuator
state/command pairs with optional IMU data, under a header describing
the robot, task and actuator configuration.

The tool is read-only; recordings are produced by the library.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
