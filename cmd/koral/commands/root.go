package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "koral",
	Short: "Inspect and exercise the koral audio focus engine",
	Long: `koral is a CLI for exercising the koral-core audio focus arbitration
engine and speech playback state machine without real hardware.

It can print the configured channel layout and run a scripted interaction
that shows focus moving between channels as speech plays, is barged in on,
and finishes.

Usage:
  koral channels --config channels.yaml
  koral simulate`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(simulateCmd)
}
