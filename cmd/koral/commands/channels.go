package commands

import (
	"fmt"

	"github.com/koralvoice/koral-core/core/focus"
	"github.com/spf13/cobra"
)

var flagChannelConfig string

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Print the channel layout the focus engine would run with",
	Long: `Print the channel layout the focus engine would run with, in descending
priority order. Without --config the built-in dialog/alerts/content layout
is shown.

Example:
  koral channels --config channels.yaml`,
	RunE: runChannels,
}

func init() {
	channelsCmd.Flags().StringVar(&flagChannelConfig, "config", "", "YAML channel config file")
}

func runChannels(cmd *cobra.Command, args []string) error {
	configs := focus.DefaultChannelConfigs()
	if flagChannelConfig != "" {
		loaded, err := focus.LoadChannelConfigs(flagChannelConfig)
		if err != nil {
			return err
		}
		configs = loaded
	}

	fmt.Println(headerStyle.Render("channels (lower priority value wins the foreground)"))

	seenNames := map[string]bool{}
	seenPriorities := map[uint]bool{}
	for _, config := range configs {
		line := fmt.Sprintf("  %-12s priority %d", config.Name, config.Priority)
		if seenNames[config.Name] || seenPriorities[config.Priority] {
			fmt.Println(errorStyle.Render(line + "  (duplicate, dropped)"))
			continue
		}
		seenNames[config.Name] = true
		seenPriorities[config.Priority] = true
		fmt.Println(focusStyle.Render(line))
	}

	return nil
}
