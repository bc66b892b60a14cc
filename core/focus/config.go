package focus

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Default channel names and priorities, in descending priority order.
const (
	DialogChannelName  = "Dialog"
	AlertsChannelName  = "Alerts"
	ContentChannelName = "Content"

	DialogChannelPriority  uint = 0
	AlertsChannelPriority  uint = 1
	ContentChannelPriority uint = 2
)

// ChannelConfig describes one channel to create at construction. Channels are
// fixed for the lifetime of the Manager; there is no runtime reconfiguration.
type ChannelConfig struct {
	Name     string `yaml:"name"`
	Priority uint   `yaml:"priority"`
}

func (c ChannelConfig) String() string {
	return fmt.Sprintf("name:%q, priority:%d", c.Name, c.Priority)
}

// DefaultChannelConfigs returns the stock dialog/alerts/content layout.
func DefaultChannelConfigs() []ChannelConfig {
	return []ChannelConfig{
		{Name: DialogChannelName, Priority: DialogChannelPriority},
		{Name: AlertsChannelName, Priority: AlertsChannelPriority},
		{Name: ContentChannelName, Priority: ContentChannelPriority},
	}
}

type channelConfigFile struct {
	Channels []ChannelConfig `yaml:"channels"`
}

// LoadChannelConfigs reads an ordered channel list from a YAML file:
//
//	channels:
//	  - name: Dialog
//	    priority: 0
//
// Ordering matters: on duplicate names or priorities the Manager keeps the
// first entry and drops the rest.
func LoadChannelConfigs(path string) ([]ChannelConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel config: %w", err)
	}

	var file channelConfigFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse channel config: %w", err)
	}

	if len(file.Channels) == 0 {
		return nil, fmt.Errorf("channel config %q declares no channels", path)
	}

	return file.Channels, nil
}
