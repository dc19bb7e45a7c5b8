package cmdconfig

import (
	"github.com/spf13/cobra"
	"github.com/turbot/tailwriter/internal/constants"
	"golang.org/x/exp/maps"
)

func configDefaults(cmd *cobra.Command) map[string]any {
	defs := map[string]any{
		constants.ArgMemoryMaxMb: 1024,
	}

	cmdSpecificDefaults, ok := cmdSpecificDefaults()[cmd.Name()]
	if ok {
		maps.Copy(defs, cmdSpecificDefaults)
	}
	return defs
}

// command specific config defaults (keyed by command name)
func cmdSpecificDefaults() map[string]map[string]any {
	return map[string]map[string]any{
		"write": {
			constants.ArgBatchSize: constants.DefaultBatchSize,
		},
	}
}
