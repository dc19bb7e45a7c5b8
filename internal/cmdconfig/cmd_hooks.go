package cmdconfig

import (
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/turbot/tailwriter/internal/constants"
	"github.com/turbot/tailwriter/internal/logger"
)

// PreRunHook is executed before every command handler
func PreRunHook(cmd *cobra.Command, _ []string) {
	// set up the global viper config with default values and ENV variables
	BootstrapViper(cmd)

	logger.Initialize()

	// set the max memory if specified
	setMemoryLimit()
}

func setMemoryLimit() {
	maxMemoryBytes := viper.GetInt64(constants.ArgMemoryMaxMb) * 1024 * 1024
	if maxMemoryBytes > 0 {
		debug.SetMemoryLimit(maxMemoryBytes)
	}
}
