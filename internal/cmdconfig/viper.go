package cmdconfig

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/turbot/tailwriter/internal/constants"
)

// BootstrapViper sets the defaults for cmd and maps TAILWRITER_ prefixed environment variables onto
// viper keys, e.g. TAILWRITER_BATCH_SIZE sets batch-size.
// Precedence is flag, then environment, then default.
func BootstrapViper(cmd *cobra.Command) {
	for k, v := range configDefaults(cmd) {
		viper.SetDefault(k, v)
	}
	viper.SetEnvPrefix(constants.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
