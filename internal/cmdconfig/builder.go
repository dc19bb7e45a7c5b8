package cmdconfig

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CmdBuilder adds flags to a command and binds each of them to the viper key of the same name
type CmdBuilder struct {
	cmd      *cobra.Command
	bindings map[string]string
}

// OnCmd starts a CmdBuilder for cmd. The flags are bound to viper in the command's PreRun, so that
// commands sharing a flag name do not overwrite each other's bindings.
func OnCmd(cmd *cobra.Command) *CmdBuilder {
	b := &CmdBuilder{cmd: cmd, bindings: make(map[string]string)}

	existingPreRun := cmd.PreRun
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		for flagName := range b.bindings {
			if err := viper.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
				slog.Error("failed to bind flag", "flag", flagName, "error", err)
			}
		}
		if existingPreRun != nil {
			existingPreRun(cmd, args)
		}
	}
	return b
}

func (b *CmdBuilder) AddStringFlag(name, defaultValue, desc string) *CmdBuilder {
	b.cmd.Flags().String(name, defaultValue, desc)
	b.bindings[name] = name
	return b
}

func (b *CmdBuilder) AddIntFlag(name string, defaultValue int, desc string) *CmdBuilder {
	b.cmd.Flags().Int(name, defaultValue, desc)
	b.bindings[name] = name
	return b
}

func (b *CmdBuilder) AddInt64Flag(name string, defaultValue int64, desc string) *CmdBuilder {
	b.cmd.Flags().Int64(name, defaultValue, desc)
	b.bindings[name] = name
	return b
}

func (b *CmdBuilder) AddBoolFlag(name string, defaultValue bool, desc string) *CmdBuilder {
	b.cmd.Flags().Bool(name, defaultValue, desc)
	b.bindings[name] = name
	return b
}

// AddPersistentStringFlag adds a flag inherited by every sub command
func (b *CmdBuilder) AddPersistentStringFlag(name, defaultValue, desc string) *CmdBuilder {
	b.cmd.PersistentFlags().String(name, defaultValue, desc)
	if err := viper.BindPFlag(name, b.cmd.PersistentFlags().Lookup(name)); err != nil {
		slog.Error("failed to bind flag", "flag", name, "error", err)
	}
	return b
}
