package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/turbot/tailwriter/internal/cmdconfig"
	"github.com/turbot/tailwriter/internal/constants"
	"github.com/turbot/tailwriter/internal/error_helpers"
)

var exitCode int

// Build the cobra command that handles our command line tool.
func rootCommand() *cobra.Command {
	// Define our command
	rootCmd := &cobra.Command{
		Use:     "tailwriter [--version] [--help] COMMAND [args]",
		Short:   constants.TailwriterShortDescription,
		Long:    constants.TailwriterLongDescription,
		Version: viper.GetString("main.version"),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmdconfig.PreRunHook(cmd, args)
		},
		Run: func(cmd *cobra.Command, args []string) {
			err := cmd.Help()
			error_helpers.FailOnError(err)
		},
	}

	rootCmd.SetVersionTemplate("Tailwriter v{{.Version}}\n")

	cmdconfig.
		OnCmd(rootCmd).
		AddPersistentStringFlag(constants.ArgConfig, "", "Path to a stage config file")

	rootCmd.AddCommand(
		writeCmd(),
		validateCmd(),
		recoverCmd(),
		catCmd(),
	)

	// disable auto completion generation, since we don't want to support
	// powershell yet - and there's no way to disable powershell in the default generator
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

func Execute() int {
	rootCmd := rootCommand()
	if err := rootCmd.Execute(); err != nil {
		exitCode = -1
	}
	return exitCode
}

// setExitCodeForError sets the exit code for a failed command. Cancellation by the user is not a failure.
func setExitCodeForError(err error) {
	if err == nil || error_helpers.IsCancelledError(err) {
		return
	}
	exitCode = 1
}
