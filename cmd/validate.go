package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/turbot/tailwriter/internal/cmdconfig"
	"github.com/turbot/tailwriter/internal/constants"
	"github.com/turbot/tailwriter/internal/error_helpers"
)

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [flags]",
		Args:  cobra.NoArgs,
		Run:   runValidateCmd,
		Short: "Validate a stage config",
		Long: `Validate a stage config, reporting every problem found.

Examples:

	# Validate a stage config file
	tailwriter validate --config stage.hcl

	# Check a template and format given on the command line
	tailwriter validate --dir-template '/data/${YYYY}/${MM}/${DD}' --format avro`,
	}

	cmdconfig.OnCmd(cmd).
		AddStringFlag(constants.ArgDirTemplate, "", "Directory template, overriding the config file").
		AddStringFlag(constants.ArgTimeDriver, "", "Time driver, overriding the config file").
		AddStringFlag(constants.ArgFormat, "", "Output format, overriding the config file").
		AddStringFlag(constants.ArgCompression, "", "Compression, overriding the config file")

	return cmd
}

func runValidateCmd(cmd *cobra.Command, _ []string) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = error_helpers.ToError(r)
		}
		if err != nil {
			error_helpers.ShowError(err)
			setExitCodeForError(err)
		}
	}()

	err = doValidate(cmd.Context())
}

func doValidate(_ context.Context) error {
	c, err := stageConfig()
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	fmt.Println("Stage config is valid.") //nolint:forbidigo // ui output
	return nil
}
