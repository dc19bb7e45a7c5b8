package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/turbot/tailwriter/internal/cmdconfig"
	"github.com/turbot/tailwriter/internal/constants"
	"github.com/turbot/tailwriter/internal/error_helpers"
	"github.com/turbot/tailwriter/internal/filesystem"
	"github.com/turbot/tailwriter/internal/writer"
)

func recoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover [flags] <dir> [dir ...]",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecoverCmd,
		Short: "Finalize temporary files left behind by an interrupted writer",
		Long: `Finalize temporary files left behind by an interrupted writer.

Temporary files with records are renamed to their final name; empty ones are removed.
Only files written with the given prefix are touched.

Examples:

	# Recover a partition directory written with the default prefix
	tailwriter recover /data/2024/01/15

	# Recover files written with the prefix 'events'
	tailwriter recover --prefix events /data/2024/01/15 /data/2024/01/16`,
	}

	cmdconfig.OnCmd(cmd).
		AddStringFlag(constants.ArgUniquePrefix, constants.DefaultUniquePrefix, "The unique prefix the files were written with")

	return cmd
}

func runRecoverCmd(cmd *cobra.Command, args []string) {
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

	err = doRecover(cmd.Context(), args)
}

func doRecover(ctx context.Context, dirs []string) error {
	fs := filesystem.NewRetrying(filesystem.NewOsFS(), constants.DefaultRenameRetries, constants.DefaultRetryBackoff)
	// the extension is not needed to match temporary files
	names := writer.NewNameProvider(viper.GetString(constants.ArgUniquePrefix), "")

	var finalized, removed int
	for _, dir := range dirs {
		report, err := writer.Recover(ctx, fs, dir, names)
		if err != nil {
			return fmt.Errorf("failed to recover %s: %w", dir, err)
		}
		finalized += len(report.Finalized)
		removed += len(report.Removed)
		for _, p := range report.Finalized {
			fmt.Println("Finalized", p) //nolint:forbidigo // ui output
		}
	}
	fmt.Printf("Finalized %d, removed %d empty temporary files.\n", finalized, removed) //nolint:forbidigo // ui output
	return nil
}
