package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/turbot/tailwriter/internal/encoding"
	"github.com/turbot/tailwriter/internal/error_helpers"
)

func catCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <file> [file ...]",
		Args:  cobra.MinimumNArgs(1),
		Run:   runCatCmd,
		Short: "Print the records of finalized files as JSON lines",
		Long: `Print the records of finalized files as JSON lines.

The format and compression of each file is inferred from its extension.

Examples:

	# Print an Avro file
	tailwriter cat /data/2024/01/15/data_cn8s1kq6o2b7ui4mh3tg.avro`,
	}
	return cmd
}

func runCatCmd(cmd *cobra.Command, args []string) {
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

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for _, name := range args {
		if err = catFile(cmd.Context(), w, name); err != nil {
			return
		}
	}
}

func catFile(ctx context.Context, w io.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := encoding.NewDecoderForName(name, f)
	if err != nil {
		return err
	}
	defer dec.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		line, err := encoding.MarshalRecord(rec)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
			return err
		}
	}
}
