package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/turbot/tailwriter/internal/cmdconfig"
	"github.com/turbot/tailwriter/internal/constants"
	"github.com/turbot/tailwriter/internal/encoding"
	"github.com/turbot/tailwriter/internal/error_helpers"
	"github.com/turbot/tailwriter/internal/logger"
	"github.com/turbot/tailwriter/internal/metrics"
	"github.com/turbot/tailwriter/internal/record"
	"github.com/turbot/tailwriter/internal/stage"
)

// lines longer than this are rejected
const maxLineSize = 16 * 1024 * 1024

func writeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write [flags] [file ...]",
		Args:  cobra.ArbitraryArgs,
		Run:   runWriteCmd,
		Short: "Write JSON lines records into time partitioned files",
		Long: `Write JSON lines records into time partitioned files.

Records are read from the given files, or stdin if none are given, and routed through a writer stage
in batches. All open files are finalized when the input ends or the command is interrupted.

Examples:

	# Write records using a stage config
	tailwriter write --config stage.hcl events.jsonl

	# Write records from stdin partitioned by their ts field
	cat events.jsonl | tailwriter write --dir-template '/data/${YYYY}/${MM}/${DD}' --time-driver field:ts

	# Expose prometheus metrics while writing
	tailwriter write --config stage.hcl --metrics-listen :9100 events.jsonl`,
	}

	cmdconfig.OnCmd(cmd).
		AddStringFlag(constants.ArgDirTemplate, "", "Directory template, overriding the config file").
		AddStringFlag(constants.ArgTimeDriver, "", "Time driver, 'now' or 'field:<name>', overriding the config file").
		AddStringFlag(constants.ArgFormat, "", "Output format, overriding the config file").
		AddStringFlag(constants.ArgCompression, "", "Compression, overriding the config file").
		AddStringFlag(constants.ArgUniquePrefix, "", "File name prefix, overriding the config file").
		AddInt64Flag(constants.ArgMaxRecords, 0, "Maximum records per file, overriding the config file").
		AddIntFlag(constants.ArgBatchSize, constants.DefaultBatchSize, "Number of records per batch").
		AddStringFlag(constants.ArgErrorFile, "", "Write diverted records to this file as JSON lines").
		AddStringFlag(constants.ArgMetricsListen, "", "Serve prometheus metrics on this address").
		AddStringFlag(constants.ArgCPUProfile, "", "Write a CPU profile to this directory")

	return cmd
}

func runWriteCmd(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = error_helpers.ToError(r)
		}

		if err != nil {
			if error_helpers.IsCancelledError(err) {
				fmt.Println("Write cancelled.") //nolint:forbidigo // ui output
			} else {
				error_helpers.ShowError(err)
			}
			setExitCodeForError(err)
		}
	}()

	err = doWrite(ctx, args)
}

func doWrite(ctx context.Context, args []string) (err error) {
	if dir := viper.GetString(constants.ArgCPUProfile); dir != "" {
		stop, err := logger.StartCPUProfile(dir, "write")
		if err != nil {
			return err
		}
		defer stop()
	}

	c, err := stageConfig()
	if err != nil {
		return err
	}

	var opts []stage.StageOption
	if addr := viper.GetString(constants.ArgMetricsListen); addr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, stage.WithMetrics(metrics.NewPrometheus(reg, "")))
		stopServer := serveMetrics(addr, reg)
		defer stopServer()
	}

	s := stage.New(c, opts...)
	if err := s.Init(ctx); err != nil {
		return err
	}
	// finalize whatever has been written, even if writing was cancelled
	defer func() {
		destroyErr := s.Destroy(context.WithoutCancel(ctx))
		err = errors.Join(err, destroyErr)
		status := s.Status()
		fmt.Println(status.String()) //nolint:forbidigo // ui output
	}()

	batchSize := viper.GetInt(constants.ArgBatchSize)
	if batchSize < 1 {
		batchSize = constants.DefaultBatchSize
	}
	showProgress := isatty.IsTerminal(os.Stdout.Fd())

	return readInputs(ctx, args, batchSize, func(batch []*record.Record) error {
		report, err := s.Write(ctx, batch)
		if err != nil {
			return err
		}
		if showProgress {
			fmt.Printf("\r%s records written", humanize.Comma(s.Status().Written)) //nolint:forbidigo // ui output
		}
		slog.Debug("batch written", "records", len(batch), "report", report.String())
		return nil
	})
}

// readInputs reads JSON lines records from each file in turn, or stdin if there are none, and passes
// them to fn in batches
func readInputs(ctx context.Context, files []string, batchSize int, fn func([]*record.Record) error) error {
	batch := make([]*record.Record, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := fn(batch)
		batch = make([]*record.Record, 0, batchSize)
		return err
	}
	add := func(rec *record.Record) error {
		batch = append(batch, rec)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	}

	if len(files) == 0 {
		if err := readJSONLines(ctx, "stdin", os.Stdin, add); err != nil {
			return err
		}
		return flush()
	}
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		err = readJSONLines(ctx, name, f, add)
		_ = f.Close()
		if err != nil {
			return err
		}
	}
	return flush()
}

// readJSONLines parses each line of r as a record. Lines which are not JSON objects are skipped with a
// warning.
func readJSONLines(ctx context.Context, name string, r io.Reader, fn func(*record.Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		rec, err := encoding.UnmarshalRecord(scanner.Bytes())
		if err != nil {
			error_helpers.ShowWarning(fmt.Sprintf("%s:%d: skipping invalid record: %s", name, line, err))
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	return nil
}

// serveMetrics serves the registry on addr until the returned function is called
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "address", addr, "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
