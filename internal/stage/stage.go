// Package stage is the writer stage as seen by a host pipeline: Init once, Write each batch, Destroy at
// shutdown.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/turbot/tailwriter/internal/clock"
	"github.com/turbot/tailwriter/internal/config"
	"github.com/turbot/tailwriter/internal/constants"
	"github.com/turbot/tailwriter/internal/errorsink"
	"github.com/turbot/tailwriter/internal/filesystem"
	"github.com/turbot/tailwriter/internal/metrics"
	"github.com/turbot/tailwriter/internal/partition"
	"github.com/turbot/tailwriter/internal/record"
	"github.com/turbot/tailwriter/internal/router"
	"github.com/turbot/tailwriter/internal/writer"
)

var (
	ErrNotInitialized = errors.New("stage is not initialized")
	// ErrStageFailed is returned by Write after a fatal error
	ErrStageFailed = errors.New("stage has failed")
)

type Stage struct {
	config *config.StageConfig

	fs       filesystem.FileSystem
	clock    clock.Clock
	sink     errorsink.Sink
	ownsSink bool
	metrics  metrics.Collector
	// observers added to the writer cache on Init
	observers []writer.Observer

	// mutex serialises batches
	mutex    sync.Mutex
	settings *config.Settings
	cache    *writer.Cache
	router   *router.Router
	status   *statusTracker
	failed   error
}

type StageOption func(*Stage)

// WithFileSystem sets the filesystem artifacts are written to. By default the OS filesystem is used.
// Renames and removes are retried according to the stage config in either case.
func WithFileSystem(fs filesystem.FileSystem) StageOption {
	return func(s *Stage) {
		s.fs = fs
	}
}

func WithClock(clk clock.Clock) StageOption {
	return func(s *Stage) {
		s.clock = clk
	}
}

// WithErrorSink overrides the error sink of the stage config. The sink is not closed by Destroy.
func WithErrorSink(sink errorsink.Sink) StageOption {
	return func(s *Stage) {
		s.sink = sink
	}
}

func WithMetrics(m metrics.Collector) StageOption {
	return func(s *Stage) {
		s.metrics = m
	}
}

// WithRotationObserver registers an observer for every rotation of the stage's writers
func WithRotationObserver(o writer.Observer) StageOption {
	return func(s *Stage) {
		s.observers = append(s.observers, o)
	}
}

func New(c *config.StageConfig, opts ...StageOption) *Stage {
	s := &Stage{
		config:  c,
		clock:   clock.Real{},
		metrics: metrics.NewNop(),
		status:  newStatusTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init validates the config and builds the stage. Any error is a configuration error and no record
// has been written.
func (s *Stage) Init(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.cache != nil {
		return errors.New("stage is already initialized")
	}

	settings, err := s.config.Settings()
	if err != nil {
		return err
	}

	base := s.fs
	if base == nil {
		base = filesystem.NewOsFS()
	}
	// assigned to s.fs only once Init succeeds
	fs := filesystem.NewRetrying(base, settings.RenameRetries, constants.DefaultRetryBackoff)

	if err := checkBaseDirs(ctx, fs, settings); err != nil {
		return err
	}

	if s.sink == nil {
		sink, err := newErrorSink(settings.ErrorSink)
		if err != nil {
			return fmt.Errorf("failed to create error sink: %w", err)
		}
		s.sink = sink
		s.ownsSink = true
	}

	observers := append([]writer.Observer{s.status, metricsObserver(s.metrics)}, s.observers...)
	cache, err := writer.NewCache(fs, settings.Factory,
		writer.NewNameProvider(settings.UniquePrefix, settings.Factory.Extension()),
		writer.WithClock(s.clock),
		writer.WithMaxRecords(settings.MaxRecords),
		writer.WithMaxFileSize(settings.MaxFileSize),
		writer.WithMaxOpenTime(settings.MaxOpenTime),
		writer.WithIdleTimeout(settings.IdleTimeout),
		writer.WithMaxOpenFiles(settings.MaxOpenFiles),
		writer.WithOperationTimeout(settings.OperationTimeout),
		writer.WithRecoverTempFiles(settings.RecoverTempFiles),
		writer.WithObservers(observers...),
	)
	if err != nil {
		return s.abortInit(fmt.Errorf("failed to create writer cache: %w", err))
	}

	r, err := router.NewRouter(settings.Resolver, cache, s.sink,
		router.WithClock(s.clock),
		router.WithMetrics(s.metrics),
		router.WithLateCutoff(settings.LateRecordsLimit),
		router.WithLatePolicy(settings.LatePolicy, settings.LateResolver),
	)
	if err != nil {
		return s.abortInit(fmt.Errorf("failed to create router: %w", err))
	}

	// the sweeper outlives Init, so it must not be bound to the Init context
	cache.StartSweeper(context.WithoutCancel(ctx), settings.SweepInterval)

	s.fs, s.settings, s.cache, s.router = fs, settings, cache, r
	slog.Info("stage initialized", "dir_template", s.config.DirTemplate, "format", settings.Factory.Options().Format, "compression", settings.Factory.Options().Compression)
	return nil
}

// checkBaseDirs creates the static directory prefix of each template, failing if it is unreachable
func checkBaseDirs(ctx context.Context, fs filesystem.FileSystem, settings *config.Settings) error {
	templates := []string{settings.Resolver.Template()}
	if settings.LateResolver != nil && settings.LateResolver != settings.Resolver {
		templates = append(templates, settings.LateResolver.Template())
	}
	for _, t := range templates {
		dir := partition.StaticDir(t)
		if err := fs.MkdirAll(ctx, dir); err != nil {
			return fmt.Errorf("base directory %s is not reachable: %w", dir, err)
		}
	}
	return nil
}

func (s *Stage) abortInit(err error) error {
	if s.ownsSink {
		_ = s.sink.Close()
		s.sink = nil
		s.ownsSink = false
	}
	return err
}

// Write routes a batch. The report is returned even if a fatal error occurs, and covers the records
// processed up to the failure. After a fatal error every subsequent Write fails with ErrStageFailed.
func (s *Stage) Write(ctx context.Context, batch []*record.Record) (*router.RouteReport, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.router == nil {
		return nil, ErrNotInitialized
	}
	if s.failed != nil {
		return nil, fmt.Errorf("%w: %w", ErrStageFailed, s.failed)
	}

	report, err := s.router.Route(ctx, batch)
	if report != nil {
		s.status.addReport(report)
	}
	if err != nil {
		s.failed = err
		slog.Error("stage write failed", "error", err)
		return report, err
	}
	return report, nil
}

// Destroy rotates every open writer and releases the error sink. Handles with no records are removed
// without leaving an artifact. Destroy on a stage which was never initialized does nothing.
func (s *Stage) Destroy(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.cache == nil {
		return nil
	}

	var errs []error
	if err := s.cache.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.ownsSink {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close error sink: %w", err))
		}
		s.ownsSink = false
	}
	s.metrics.SetOpenHandles(0)

	status := s.status.get()
	slog.Info("stage destroyed", "status", status.String())
	return errors.Join(errs...)
}

// Status returns the running totals of the stage
func (s *Stage) Status() Status {
	return s.status.get()
}

// ErrorSink returns the sink diverted records are sent to
func (s *Stage) ErrorSink() errorsink.Sink {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.sink
}
