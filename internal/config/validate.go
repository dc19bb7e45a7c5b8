package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/turbot/tailwriter/internal/constants"
	"github.com/turbot/tailwriter/internal/encoding"
	"github.com/turbot/tailwriter/internal/partition"
	"github.com/turbot/tailwriter/internal/router"
)

// ValidationError lists every problem found in a stage config
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("invalid stage config: %s", strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

// Settings is a validated stage config, with durations parsed and the resolvers and encoder factory built
type Settings struct {
	Resolver     *partition.Resolver
	LateResolver *partition.Resolver
	Factory      *encoding.Factory
	UniquePrefix string

	MaxRecords   int64
	MaxFileSize  int64
	MaxOpenTime  time.Duration
	IdleTimeout  time.Duration
	MaxOpenFiles int

	LateRecordsLimit time.Duration
	LatePolicy       router.LatePolicy

	OperationTimeout time.Duration
	RenameRetries    int
	RecoverTempFiles bool
	SweepInterval    time.Duration

	ErrorSink ErrorSinkConfig
}

// Validate returns a *ValidationError if the config is invalid
func (c *StageConfig) Validate() error {
	_, err := c.Settings()
	return err
}

// Settings validates the config and returns the settings derived from it.
// Any error is a *ValidationError.
func (c *StageConfig) Settings() (*Settings, error) {
	v := &validator{}
	s := &Settings{
		UniquePrefix:     c.UniquePrefix,
		MaxRecords:       v.nonNegative("max_records", c.MaxRecords),
		MaxFileSize:      v.nonNegative("max_file_size", c.MaxFileSize),
		MaxOpenTime:      v.duration("max_open_time", c.MaxOpenTime),
		IdleTimeout:      v.duration("idle_timeout", c.IdleTimeout),
		LateRecordsLimit: v.duration("late_records_limit", c.LateRecordsLimit),
		OperationTimeout: v.duration("operation_timeout", c.OperationTimeout),
		SweepInterval:    v.duration("sweep_interval", c.SweepInterval),
		RecoverTempFiles: c.RecoverTempFiles,
	}
	if c.MaxOpenFiles < 1 {
		v.add("max_open_files must be at least 1")
	}
	s.MaxOpenFiles = c.MaxOpenFiles
	if c.RenameRetries != nil {
		if *c.RenameRetries < 0 {
			v.add("rename_retries cannot be negative")
		}
		s.RenameRetries = *c.RenameRetries
	}
	if strings.HasPrefix(c.UniquePrefix, constants.TempFilePrefix) {
		v.add("unique_prefix must not start with %q", constants.TempFilePrefix)
	}

	policy, err := router.ParseLatePolicy(c.LateRecordsAction)
	v.check(err)
	s.LatePolicy = policy

	s.Resolver, s.LateResolver = c.resolvers(v, policy)

	factory, err := encoding.NewFactory(encoding.Options{
		Format:                  encoding.Format(c.Format),
		Compression:             encoding.Compression(c.Compression),
		Fields:                  c.Fields,
		Delimiter:               c.delimiter(v),
		Header:                  c.Header,
		AvroSchema:              c.AvroSchema,
		SequenceCompressionType: encoding.SequenceCompressionType(c.SequenceCompressionType),
		SyncInterval:            c.SyncInterval,
	})
	v.check(err)
	s.Factory = factory

	if c.ErrorSink != nil {
		c.ErrorSink.validate(v)
		s.ErrorSink = *c.ErrorSink
	} else {
		s.ErrorSink = ErrorSinkConfig{Type: ErrorSinkMemory}
	}

	if len(v.problems) > 0 {
		return nil, &ValidationError{Problems: v.problems}
	}
	return s, nil
}

func (c *StageConfig) resolvers(v *validator, policy router.LatePolicy) (*partition.Resolver, *partition.Resolver) {
	var opts []partition.ResolverOption
	timeField, err := ParseTimeDriver(c.TimeDriver)
	v.check(err)
	if timeField != "" {
		opts = append(opts, partition.WithTimeField(timeField))
	}
	if c.TimeZone != "" {
		loc, err := time.LoadLocation(c.TimeZone)
		if err != nil {
			v.add("invalid time_zone %q: %s", c.TimeZone, err)
		} else {
			opts = append(opts, partition.WithLocation(loc))
		}
	}
	if c.FallbackDir != "" {
		opts = append(opts, partition.WithFallbackDir(c.FallbackDir))
	}

	if c.DirTemplate == "" {
		v.add("dir_template is required")
		return nil, nil
	}
	resolver, err := partition.NewResolver(c.DirTemplate, opts...)
	if err != nil {
		v.check(err)
		return nil, nil
	}
	if policy != router.SendToLateRecordsFile {
		return resolver, nil
	}
	if c.LateRecordsDirTemplate == "" || c.LateRecordsDirTemplate == c.DirTemplate {
		return resolver, resolver
	}
	lateResolver, err := partition.NewResolver(c.LateRecordsDirTemplate, opts...)
	if err != nil {
		v.add("invalid late_records_dir_template: %s", err)
	}
	return resolver, lateResolver
}

func (c *StageConfig) delimiter(v *validator) rune {
	if c.Delimiter == "" {
		return 0
	}
	r := []rune(c.Delimiter)
	if len(r) != 1 {
		v.add("delimiter must be a single character, got %q", c.Delimiter)
		return 0
	}
	return r[0]
}

func (e *ErrorSinkConfig) validate(v *validator) {
	switch e.Type {
	case ErrorSinkMemory:
	case ErrorSinkFile:
		if e.Path == "" {
			v.add("error_sink \"file\" requires a path")
		}
	case ErrorSinkAMQP:
		if e.URL == "" || e.Queue == "" {
			v.add("error_sink \"amqp\" requires a url and a queue")
		}
	default:
		v.add("unknown error_sink type %q, expected one of %s, %s, %s", e.Type, ErrorSinkMemory, ErrorSinkFile, ErrorSinkAMQP)
	}
}

// ParseTimeDriver returns the record field holding the event time, or "" if the stage time is used.
// The field is given as "field:<name>"; a leading / on the name is ignored.
func ParseTimeDriver(driver string) (string, error) {
	switch {
	case driver == "" || strings.EqualFold(driver, constants.TimeDriverNow):
		return "", nil
	case strings.HasPrefix(driver, constants.TimeDriverFieldPrefix):
		field := strings.TrimPrefix(strings.TrimPrefix(driver, constants.TimeDriverFieldPrefix), "/")
		if field == "" {
			return "", errors.New("time_driver field name is empty")
		}
		return field, nil
	default:
		return "", fmt.Errorf("invalid time_driver %q, expected %q or %q", driver, constants.TimeDriverNow, constants.TimeDriverFieldPrefix+"<name>")
	}
}

// validator collects problems
type validator struct {
	problems []error
}

func (v *validator) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Errorf(format, args...))
}

func (v *validator) check(err error) {
	if err != nil {
		v.problems = append(v.problems, err)
	}
}

func (v *validator) duration(name, value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		v.add("invalid %s: %s", name, err)
		return 0
	}
	if d < 0 {
		v.add("%s cannot be negative", name)
		return 0
	}
	return d
}

func (v *validator) nonNegative(name string, value int64) int64 {
	if value < 0 {
		v.add("%s cannot be negative", name)
		return 0
	}
	return value
}
