package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/turbot/tailwriter/internal/constants"
)

/*
StageConfig is the configuration of a writer stage, as given in a stage config file:

	dir_template        = "/data/${YYYY}/${MM}/${DD}"
	time_driver         = "field:ts"
	format              = "avro"
	compression         = "snappy"
	avro_schema         = file("event.avsc")
	max_records         = 100000
	late_records_limit  = "1h"
	late_records_action = "SEND_TO_ERROR"

	error_sink "file" {
	  path = "/var/log/tailwriter/errors.jsonl"
	}

Durations are Go duration strings. Unset values take the defaults in package constants.
*/
type StageConfig struct {
	// partitioning
	DirTemplate string `hcl:"dir_template"`
	TimeDriver  string `hcl:"time_driver,optional"`
	TimeZone    string `hcl:"time_zone,optional"`
	FallbackDir string `hcl:"fallback_dir,optional"`

	// artifacts
	UniquePrefix            string   `hcl:"unique_prefix,optional"`
	Format                  string   `hcl:"format,optional"`
	Compression             string   `hcl:"compression,optional"`
	Fields                  []string `hcl:"fields,optional"`
	Delimiter               string   `hcl:"delimiter,optional"`
	Header                  bool     `hcl:"header,optional"`
	AvroSchema              string   `hcl:"avro_schema,optional"`
	SequenceCompressionType string   `hcl:"sequence_compression_type,optional"`
	SyncInterval            int      `hcl:"sync_interval,optional"`

	// rotation
	MaxRecords   int64  `hcl:"max_records,optional"`
	MaxFileSize  int64  `hcl:"max_file_size,optional"` // includes data an encoder holds in an unwritten block
	MaxOpenTime  string `hcl:"max_open_time,optional"`
	IdleTimeout  string `hcl:"idle_timeout,optional"`
	MaxOpenFiles int    `hcl:"max_open_files,optional"`

	// late records
	LateRecordsLimit       string `hcl:"late_records_limit,optional"`
	LateRecordsAction      string `hcl:"late_records_action,optional"`
	LateRecordsDirTemplate string `hcl:"late_records_dir_template,optional"`

	// filesystem
	OperationTimeout string `hcl:"operation_timeout,optional"`
	RenameRetries    *int   `hcl:"rename_retries,optional"`
	RecoverTempFiles bool   `hcl:"recover_temp_files,optional"`
	SweepInterval    string `hcl:"sweep_interval,optional"`

	ErrorSink *ErrorSinkConfig `hcl:"error_sink,block"`
}

// ErrorSinkConfig selects where diverted records are sent. Type is one of memory, file or amqp.
type ErrorSinkConfig struct {
	Type string `hcl:"type,label"`

	// file
	Path string `hcl:"path,optional"`

	// amqp
	URL   string `hcl:"url,optional"`
	Queue string `hcl:"queue,optional"`
}

const (
	ErrorSinkMemory = "memory"
	ErrorSinkFile   = "file"
	ErrorSinkAMQP   = "amqp"
)

// Default returns a config with every optional value set to its default
func Default(dirTemplate string) *StageConfig {
	c := &StageConfig{DirTemplate: dirTemplate}
	c.SetDefaults()
	return c
}

// SetDefaults fills in unset optional values
func (c *StageConfig) SetDefaults() {
	setDefault(&c.TimeDriver, constants.TimeDriverNow)
	setDefault(&c.TimeZone, constants.DefaultTimeZone)
	setDefault(&c.UniquePrefix, constants.DefaultUniquePrefix)
	setDefault(&c.Format, "JSON")
	setDefault(&c.Compression, "NONE")
	setDefault(&c.MaxOpenTime, constants.DefaultMaxOpenTime.String())
	setDefault(&c.IdleTimeout, constants.DefaultIdleTimeout.String())
	setDefault(&c.LateRecordsLimit, constants.DefaultLateRecordsLimit.String())
	setDefault(&c.LateRecordsAction, "SEND_TO_ERROR")
	setDefault(&c.OperationTimeout, constants.DefaultOperationTimeout.String())
	if c.MaxOpenFiles == 0 {
		c.MaxOpenFiles = constants.DefaultMaxOpenFiles
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = constants.DefaultSequenceSyncEvery
	}
	if c.RenameRetries == nil {
		retries := constants.DefaultRenameRetries
		c.RenameRetries = &retries
	}
	if c.ErrorSink == nil {
		c.ErrorSink = &ErrorSinkConfig{Type: ErrorSinkMemory}
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Load decodes a stage config file and applies defaults. The file is not validated.
func Load(path string) (*StageConfig, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage config: %w", err)
	}
	return parse(path, src, filepath.Dir(path))
}

// Parse decodes stage config HCL. filename is used for diagnostics and must end in .hcl; relative paths
// given to file() are resolved against the working directory.
func Parse(filename string, src []byte) (*StageConfig, error) {
	return parse(filename, src, ".")
}

func parse(filename string, src []byte, baseDir string) (*StageConfig, error) {
	var c StageConfig
	if err := hclsimple.Decode(filename, src, evalContext(baseDir), &c); err != nil {
		return nil, fmt.Errorf("failed to parse stage config %s: %w", filename, err)
	}
	c.SetDefaults()
	return &c, nil
}
