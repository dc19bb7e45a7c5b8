package encoding

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/turbot/tailwriter/internal/record"
)

type Format string

const (
	FormatText     Format = "TEXT"
	FormatJSON     Format = "JSON"
	FormatAvro     Format = "AVRO"
	FormatSequence Format = "SEQUENCE_FILE"
	FormatParquet  Format = "PARQUET"
)

var Formats = []Format{FormatText, FormatJSON, FormatAvro, FormatSequence, FormatParquet}

type Compression string

const (
	CompressionNone    Compression = "NONE"
	CompressionGzip    Compression = "GZIP"
	CompressionDeflate Compression = "DEFLATE"
	CompressionZstd    Compression = "ZSTD"
	CompressionSnappy  Compression = "SNAPPY"
	CompressionLZ4     Compression = "LZ4"
)

// SequenceCompressionType controls whether a sequence file compresses each record, or blocks of records
type SequenceCompressionType string

const (
	SequenceRecord SequenceCompressionType = "RECORD"
	SequenceBlock  SequenceCompressionType = "BLOCK"
)

var ErrUnsupportedCompression = errors.New("unsupported compression")

// the compressions each format supports. Text and JSON wrap the whole stream, the other formats
// compress internally.
var supportedCompression = map[Format][]Compression{
	FormatText:     {CompressionNone, CompressionGzip, CompressionZstd, CompressionSnappy, CompressionLZ4},
	FormatJSON:     {CompressionNone, CompressionGzip, CompressionZstd, CompressionSnappy, CompressionLZ4},
	FormatAvro:     {CompressionNone, CompressionDeflate, CompressionSnappy, CompressionZstd},
	FormatSequence: {CompressionNone, CompressionDeflate, CompressionGzip, CompressionZstd},
	FormatParquet:  {CompressionNone, CompressionGzip, CompressionZstd, CompressionSnappy, CompressionLZ4},
}

// Encoder writes records to a single artifact
type Encoder interface {
	// Encode writes a record. If the record cannot be represented in the format a *RecordError is
	// returned and nothing is written. Any other error is an I/O failure of the underlying writer.
	Encode(rec *record.Record) error
	// Flush pushes buffered data to the underlying writer
	Flush() error
	// Close writes any trailer and flushes. It does not close the underlying writer.
	Close() error
}

// Buffering is implemented by encoders that hold encoded records before they reach the underlying
// writer. Buffered returns the size of that data, measured before any block compression.
// Parquet buffers the whole file as JSON until Close, so its size is an estimate of the final artifact.
type Buffering interface {
	Buffered() int64
}

// Decoder reads records back from an artifact. Decode returns io.EOF when there are no more records.
type Decoder interface {
	Decode() (*record.Record, error)
	Close() error
}

type Options struct {
	Format      Format
	Compression Compression
	// Fields is the column order for TEXT. If empty the order of each record's own fields is used.
	Fields []string
	// Delimiter separates TEXT columns
	Delimiter rune
	// Header writes a header line with the column names at the top of each TEXT file
	Header bool
	// AvroSchema is the JSON Avro schema, required for AVRO
	AvroSchema string
	// SequenceCompressionType applies to compressed SEQUENCE_FILE output
	SequenceCompressionType SequenceCompressionType
	// SyncInterval is the number of records between sequence file sync markers, or records per block
	SyncInterval int
	// ScratchDir is the local directory PARQUET stages its intermediate files in
	ScratchDir string
}

// Factory creates encoders and decoders for one validated (format, compression) pair
type Factory struct {
	opts       Options
	avroSchema avroSchema
}

func NewFactory(opts Options) (*Factory, error) {
	return newFactory(opts, true)
}

// newFactory validates opts. A factory built without the Avro schema can only decode, as Avro
// artifacts embed their schema.
func newFactory(opts Options, parseSchema bool) (*Factory, error) {
	opts.Format = Format(strings.ToUpper(string(opts.Format)))
	if opts.Compression == "" {
		opts.Compression = CompressionNone
	}
	opts.Compression = Compression(strings.ToUpper(string(opts.Compression)))

	supported, ok := supportedCompression[opts.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q", opts.Format)
	}
	if !slices.Contains(supported, opts.Compression) {
		return nil, fmt.Errorf("%w %q for format %s", ErrUnsupportedCompression, opts.Compression, opts.Format)
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.SequenceCompressionType == "" {
		opts.SequenceCompressionType = SequenceBlock
	}
	if opts.SequenceCompressionType != SequenceRecord && opts.SequenceCompressionType != SequenceBlock {
		return nil, fmt.Errorf("unsupported sequence compression type %q", opts.SequenceCompressionType)
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = 100
	}

	f := &Factory{opts: opts}
	if opts.Format == FormatAvro && parseSchema {
		s, err := parseAvroSchema(opts.AvroSchema)
		if err != nil {
			return nil, err
		}
		f.avroSchema = s
	}
	return f, nil
}

func (f *Factory) Options() Options {
	return f.opts
}

// Extension returns the file extension of artifacts, including the compression extension for formats
// which compress the whole stream
func (f *Factory) Extension() string {
	var ext string
	switch f.opts.Format {
	case FormatText:
		ext = ".csv"
	case FormatJSON:
		ext = ".json"
	case FormatAvro:
		return ".avro"
	case FormatSequence:
		return ".seq"
	case FormatParquet:
		return ".parquet"
	}
	return ext + compressionExtension(f.opts.Compression)
}

// NewEncoder returns an encoder writing to w
func (f *Factory) NewEncoder(w io.Writer) (Encoder, error) {
	switch f.opts.Format {
	case FormatText, FormatJSON:
		cw, err := newCompressWriter(w, f.opts.Compression)
		if err != nil {
			return nil, err
		}
		if f.opts.Format == FormatText {
			return newTextEncoder(cw, f.opts), nil
		}
		return newJSONEncoder(cw), nil
	case FormatAvro:
		return newAvroEncoder(w, f.avroSchema, f.opts)
	case FormatSequence:
		return newSequenceEncoder(w, f.opts)
	case FormatParquet:
		return newParquetEncoder(w, f.opts)
	}
	return nil, fmt.Errorf("unsupported format %q", f.opts.Format)
}

// NewDecoder returns a decoder reading an artifact written by an encoder of this factory
func (f *Factory) NewDecoder(r io.Reader) (Decoder, error) {
	switch f.opts.Format {
	case FormatText, FormatJSON:
		cr, err := newCompressReader(r, f.opts.Compression)
		if err != nil {
			return nil, err
		}
		if f.opts.Format == FormatText {
			return newTextDecoder(cr, f.opts), nil
		}
		return newJSONDecoder(cr), nil
	case FormatAvro:
		return newAvroDecoder(r)
	case FormatSequence:
		return newSequenceDecoder(r)
	case FormatParquet:
		return newParquetDecoder(r, f.opts)
	}
	return nil, fmt.Errorf("unsupported format %q", f.opts.Format)
}

// RecordError is returned by Encode when a record cannot be encoded
type RecordError struct {
	Err error
}

func NewRecordError(err error) *RecordError {
	return &RecordError{Err: err}
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record cannot be encoded: %s", e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// IsRecordError reports whether err is a per-record encoding failure
func IsRecordError(err error) bool {
	var recordErr *RecordError
	return errors.As(err, &recordErr)
}
