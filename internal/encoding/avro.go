package encoding

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"
	"github.com/turbot/tailwriter/internal/record"
)

type avroSchema struct {
	schema avro.Schema
	record *avro.RecordSchema
}

func parseAvroSchema(s string) (avroSchema, error) {
	if s == "" {
		return avroSchema{}, errors.New("an avro schema is required for the AVRO format")
	}
	schema, err := avro.Parse(s)
	if err != nil {
		return avroSchema{}, fmt.Errorf("invalid avro schema: %w", err)
	}
	rs, ok := schema.(*avro.RecordSchema)
	if !ok {
		return avroSchema{}, fmt.Errorf("avro schema must be a record, got %s", schema.Type())
	}
	return avroSchema{schema: schema, record: rs}, nil
}

func avroCodec(c Compression) ocf.CodecName {
	switch c {
	case CompressionDeflate:
		return ocf.Deflate
	case CompressionSnappy:
		return ocf.Snappy
	case CompressionZstd:
		return ocf.ZStandard
	}
	return ocf.Null
}

// avroEncoder writes an Avro object container file: a header with the embedded schema followed by
// blocks of SyncInterval records, each compressed with the configured codec
type avroEncoder struct {
	s           avroSchema
	enc         *ocf.Encoder
	blockLength int
	// records and encoded bytes in the block the container encoder is holding
	pending     int
	pendingSize int64
}

func newAvroEncoder(w io.Writer, s avroSchema, opts Options) (*avroEncoder, error) {
	enc, err := ocf.NewEncoder(s.schema.String(), w,
		ocf.WithCodec(avroCodec(opts.Compression)),
		ocf.WithBlockLength(opts.SyncInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro encoder: %w", err)
	}
	return &avroEncoder{s: s, enc: enc, blockLength: opts.SyncInterval}, nil
}

func (e *avroEncoder) Encode(rec *record.Record) error {
	datum, err := avroDatum(e.s.record, rec)
	if err != nil {
		return NewRecordError(err)
	}
	// the container encoder buffers a block; validate first so a bad record never reaches it
	encoded, err := avro.Marshal(e.s.schema, datum)
	if err != nil {
		return NewRecordError(err)
	}
	if err := e.enc.Encode(datum); err != nil {
		return err
	}
	e.pending++
	e.pendingSize += int64(len(encoded))
	if e.pending >= e.blockLength {
		// the container encoder has written the block
		e.pending, e.pendingSize = 0, 0
	}
	return nil
}

func (e *avroEncoder) Buffered() int64 {
	return e.pendingSize
}

func (e *avroEncoder) Flush() error {
	e.pending, e.pendingSize = 0, 0
	return e.enc.Flush()
}

func (e *avroEncoder) Close() error {
	return e.enc.Close()
}

// avroDatum converts a record to a map matching the schema
func avroDatum(schema *avro.RecordSchema, rec *record.Record) (map[string]any, error) {
	datum := make(map[string]any, len(schema.Fields()))
	for _, field := range schema.Fields() {
		v, ok := rec.Get(field.Name())
		if !ok || v == nil {
			if field.HasDefault() {
				datum[field.Name()] = field.Default()
				continue
			}
			if isNullable(field.Type()) {
				datum[field.Name()] = nil
				continue
			}
			return nil, fmt.Errorf("missing value for field %q", field.Name())
		}
		nv, err := avroValue(field.Type(), v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name(), err)
		}
		datum[field.Name()] = nv
	}
	return datum, nil
}

func isNullable(s avro.Schema) bool {
	if s.Type() == avro.Null {
		return true
	}
	u, ok := s.(*avro.UnionSchema)
	return ok && u.Nullable()
}

// avroValue converts a record value to the Go type the avro library expects for schema s
func avroValue(s avro.Schema, v any) (any, error) {
	switch s.Type() {
	case avro.Null:
		if v != nil {
			return nil, fmt.Errorf("expected null, got %T", v)
		}
		return nil, nil
	case avro.Union:
		if v == nil {
			return nil, nil
		}
		var errs []error
		for _, t := range s.(*avro.UnionSchema).Types() {
			if t.Type() == avro.Null {
				continue
			}
			nv, err := avroValue(t, v)
			if err == nil {
				return nv, nil
			}
			errs = append(errs, err)
		}
		return nil, fmt.Errorf("value matches no union member: %w", errors.Join(errs...))
	case avro.Boolean:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			return strconv.ParseBool(t)
		}
	case avro.Int:
		if isLogical(s, avro.Date) {
			t, err := record.ParseTime(v)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%d overflows int", n)
		}
		return int(n), nil
	case avro.Long:
		if isLogical(s, avro.TimestampMillis) || isLogical(s, avro.TimestampMicros) {
			t, err := record.ParseTime(v)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
		return toInt64(v)
	case avro.Float:
		f, err := toFloat64(v)
		return float32(f), err
	case avro.Double:
		return toFloat64(v)
	case avro.String:
		switch t := v.(type) {
		case string:
			return t, nil
		case []byte:
			return string(t), nil
		case time.Time:
			return t.Format(time.RFC3339Nano), nil
		case json.Number:
			return t.String(), nil
		}
	case avro.Bytes:
		switch t := v.(type) {
		case []byte:
			return t, nil
		case string:
			return []byte(t), nil
		}
	default:
		// complex types are validated by the library
		return v, nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, s.Type())
}

func isLogical(s avro.Schema, lt avro.LogicalType) bool {
	ps, ok := s.(*avro.PrimitiveSchema)
	if !ok || ps.Logical() == nil {
		return false
	}
	return ps.Logical().Type() == lt
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint32:
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%v is not an integer", t)
		}
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		return strconv.ParseInt(t, 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to an integer", v)
}

func toFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(t, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to a number", v)
}

type avroDecoder struct {
	dec   *ocf.Decoder
	names []string
}

func newAvroDecoder(r io.Reader) (*avroDecoder, error) {
	dec, err := ocf.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read avro container: %w", err)
	}
	d := &avroDecoder{dec: dec}
	if s, err := parseAvroSchema(string(dec.Metadata()["avro.schema"])); err == nil {
		for _, f := range s.record.Fields() {
			d.names = append(d.names, f.Name())
		}
	}
	return d, nil
}

func (d *avroDecoder) Decode() (*record.Record, error) {
	if !d.dec.HasNext() {
		if err := d.dec.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	var m map[string]any
	if err := d.dec.Decode(&m); err != nil {
		return nil, err
	}
	return record.FromMap(m, d.names...), nil
}

func (d *avroDecoder) Close() error {
	return nil
}
