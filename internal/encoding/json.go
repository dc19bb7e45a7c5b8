package encoding

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/turbot/tailwriter/internal/record"
)

// jsonEncoder writes one JSON object per line, preserving field order
type jsonEncoder struct {
	cw  compressWriter
	buf bytes.Buffer
}

func newJSONEncoder(cw compressWriter) *jsonEncoder {
	return &jsonEncoder{cw: cw}
}

func (e *jsonEncoder) Encode(rec *record.Record) error {
	e.buf.Reset()
	if err := appendJSONObject(&e.buf, rec); err != nil {
		return NewRecordError(err)
	}
	e.buf.WriteByte('\n')
	_, err := e.cw.Write(e.buf.Bytes())
	return err
}

func (e *jsonEncoder) Flush() error {
	return e.cw.Flush()
}

func (e *jsonEncoder) Close() error {
	return e.cw.Close()
}

// appendJSONObject writes rec as a JSON object with its fields in record order
func appendJSONObject(buf *bytes.Buffer, rec *record.Record) error {
	buf.WriteByte('{')
	for i, f := range rec.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return nil
}

// MarshalRecord returns the JSON object for a record
func MarshalRecord(rec *record.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendJSONObject(&buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalRecord parses a JSON object into a record. Integral numbers are decoded as int64, other
// numbers as float64, and fields are ordered by name.
func UnmarshalRecord(data []byte) (*record.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	for k, v := range m {
		n, err := normalizeNumbers(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		m[k] = n
	}
	return record.FromMap(m), nil
}

// normalizeNumbers replaces json.Number values, at any depth, with int64 or float64
func normalizeNumbers(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return i, nil
		}
		return strconv.ParseFloat(t.String(), 64)
	case map[string]any:
		for k, fv := range t {
			n, err := normalizeNumbers(fv)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case []any:
		for i, ev := range t {
			n, err := normalizeNumbers(ev)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	default:
		return v, nil
	}
}

type jsonDecoder struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
}

func newJSONDecoder(rc io.ReadCloser) *jsonDecoder {
	s := bufio.NewScanner(rc)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &jsonDecoder{rc: rc, scanner: s}
}

func (d *jsonDecoder) Decode() (*record.Record, error) {
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return UnmarshalRecord(line)
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (d *jsonDecoder) Close() error {
	return d.rc.Close()
}
