package encoding

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/turbot/tailwriter/internal/record"
)

// textEncoder writes delimited text, one line per record
type textEncoder struct {
	cw      compressWriter
	csv     *csv.Writer
	fields  []string
	header  bool
	started bool
}

func newTextEncoder(cw compressWriter, opts Options) *textEncoder {
	w := csv.NewWriter(cw)
	w.Comma = opts.Delimiter
	return &textEncoder{
		cw:     cw,
		csv:    w,
		fields: opts.Fields,
		header: opts.Header,
	}
}

func (e *textEncoder) Encode(rec *record.Record) error {
	names := e.fields
	if len(names) == 0 {
		names = rec.Names()
	}
	row := make([]string, len(names))
	for i, name := range names {
		v, _ := rec.Get(name)
		s, err := textValue(v)
		if err != nil {
			return NewRecordError(fmt.Errorf("field %q: %w", name, err))
		}
		row[i] = s
	}
	if !e.started {
		e.started = true
		if e.header {
			if err := e.csv.Write(names); err != nil {
				return err
			}
		}
	}
	if err := e.csv.Write(row); err != nil {
		return err
	}
	return nil
}

func (e *textEncoder) Flush() error {
	e.csv.Flush()
	if err := e.csv.Error(); err != nil {
		return err
	}
	return e.cw.Flush()
}

func (e *textEncoder) Close() error {
	e.csv.Flush()
	if err := e.csv.Error(); err != nil {
		return err
	}
	return e.cw.Close()
}

func textValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case json.Number:
		return t.String(), nil
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return fmt.Sprint(v), nil
}

type textDecoder struct {
	rc     io.ReadCloser
	csv    *csv.Reader
	fields []string
	header bool
}

func newTextDecoder(rc io.ReadCloser, opts Options) *textDecoder {
	r := csv.NewReader(rc)
	r.Comma = opts.Delimiter
	r.FieldsPerRecord = -1
	return &textDecoder{
		rc:     rc,
		csv:    r,
		fields: opts.Fields,
		header: opts.Header,
	}
}

// Decode returns records with string values, named by the header line, the configured fields, or
// by column position
func (d *textDecoder) Decode() (*record.Record, error) {
	if d.header {
		d.header = false
		names, err := d.csv.Read()
		if err != nil {
			return nil, err
		}
		d.fields = names
	}
	row, err := d.csv.Read()
	if err != nil {
		return nil, err
	}
	fields := make([]record.Field, len(row))
	for i, v := range row {
		name := strconv.Itoa(i)
		if i < len(d.fields) {
			name = d.fields[i]
		}
		fields[i] = record.Field{Name: name, Value: v}
	}
	return record.New(fields...), nil
}

func (d *textDecoder) Close() error {
	return d.rc.Close()
}
