package encoding

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/turbot/tailwriter/internal/record"
)

func parquetCompression(c Compression) string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	}
	return "uncompressed"
}

// parquetEncoder stages records as JSONL in a local scratch file. On Close DuckDB converts the
// scratch file to parquet, which is then copied to the destination writer.
type parquetEncoder struct {
	w           io.Writer
	compression Compression
	scratch     *os.File
	buf         bytes.Buffer
	count       int
	size        int64
}

func newParquetEncoder(w io.Writer, opts Options) (*parquetEncoder, error) {
	scratch, err := os.CreateTemp(opts.ScratchDir, "tailwriter-*.jsonl")
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet scratch file: %w", err)
	}
	return &parquetEncoder{
		w:           w,
		compression: opts.Compression,
		scratch:     scratch,
	}, nil
}

func (e *parquetEncoder) Encode(rec *record.Record) error {
	e.buf.Reset()
	if err := appendJSONObject(&e.buf, rec); err != nil {
		return NewRecordError(err)
	}
	e.buf.WriteByte('\n')
	n, err := e.scratch.Write(e.buf.Bytes())
	e.size += int64(n)
	if err != nil {
		return err
	}
	e.count++
	return nil
}

func (e *parquetEncoder) Buffered() int64 {
	return e.size
}

func (e *parquetEncoder) Flush() error {
	return nil
}

func (e *parquetEncoder) Close() error {
	jsonPath := e.scratch.Name()
	parquetPath := strings.TrimSuffix(jsonPath, ".jsonl") + ".parquet"
	defer func() {
		_ = os.Remove(jsonPath)
		_ = os.Remove(parquetPath)
	}()
	if err := e.scratch.Close(); err != nil {
		return err
	}
	if e.count == 0 {
		return nil
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("failed to open DuckDB connection: %w", err)
	}
	defer db.Close()

	query := fmt.Sprintf(`COPY (SELECT * FROM read_json_auto('%s', format='newline_delimited')) TO '%s' (FORMAT PARQUET, COMPRESSION '%s');`,
		escapeSQLString(jsonPath), escapeSQLString(parquetPath), parquetCompression(e.compression))
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to convert %d records to parquet: %w", e.count, err)
	}

	f, err := os.Open(parquetPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(e.w, f)
	return err
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// parquetDecoder loads all rows of a parquet artifact up front
type parquetDecoder struct {
	records []*record.Record
}

func newParquetDecoder(r io.Reader, opts Options) (*parquetDecoder, error) {
	scratch, err := os.CreateTemp(opts.ScratchDir, "tailwriter-read-*.parquet")
	if err != nil {
		return nil, err
	}
	path := scratch.Name()
	defer os.Remove(path)
	if _, err := io.Copy(scratch, r); err != nil {
		scratch.Close()
		return nil, err
	}
	if err := scratch.Close(); err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connection: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(fmt.Sprintf("SELECT * FROM read_parquet('%s')", escapeSQLString(filepath.ToSlash(path))))
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet: %w", err)
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	d := &parquetDecoder{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		fields := make([]record.Field, len(columns))
		for i, c := range columns {
			fields[i] = record.Field{Name: c, Value: values[i]}
		}
		d.records = append(d.records, record.New(fields...))
	}
	return d, rows.Err()
}

func (d *parquetDecoder) Decode() (*record.Record, error) {
	if len(d.records) == 0 {
		return nil, io.EOF
	}
	rec := d.records[0]
	d.records = d.records[1:]
	return rec, nil
}

func (d *parquetDecoder) Close() error {
	return nil
}
