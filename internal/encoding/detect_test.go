package encoding

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbot/tailwriter/internal/record"
)

func TestOptionsFromName(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    Options
		wantErr assert.ErrorAssertionFunc
	}{
		{name: "json", args: "/data/x_1.json", want: Options{Format: FormatJSON, Compression: CompressionNone}, wantErr: assert.NoError},
		{name: "gzipped csv", args: "x_1.csv.gz", want: Options{Format: FormatText, Compression: CompressionGzip}, wantErr: assert.NoError},
		{name: "zstd json", args: "x_1.json.zst", want: Options{Format: FormatJSON, Compression: CompressionZstd}, wantErr: assert.NoError},
		{name: "avro", args: "x_1.avro", want: Options{Format: FormatAvro, Compression: CompressionNone}, wantErr: assert.NoError},
		{name: "sequence", args: "x_1.seq", want: Options{Format: FormatSequence, Compression: CompressionNone}, wantErr: assert.NoError},
		{name: "parquet", args: "x_1.parquet", want: Options{Format: FormatParquet, Compression: CompressionNone}, wantErr: assert.NoError},
		{name: "unknown", args: "x_1.txt", wantErr: assert.Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OptionsFromName(tt.args)
			if !tt.wantErr(t, err) {
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewDecoderForName_Avro(t *testing.T) {
	f, err := NewFactory(Options{Format: FormatAvro, Compression: CompressionDeflate, AvroSchema: testAvroSchema})
	require.NoError(t, err)
	var buf bytes.Buffer
	enc, err := f.NewEncoder(&buf)
	require.NoError(t, err)
	rec := record.New(
		record.Field{Name: "name", Value: "a"},
		record.Field{Name: "count", Value: int64(1)},
		record.Field{Name: "ratio", Value: 0.5},
		record.Field{Name: "ok", Value: true},
	)
	require.NoError(t, enc.Encode(rec))
	require.NoError(t, enc.Close())

	// no schema needed to read the artifact back
	dec, err := NewDecoderForName("data_1.avro", &buf)
	require.NoError(t, err)
	defer dec.Close()
	got, err := dec.Decode()
	require.NoError(t, err)
	name, _ := got.Get("name")
	assert.Equal(t, "a", name)
	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}
