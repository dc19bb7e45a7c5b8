package encoding

import (
	"fmt"
	"io"
	"path"
	"strings"
)

var formatExtensions = map[string]Format{
	".csv":     FormatText,
	".json":    FormatJSON,
	".avro":    FormatAvro,
	".seq":     FormatSequence,
	".parquet": FormatParquet,
}

// OptionsFromName infers the format and stream compression of an artifact from its file name.
// Text artifacts are assumed to have no header.
func OptionsFromName(name string) (Options, error) {
	base := path.Base(name)
	opts := Options{Compression: CompressionNone}
	for _, c := range []Compression{CompressionGzip, CompressionDeflate, CompressionZstd, CompressionSnappy, CompressionLZ4} {
		if ext := compressionExtension(c); strings.HasSuffix(base, ext) {
			opts.Compression = c
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	format, ok := formatExtensions[path.Ext(base)]
	if !ok {
		return Options{}, fmt.Errorf("cannot infer the format of %s from its extension", name)
	}
	opts.Format = format
	return opts, nil
}

// NewDecoderForName returns a decoder for the artifact called name, reading from r
func NewDecoderForName(name string, r io.Reader) (Decoder, error) {
	opts, err := OptionsFromName(name)
	if err != nil {
		return nil, err
	}
	f, err := newFactory(opts, false)
	if err != nil {
		return nil, err
	}
	return f.NewDecoder(r)
}
