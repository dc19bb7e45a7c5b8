package encoding

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// compressWriter is a stream compressor. Close finishes the stream without closing the underlying writer.
type compressWriter interface {
	io.Writer
	Flush() error
	Close() error
}

type nopCompressWriter struct {
	io.Writer
}

func (nopCompressWriter) Flush() error { return nil }
func (nopCompressWriter) Close() error { return nil }

func newCompressWriter(w io.Writer, c Compression) (compressWriter, error) {
	switch c {
	case CompressionNone, "":
		return nopCompressWriter{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionDeflate:
		return zlib.NewWriter(w), nil
	case CompressionZstd:
		return zstd.NewWriter(w)
	case CompressionSnappy:
		return s2.NewWriter(w, s2.WriterSnappyCompat()), nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnsupportedCompression, c)
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func newCompressReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone, "":
		return io.NopCloser(r), nil
	case CompressionGzip:
		return gzip.NewReader(r)
	case CompressionDeflate:
		return zlib.NewReader(r)
	case CompressionZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{d}, nil
	case CompressionSnappy:
		return io.NopCloser(s2.NewReader(r)), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnsupportedCompression, c)
}

func compressionExtension(c Compression) string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionDeflate:
		return ".deflate"
	case CompressionZstd:
		return ".zst"
	case CompressionSnappy:
		return ".snappy"
	case CompressionLZ4:
		return ".lz4"
	}
	return ""
}
