package encoding

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/turbot/tailwriter/internal/record"
)

const (
	sequenceVersion = 6
	syncSize        = 16
	syncEscape      = -1
	textClass       = "org.apache.hadoop.io.Text"
)

var sequenceMagic = []byte("SEQ")

func sequenceCodecClass(c Compression) string {
	switch c {
	case CompressionDeflate:
		return "org.apache.hadoop.io.compress.DefaultCodec"
	case CompressionGzip:
		return "org.apache.hadoop.io.compress.GzipCodec"
	case CompressionZstd:
		return "org.apache.hadoop.io.compress.ZStandardCodec"
	}
	return ""
}

func sequenceCodecCompression(class string) (Compression, error) {
	for _, c := range []Compression{CompressionDeflate, CompressionGzip, CompressionZstd} {
		if sequenceCodecClass(c) == class {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: codec %s", ErrUnsupportedCompression, class)
}

// sequenceEncoder writes a sequence file of Text keys and Text values. The key is the record id (a
// generated uuid if the record has none) and the value is the record as a JSON object.
//
// In RECORD mode each value is compressed individually, with a sync marker every SyncInterval records.
// In BLOCK mode SyncInterval records are buffered, and written as one block of compressed key and
// value buffers preceded by a sync marker.
type sequenceEncoder struct {
	w           io.Writer
	compression Compression
	block       bool
	interval    int
	sync        [syncSize]byte
	count       int

	// pending block
	keyLens bytes.Buffer
	keys    bytes.Buffer
	valLens bytes.Buffer
	vals    bytes.Buffer
	pending int
}

func newSequenceEncoder(w io.Writer, opts Options) (*sequenceEncoder, error) {
	e := &sequenceEncoder{
		w:           w,
		compression: opts.Compression,
		block:       opts.Compression != CompressionNone && opts.SequenceCompressionType == SequenceBlock,
		interval:    opts.SyncInterval,
	}
	if _, err := rand.Read(e.sync[:]); err != nil {
		return nil, err
	}
	if err := e.writeHeader(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *sequenceEncoder) writeHeader() error {
	var buf bytes.Buffer
	buf.Write(sequenceMagic)
	buf.WriteByte(sequenceVersion)
	writeText(&buf, []byte(textClass))
	writeText(&buf, []byte(textClass))
	compressed := e.compression != CompressionNone
	buf.WriteByte(boolByte(compressed))
	buf.WriteByte(boolByte(e.block))
	if compressed {
		writeText(&buf, []byte(sequenceCodecClass(e.compression)))
	}
	// no metadata
	_ = binary.Write(&buf, binary.BigEndian, int32(0))
	buf.Write(e.sync[:])
	_, err := e.w.Write(buf.Bytes())
	return err
}

func (e *sequenceEncoder) Encode(rec *record.Record) error {
	value, err := MarshalRecord(rec)
	if err != nil {
		return NewRecordError(err)
	}
	id := rec.ID()
	if id == "" {
		id = uuid.NewString()
	}
	var key bytes.Buffer
	writeText(&key, []byte(id))
	var val bytes.Buffer
	writeText(&val, value)

	if e.block {
		writeVLong(&e.keyLens, int64(key.Len()))
		e.keys.Write(key.Bytes())
		writeVLong(&e.valLens, int64(val.Len()))
		e.vals.Write(val.Bytes())
		e.pending++
		if e.pending >= e.interval {
			return e.writeBlock()
		}
		return nil
	}

	valBytes := val.Bytes()
	if e.compression != CompressionNone {
		if valBytes, err = compressBytes(valBytes, e.compression); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	if e.count > 0 && e.count%e.interval == 0 {
		writeSync(&buf, e.sync)
	}
	_ = binary.Write(&buf, binary.BigEndian, int32(key.Len()+len(valBytes)))
	_ = binary.Write(&buf, binary.BigEndian, int32(key.Len()))
	buf.Write(key.Bytes())
	buf.Write(valBytes)
	if _, err := e.w.Write(buf.Bytes()); err != nil {
		return err
	}
	e.count++
	return nil
}

func (e *sequenceEncoder) writeBlock() error {
	if e.pending == 0 {
		return nil
	}
	var buf bytes.Buffer
	writeSync(&buf, e.sync)
	writeVLong(&buf, int64(e.pending))
	for _, b := range []*bytes.Buffer{&e.keyLens, &e.keys, &e.valLens, &e.vals} {
		compressed, err := compressBytes(b.Bytes(), e.compression)
		if err != nil {
			return err
		}
		writeVLong(&buf, int64(len(compressed)))
		buf.Write(compressed)
		b.Reset()
	}
	e.count += e.pending
	e.pending = 0
	_, err := e.w.Write(buf.Bytes())
	return err
}

// Buffered returns the uncompressed size of the pending block in BLOCK mode
func (e *sequenceEncoder) Buffered() int64 {
	return int64(e.keyLens.Len() + e.keys.Len() + e.valLens.Len() + e.vals.Len())
}

func (e *sequenceEncoder) Flush() error {
	if e.block {
		return e.writeBlock()
	}
	return nil
}

func (e *sequenceEncoder) Close() error {
	return e.Flush()
}

func writeSync(buf *bytes.Buffer, sync [syncSize]byte) {
	_ = binary.Write(buf, binary.BigEndian, int32(syncEscape))
	buf.Write(sync[:])
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func compressBytes(data []byte, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	cw, err := newCompressWriter(&buf, c)
	if err != nil {
		return nil, err
	}
	if _, err := cw.Write(data); err != nil {
		return nil, err
	}
	if err := cw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressBytes(data []byte, c Compression) ([]byte, error) {
	rc, err := newCompressReader(bytes.NewReader(data), c)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

type sequenceDecoder struct {
	r           *bufio.Reader
	compression Compression
	compressed  bool
	block       bool
	sync        [syncSize]byte

	// records remaining in the current block
	pending []*record.Record
}

func newSequenceDecoder(r io.Reader) (*sequenceDecoder, error) {
	d := &sequenceDecoder{r: bufio.NewReader(r), compression: CompressionNone}
	if err := d.readHeader(); err != nil {
		return nil, fmt.Errorf("invalid sequence file header: %w", err)
	}
	return d, nil
}

func (d *sequenceDecoder) readHeader() error {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(d.r, magic); err != nil {
		return err
	}
	if !bytes.Equal(magic[:3], sequenceMagic) || magic[3] != sequenceVersion {
		return errors.New("not a version 6 sequence file")
	}
	for range 2 {
		class, err := d.readText()
		if err != nil {
			return err
		}
		if string(class) != textClass {
			return fmt.Errorf("unsupported writable class %s", class)
		}
	}
	flags := make([]byte, 2)
	if _, err := io.ReadFull(d.r, flags); err != nil {
		return err
	}
	d.compressed, d.block = flags[0] == 1, flags[1] == 1
	if d.compressed {
		class, err := d.readText()
		if err != nil {
			return err
		}
		if d.compression, err = sequenceCodecCompression(string(class)); err != nil {
			return err
		}
	}
	var metadata int32
	if err := binary.Read(d.r, binary.BigEndian, &metadata); err != nil {
		return err
	}
	for range 2 * int(metadata) {
		if _, err := d.readText(); err != nil {
			return err
		}
	}
	_, err := io.ReadFull(d.r, d.sync[:])
	return err
}

func (d *sequenceDecoder) readText() ([]byte, error) {
	return readTextFrom(d.r)
}

func readTextFrom(r *bufio.Reader) ([]byte, error) {
	n, err := readVLong(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("negative length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *sequenceDecoder) checkSync() error {
	var sync [syncSize]byte
	if _, err := io.ReadFull(d.r, sync[:]); err != nil {
		return io.ErrUnexpectedEOF
	}
	if sync != d.sync {
		return errors.New("sync marker mismatch")
	}
	return nil
}

func (d *sequenceDecoder) Decode() (*record.Record, error) {
	if d.block {
		return d.decodeBlock()
	}
	for {
		var length int32
		if err := binary.Read(d.r, binary.BigEndian, &length); err != nil {
			// a clean end of file between records
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		if length == syncEscape {
			if err := d.checkSync(); err != nil {
				return nil, err
			}
			continue
		}
		var keyLen int32
		if err := binary.Read(d.r, binary.BigEndian, &keyLen); err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		if keyLen < 0 || length < keyLen {
			return nil, fmt.Errorf("invalid record lengths %d/%d", length, keyLen)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(d.r, data); err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		value := data[keyLen:]
		if d.compressed {
			var err error
			if value, err = decompressBytes(value, d.compression); err != nil {
				return nil, err
			}
		}
		return sequenceRecord(data[:keyLen], value)
	}
}

func (d *sequenceDecoder) decodeBlock() (*record.Record, error) {
	if len(d.pending) == 0 {
		if err := d.readBlock(); err != nil {
			return nil, err
		}
	}
	rec := d.pending[0]
	d.pending = d.pending[1:]
	return rec, nil
}

func (d *sequenceDecoder) readBlock() error {
	var escape int32
	if err := binary.Read(d.r, binary.BigEndian, &escape); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return err
	}
	if escape != syncEscape {
		return errors.New("expected a sync marker at the start of a block")
	}
	if err := d.checkSync(); err != nil {
		return err
	}
	count, err := readVLong(d.r)
	if err != nil {
		return io.ErrUnexpectedEOF
	}
	var buffers [4]*bufio.Reader
	for i := range buffers {
		compressed, err := readTextFrom(d.r)
		if err != nil {
			return io.ErrUnexpectedEOF
		}
		raw, err := decompressBytes(compressed, d.compression)
		if err != nil {
			return err
		}
		buffers[i] = bufio.NewReader(bytes.NewReader(raw))
	}
	keyLens, keys, valLens, vals := buffers[0], buffers[1], buffers[2], buffers[3]
	for range count {
		key, err := readSized(keyLens, keys)
		if err != nil {
			return err
		}
		value, err := readSized(valLens, vals)
		if err != nil {
			return err
		}
		rec, err := sequenceRecord(key, value)
		if err != nil {
			return err
		}
		d.pending = append(d.pending, rec)
	}
	if len(d.pending) == 0 {
		return d.readBlock()
	}
	return nil
}

func readSized(lens, data *bufio.Reader) ([]byte, error) {
	n, err := readVLong(lens)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(data, b); err != nil {
		return nil, err
	}
	return b, nil
}

// sequenceRecord builds a record from a serialized Text key and Text value
func sequenceRecord(key, value []byte) (*record.Record, error) {
	id, err := readTextFrom(bufio.NewReader(bytes.NewReader(key)))
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	obj, err := readTextFrom(bufio.NewReader(bytes.NewReader(value)))
	if err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	rec, err := UnmarshalRecord(obj)
	if err != nil {
		return nil, err
	}
	return rec.WithID(string(id)), nil
}

func (d *sequenceDecoder) Close() error {
	return nil
}
