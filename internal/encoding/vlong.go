package encoding

import (
	"bytes"
	"io"
)

// writeVLong writes i in the variable length zero-compressed encoding used by Hadoop writables:
// values in [-112, 127] take a single byte, otherwise a length byte is followed by the big endian value
func writeVLong(buf *bytes.Buffer, i int64) {
	if i >= -112 && i <= 127 {
		buf.WriteByte(byte(i))
		return
	}
	l := int64(-112)
	if i < 0 {
		i ^= -1
		l = -120
	}
	for tmp := i; tmp != 0; tmp >>= 8 {
		l--
	}
	buf.WriteByte(byte(l))
	if l < -120 {
		l = -(l + 120)
	} else {
		l = -(l + 112)
	}
	for idx := l; idx != 0; idx-- {
		shift := (idx - 1) * 8
		buf.WriteByte(byte((i >> shift) & 0xff))
	}
}

func readVLong(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	first := int8(b)
	if first >= -112 {
		return int64(first), nil
	}
	var n int
	if first < -120 {
		n = -119 - int(first)
	} else {
		n = -111 - int(first)
	}
	var i int64
	for idx := 0; idx < n-1; idx++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, io.ErrUnexpectedEOF
		}
		i = i<<8 | int64(b)
	}
	if first < -120 {
		return i ^ -1, nil
	}
	return i, nil
}

func writeText(buf *bytes.Buffer, s []byte) {
	writeVLong(buf, int64(len(s)))
	buf.Write(s)
}
