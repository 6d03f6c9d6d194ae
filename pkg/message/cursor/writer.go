package cursor

import (
	"encoding/binary"
	"math"

	"github.com/sessamekesh/snowplowderby-client/pkg/errors"
)

// Writer fills a fixed, pre-sized buffer. Every Put takes an explicit offset
// and returns the offset just past what it wrote.
type Writer struct {
	name string
	buf  []byte
}

func CreateWriter(name string, size int) *Writer {
	return &Writer{
		name: name,
		buf:  make([]byte, size),
	}
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) require(offset, n int) error {
	if offset < 0 || offset+n > len(w.buf) {
		return &errors.Overrun{
			MessageName: w.name,
			BufferSize:  len(w.buf),
			WriteEnd:    offset + n,
		}
	}
	return nil
}

func (w *Writer) PutByte(offset int, v uint8) (int, error) {
	if err := w.require(offset, 1); err != nil {
		return offset, err
	}
	w.buf[offset] = v
	return offset + 1, nil
}

func (w *Writer) PutBool(offset int, v bool) (int, error) {
	var b uint8
	if v {
		b = 0x01
	}
	return w.PutByte(offset, b)
}

func (w *Writer) PutShort(offset int, v uint16) (int, error) {
	if err := w.require(offset, 2); err != nil {
		return offset, err
	}
	binary.LittleEndian.PutUint16(w.buf[offset:offset+2], v)
	return offset + 2, nil
}

func (w *Writer) PutFloat(offset int, v float32) (int, error) {
	if err := w.require(offset, 4); err != nil {
		return offset, err
	}
	binary.LittleEndian.PutUint32(w.buf[offset:offset+4], math.Float32bits(v))
	return offset + 4, nil
}

// PutStringWithNull writes s followed by a zero terminator.
func (w *Writer) PutStringWithNull(offset int, s string) (int, error) {
	if err := w.require(offset, len(s)+1); err != nil {
		return offset, err
	}
	copy(w.buf[offset:], s)
	w.buf[offset+len(s)] = 0
	return offset + len(s) + 1, nil
}

func (w *Writer) PutBytes(offset int, b []byte) (int, error) {
	if err := w.require(offset, len(b)); err != nil {
		return offset, err
	}
	copy(w.buf[offset:], b)
	return offset + len(b), nil
}

// StringSize is the encoded size of s including its terminator.
func StringSize(s string) int {
	return len(s) + 1
}
