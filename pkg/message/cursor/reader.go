package cursor

import (
	"encoding/binary"
	"math"

	"github.com/sessamekesh/snowplowderby-client/pkg/errors"
)

// Reader consumes a frame front to back. The backing buffer is never modified.
type Reader struct {
	name string
	buf  []byte
	ptr  int
}

// CreateReader wraps buf. name only shows up in Underrun errors.
func CreateReader(name string, buf []byte) *Reader {
	return &Reader{
		name: name,
		buf:  buf,
		ptr:  0,
	}
}

func (r *Reader) Offset() int {
	return r.ptr
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.ptr
}

func (r *Reader) require(n int) error {
	if r.ptr+n > len(r.buf) {
		return &errors.Underrun{
			MessageName: r.name,
			MsgSize:     len(r.buf),
			MinimumSize: r.ptr + n,
		}
	}
	return nil
}

func (r *Reader) ReadByte() (byte, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	b := r.buf[r.ptr]
	r.ptr++
	return b, nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *Reader) ReadShort() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.ptr : r.ptr+2])
	r.ptr += 2
	return v, nil
}

func (r *Reader) ReadFloat() (float32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	bits := binary.LittleEndian.Uint32(r.buf[r.ptr : r.ptr+4])
	r.ptr += 4
	return math.Float32frombits(bits), nil
}

// ReadStringUntilNull consumes bytes up to and including the next 0x00 and
// returns everything before it. A missing terminator is an underrun.
func (r *Reader) ReadStringUntilNull() (string, error) {
	for end := r.ptr; end < len(r.buf); end++ {
		if r.buf[end] == 0 {
			s := string(r.buf[r.ptr:end])
			r.ptr = end + 1
			return s, nil
		}
	}

	return "", &errors.Underrun{
		MessageName: r.name,
		MsgSize:     len(r.buf),
		MinimumSize: len(r.buf) + 1,
	}
}

// Rest returns the unread tail without copying and moves the cursor to the end.
func (r *Reader) Rest() []byte {
	rest := r.buf[r.ptr:]
	r.ptr = len(r.buf)
	return rest
}
