package cursor

import (
	goerrs "errors"
	"math"
	"testing"

	"github.com/sessamekesh/snowplowderby-client/pkg/errors"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := CreateWriter("test", 1+2+4+1+6)
	off, err := w.PutByte(0, 0x72)
	if err != nil {
		t.Fatalf("PutByte: %v", err)
	}
	if off, err = w.PutShort(off, 0xBEEF); err != nil {
		t.Fatalf("PutShort: %v", err)
	}
	if off, err = w.PutFloat(off, 3.5); err != nil {
		t.Fatalf("PutFloat: %v", err)
	}
	if off, err = w.PutBool(off, true); err != nil {
		t.Fatalf("PutBool: %v", err)
	}
	if off, err = w.PutStringWithNull(off, "plow!"); err != nil {
		t.Fatalf("PutStringWithNull: %v", err)
	}
	if off != w.Len() {
		t.Fatalf("final offset = %d, want %d", off, w.Len())
	}

	r := CreateReader("test", w.Bytes())
	if b, err := r.ReadByte(); err != nil || b != 0x72 {
		t.Errorf("ReadByte() = %x, %v; want 0x72, nil", b, err)
	}
	if s, err := r.ReadShort(); err != nil || s != 0xBEEF {
		t.Errorf("ReadShort() = %x, %v; want 0xBEEF, nil", s, err)
	}
	if f, err := r.ReadFloat(); err != nil || f != 3.5 {
		t.Errorf("ReadFloat() = %v, %v; want 3.5, nil", f, err)
	}
	if b, err := r.ReadBool(); err != nil || !b {
		t.Errorf("ReadBool() = %v, %v; want true, nil", b, err)
	}
	if s, err := r.ReadStringUntilNull(); err != nil || s != "plow!" {
		t.Errorf("ReadStringUntilNull() = %q, %v; want \"plow!\", nil", s, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", r.Remaining())
	}
}

func TestShortIsLittleEndian(t *testing.T) {
	r := CreateReader("le", []byte{0x2a, 0x01})
	v, err := r.ReadShort()
	if err != nil {
		t.Fatalf("ReadShort: %v", err)
	}
	if v != 0x012a {
		t.Fatalf("ReadShort() = %#x, want 0x012a", v)
	}
}

func TestFloatIsLittleEndianIEEE754(t *testing.T) {
	bits := math.Float32bits(-1.25)
	r := CreateReader("le", []byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)})
	v, err := r.ReadFloat()
	if err != nil {
		t.Fatalf("ReadFloat: %v", err)
	}
	if v != -1.25 {
		t.Fatalf("ReadFloat() = %v, want -1.25", v)
	}
}

func TestReaderUnderrun(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		read func(r *Reader) error
	}{
		{"byte on empty", nil, func(r *Reader) error { _, err := r.ReadByte(); return err }},
		{"short on one byte", []byte{1}, func(r *Reader) error { _, err := r.ReadShort(); return err }},
		{"float on three bytes", []byte{1, 2, 3}, func(r *Reader) error { _, err := r.ReadFloat(); return err }},
		{"string without terminator", []byte("abc"), func(r *Reader) error { _, err := r.ReadStringUntilNull(); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := CreateReader("underrun", tt.buf)
			err := tt.read(r)
			var underrun *errors.Underrun
			if !goerrs.As(err, &underrun) {
				t.Fatalf("error = %v, want *errors.Underrun", err)
			}
			if underrun.MessageName != "underrun" {
				t.Errorf("MessageName = %q, want %q", underrun.MessageName, "underrun")
			}
			if r.Offset() != 0 {
				t.Errorf("failed read advanced offset to %d", r.Offset())
			}
		})
	}
}

func TestEmptyStringIsJustTerminator(t *testing.T) {
	r := CreateReader("empty", []byte{0, 7})
	s, err := r.ReadStringUntilNull()
	if err != nil || s != "" {
		t.Fatalf("ReadStringUntilNull() = %q, %v; want \"\", nil", s, err)
	}
	if r.Offset() != 1 {
		t.Fatalf("Offset() = %d, want 1", r.Offset())
	}
}

func TestWriterOverrun(t *testing.T) {
	w := CreateWriter("small", 3)
	if _, err := w.PutFloat(0, 1); err == nil {
		t.Fatal("PutFloat into 3 bytes succeeded")
	}
	if _, err := w.PutShort(2, 1); err == nil {
		t.Fatal("PutShort at offset 2 of 3 succeeded")
	}
	var overrun *errors.Overrun
	_, err := w.PutStringWithNull(0, "abc")
	if !goerrs.As(err, &overrun) {
		t.Fatalf("error = %v, want *errors.Overrun", err)
	}
	if overrun.WriteEnd != 4 {
		t.Errorf("WriteEnd = %d, want 4", overrun.WriteEnd)
	}
}

func TestRestConsumesTail(t *testing.T) {
	r := CreateReader("rest", []byte{1, 2, 3})
	_, _ = r.ReadByte()
	rest := r.Rest()
	if string(rest) != "\x02\x03" {
		t.Fatalf("Rest() = %v, want [2 3]", rest)
	}
	if r.Remaining() != 0 {
		t.Fatalf("Remaining() = %d after Rest", r.Remaining())
	}
}
