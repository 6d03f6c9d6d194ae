package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	streamHeaderSize = 4
	maxStreamFrame   = 1 << 20
)

type FrameTooLarge struct {
	Size  uint32
	Limit uint32
}

func (e *FrameTooLarge) Error() string {
	return fmt.Sprintf("reliable frame of %d bytes exceeds limit %d", e.Size, e.Limit)
}

// writeStreamFrame writes frame behind a u32 little-endian length. An empty
// frame is legal and only makes the stream visible to the peer.
func writeStreamFrame(w io.Writer, frame []byte) error {
	buf := make([]byte, streamHeaderSize+len(frame))
	binary.LittleEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[streamHeaderSize:], frame)

	_, err := w.Write(buf)
	return err
}

// readStreamFrame returns the next non-empty frame, skipping zero-length ones.
// header must hold streamHeaderSize bytes and is reused between calls.
func readStreamFrame(r io.Reader, header []byte) ([]byte, error) {
	for {
		if _, err := io.ReadFull(r, header[:streamHeaderSize]); err != nil {
			return nil, err
		}

		size := binary.LittleEndian.Uint32(header)
		if size == 0 {
			continue
		}
		if size > maxStreamFrame {
			return nil, &FrameTooLarge{Size: size, Limit: maxStreamFrame}
		}

		frame := make([]byte, size)
		if _, err := io.ReadFull(r, frame); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		return frame, nil
	}
}
