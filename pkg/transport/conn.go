package transport

import (
	"context"
	"fmt"
	"strings"
)

// Conn carries whole frames to and from the arena server. The first byte of
// every frame is its channel tag.
//
// ReadFrame is called from a single goroutine and WriteFrame from a single
// (other) goroutine. Close may be called from anywhere, any number of times,
// and unblocks a pending ReadFrame.
type Conn interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, frame []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

type DialerFunc func(ctx context.Context, endpoint string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Conn, error) {
	return f(ctx, endpoint)
}

type Kind uint8

const (
	Kind_WebSocket Kind = iota
	Kind_WebTransport
)

func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "", "ws", "websocket":
		return Kind_WebSocket, nil
	case "wt", "webtransport":
		return Kind_WebTransport, nil
	}
	return Kind_WebSocket, fmt.Errorf("unknown transport %q", name)
}

func (k Kind) String() string {
	switch k {
	case Kind_WebSocket:
		return "websocket"
	case Kind_WebTransport:
		return "webtransport"
	}
	return "unknown"
}
