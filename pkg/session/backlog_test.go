package session

import (
	"bytes"
	"context"
	goerrs "errors"
	"testing"
	"time"

	"github.com/sessamekesh/snowplowderby-client/pkg/errors"
	"github.com/sessamekesh/snowplowderby-client/pkg/handlers"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/command"
	"go.uber.org/zap/zaptest"
)

// newStalledSession wires a session to a one-frame outgoing queue that nobody drains.
func newStalledSession(t *testing.T, params Params) (*Session, *handlers.ConnectionHandler) {
	t.Helper()
	params.Logger = zaptest.NewLogger(t)
	s := CreateSession(params)
	handler, channels := handlers.CreateConnectionHandler(handlers.ConnectionHandlerParams{
		Name:                     "stalled",
		OutgoingFrameQueueLength: 1,
	})
	s.channels = channels
	t.Cleanup(func() { s.disarmInput() })
	return s, handler
}

func TestReliableBacklogKeepsLoopResponsive(t *testing.T) {
	s, handler := newStalledSession(t, Params{})

	brakes := [][]byte{command.EncodeBrake(true), command.EncodeBrake(false), command.EncodeBrake(true)}
	for _, frame := range brakes {
		if err := s.send(frame, command.CommandType_Brake); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if len(s.reliableBacklog) != 2 {
		t.Fatalf("backlog = %d frames, want 2", len(s.reliableBacklog))
	}

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		s.loop(ctx)
	}()
	defer func() {
		cancel()
		<-loopDone
	}()

	// The outgoing queue is still full; inbound frames must be handled anyway
	handler.IncomingFrameChannel <- handlers.Frame{Data: handshakeFrame(t, 1)}
	deadline := time.Now().Add(2 * time.Second)
	for s.State() != State_Spectating {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want Spectating while outgoing queue is full", s.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	want := append(brakes, command.EncodeHandshakeAck())
	for i, w := range want {
		select {
		case f := <-handler.OutgoingFrameChannel:
			if !bytes.Equal(f.Data, w) {
				t.Fatalf("frame %d = %x, want %x", i, f.Data, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d never sent", i)
		}
	}
}

func TestReliableBacklogOverflowClosesTransport(t *testing.T) {
	s, handler := newStalledSession(t, Params{MaxReliableBacklog: 2})

	for i := 0; i < 3; i++ {
		if err := s.send(command.EncodeBoost(), command.CommandType_Boost); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	err := s.send(command.EncodeBoost(), command.CommandType_Boost)
	var closed *errors.ConnectionClosed
	if !goerrs.As(err, &closed) || !goerrs.Is(err, ErrTransportStalled) {
		t.Fatalf("send on full backlog = %v, want ConnectionClosed(ErrTransportStalled)", err)
	}

	select {
	case cmd := <-handler.CloseRequests:
		if cmd.Reason != "Outgoing queue stalled" {
			t.Fatalf("close reason = %q", cmd.Reason)
		}
	default:
		t.Fatal("no transport close requested")
	}

	if len(s.reliableBacklog) != 2 {
		t.Fatalf("backlog = %d frames, want 2", len(s.reliableBacklog))
	}
}

func TestUnreliableFramesDropWhenQueueFull(t *testing.T) {
	s, handler := newStalledSession(t, Params{})

	s.send(command.EncodeMovement(1, 0), command.CommandType_SetInput)
	s.send(command.EncodeMovement(0, 1), command.CommandType_SetInput)

	if len(s.reliableBacklog) != 0 {
		t.Fatalf("unreliable frame went to the reliable backlog")
	}
	frames := outgoing(t, handler)
	if len(frames) != 1 || !bytes.Equal(frames[0], command.EncodeMovement(1, 0)) {
		t.Fatalf("outgoing = %x, want only the first movement frame", frames)
	}
}
