package session

import (
	"context"

	"github.com/sessamekesh/snowplowderby-client/pkg/errors"
	"github.com/sessamekesh/snowplowderby-client/pkg/handlers"
	"github.com/sessamekesh/snowplowderby-client/pkg/message"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/command"
	"github.com/sessamekesh/snowplowderby-client/pkg/world"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func (s *Session) submit(ctx context.Context, req loopRequest) (loopReply, error) {
	req.reply = make(chan loopReply, 1)

	select {
	case <-ctx.Done():
		return loopReply{}, ctx.Err()
	case <-s.done:
		return loopReply{}, s.Err()
	case s.requests <- req:
	}

	// The loop always answers a request it has taken
	return <-req.reply, nil
}

// RequestTransition asks the server to promote this spectator to a player.
// Only valid while Spectating. A second request while one is pending fails
// with *errors.TransitionInProgress and leaves the first untouched.
func (s *Session) RequestTransition(ctx context.Context, request command.BecomePlayerRequest) (*Transition, error) {
	_, span := s.tracer.Start(ctx, "session.RequestTransition",
		trace.WithAttributes(
			attribute.String("snowplow.session_id", s.id),
			attribute.String("snowplow.username", request.Username),
			attribute.Int("snowplow.player_class", request.PlayerClass),
		))

	reply, err := s.submit(ctx, loopRequest{
		Command: &command.Command{
			Type:         command.CommandType_BecomePlayer,
			BecomePlayer: &request,
		},
		Span: span,
	})
	if err == nil {
		err = reply.Err
	}
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, err
	}
	return reply.Transition, nil
}

// SetInput replaces the movement vector the input timer sends while Playing.
func (s *Session) SetInput(ctx context.Context, dx, dy float32) error {
	reply, err := s.submit(ctx, loopRequest{
		Command: &command.Command{Type: command.CommandType_SetInput, Dx: dx, Dy: dy},
	})
	if err != nil {
		return err
	}
	return reply.Err
}

func (s *Session) SendBoost(ctx context.Context) error {
	reply, err := s.submit(ctx, loopRequest{
		Command: &command.Command{Type: command.CommandType_Boost},
	})
	if err != nil {
		return err
	}
	return reply.Err
}

func (s *Session) SendBrake(ctx context.Context, braking bool) error {
	reply, err := s.submit(ctx, loopRequest{
		Command: &command.Command{Type: command.CommandType_Brake, Braking: braking},
	})
	if err != nil {
		return err
	}
	return reply.Err
}

// View runs fn against the entity store on the session goroutine. fn must not
// retain the store.
func (s *Session) View(ctx context.Context, fn func(store *world.Store)) error {
	reply, err := s.submit(ctx, loopRequest{View: fn})
	if err != nil {
		return err
	}
	return reply.Err
}

func (s *Session) handleRequest(req loopRequest) loopReply {
	if req.View != nil {
		req.View(s.store)
		return loopReply{}
	}

	if req.Command == nil {
		return loopReply{Err: &errors.MissingFieldError{MessageName: "loopRequest", FieldName: "Command"}}
	}

	cmd := req.Command
	switch cmd.Type {
	case command.CommandType_BecomePlayer:
		t, err := s.beginTransition(*cmd.BecomePlayer, req.Span)
		return loopReply{Transition: t, Err: err}
	case command.CommandType_SetInput:
		s.inputDx = cmd.Dx
		s.inputDy = cmd.Dy
		return loopReply{}
	case command.CommandType_Boost:
		if err := s.requireActive("send boost"); err != nil {
			return loopReply{Err: err}
		}
		return loopReply{Err: s.send(command.EncodeBoost(), cmd.Type)}
	case command.CommandType_Brake:
		if err := s.requireActive("send brake"); err != nil {
			return loopReply{Err: err}
		}
		return loopReply{Err: s.send(command.EncodeBrake(cmd.Braking), cmd.Type)}
	}

	return loopReply{Err: &errors.ProtocolMismatch{
		Context:  "session request",
		Expected: "SetInput, Boost, Brake or BecomePlayer",
		Actual:   cmd.Type.String(),
	}}
}

func (s *Session) requireActive(operation string) error {
	state := s.State()
	if state == State_Closed {
		return s.Err()
	}
	if !state.Active() {
		return &errors.InvalidState{Operation: operation, State: state.String()}
	}
	return nil
}

func (s *Session) beginTransition(request command.BecomePlayerRequest, span trace.Span) (*Transition, error) {
	state := s.State()
	switch {
	case state == State_Closed:
		return nil, s.Err()
	case s.transition != nil:
		return nil, &errors.TransitionInProgress{}
	case state != State_Spectating:
		return nil, &errors.InvalidState{Operation: "request transition", State: state.String()}
	}

	t := newTransition(request, span)
	if err := s.sendTransitionRequest(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Session) sendTransitionRequest(t *Transition) error {
	frame, err := command.EncodeBecomePlayer(t.Request)
	if err != nil {
		return err
	}
	if err := s.send(frame, command.CommandType_BecomePlayer); err != nil {
		return err
	}

	s.log.Info("Requested transition to playing", zap.String("username", t.Request.Username), zap.Int("playerClass", t.Request.PlayerClass))
	s.transition = t
	s.setState(State_AwaitingTransition)
	return nil
}

// send queues one encoded frame for the transport without blocking the
// session goroutine. Unreliable frames are dropped if the queue is full.
// Reliable frames overflow into a bounded backlog the loop drains in order;
// a full backlog means the transport is stalled and the connection is closed.
func (s *Session) send(frame []byte, cmdType command.CommandType) error {
	if s.channels == nil {
		return &errors.ConnectionClosed{}
	}

	out := handlers.Frame{Data: frame, RecvTimestamp: s.getNowTime()}

	if message.ChannelOf(frame) == message.Channel_Unreliable {
		select {
		case s.channels.OutgoingFrames <- out:
			s.metrics.RecordCommandSent(cmdType.String())
		default:
			s.metrics.RecordCommandDropped(cmdType.String())
			s.log.Debug("Outgoing queue full, dropped unreliable frame", zap.Stringer("command", cmdType))
		}
		return nil
	}

	select {
	case <-s.transportDone:
		return &errors.ConnectionClosed{}
	default:
	}

	if len(s.reliableBacklog) == 0 {
		select {
		case s.channels.OutgoingFrames <- out:
			s.metrics.RecordCommandSent(cmdType.String())
			return nil
		default:
		}
	}

	if len(s.reliableBacklog) >= s.params.MaxReliableBacklog {
		s.metrics.RecordCommandDropped(cmdType.String())
		s.log.Error("Reliable backlog full, closing stalled transport",
			zap.Stringer("command", cmdType), zap.Int("backlog", len(s.reliableBacklog)))
		s.requestTransportClose("Outgoing queue stalled")
		return &errors.ConnectionClosed{Cause: ErrTransportStalled}
	}

	s.reliableBacklog = append(s.reliableBacklog, out)
	s.metrics.RecordCommandSent(cmdType.String())
	return nil
}

func (s *Session) popReliableBacklog() {
	s.reliableBacklog[0] = handlers.Frame{}
	s.reliableBacklog = s.reliableBacklog[1:]
}
