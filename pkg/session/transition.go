package session

import (
	"context"
	"sync"
	"time"

	"github.com/sessamekesh/snowplowderby-client/pkg/message/command"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Transition is the single-resolution outcome of one become-player request.
// It settles exactly once, with the assigned player id or an error
// (*errors.TransitionRejected or *errors.ConnectionClosed).
type Transition struct {
	Request command.BecomePlayerRequest

	once sync.Once
	done chan struct{}

	playerId uint16
	err      error

	requestedAt time.Time
	span        trace.Span
}

func newTransition(request command.BecomePlayerRequest, span trace.Span) *Transition {
	if span == nil {
		span = trace.SpanFromContext(context.Background())
	}
	return &Transition{
		Request:     request,
		done:        make(chan struct{}),
		requestedAt: time.Now(),
		span:        span,
	}
}

func (t *Transition) resolve(playerId uint16) bool {
	settled := false
	t.once.Do(func() {
		t.playerId = playerId
		t.span.SetAttributes(attribute.Int("snowplow.player_id", int(playerId)))
		t.span.SetStatus(codes.Ok, "")
		t.span.End()
		settled = true
		close(t.done)
	})
	return settled
}

func (t *Transition) reject(err error) bool {
	settled := false
	t.once.Do(func() {
		t.err = err
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
		t.span.End()
		settled = true
		close(t.done)
	})
	return settled
}

func (t *Transition) elapsed() float64 {
	return time.Since(t.requestedAt).Seconds()
}

func (t *Transition) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the transition settles or ctx ends. A ctx error leaves
// the transition pending.
func (t *Transition) Wait(ctx context.Context) (uint16, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-t.done:
		return t.playerId, t.err
	}
}

// Result reports the outcome without blocking; settled is false while pending.
func (t *Transition) Result() (playerId uint16, settled bool, err error) {
	select {
	case <-t.done:
		return t.playerId, true, t.err
	default:
		return 0, false, nil
	}
}
