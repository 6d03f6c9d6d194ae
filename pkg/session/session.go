package session

import (
	"context"
	goerrs "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sessamekesh/snowplowderby-client/pkg/errors"
	"github.com/sessamekesh/snowplowderby-client/pkg/handlers"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/command"
	"github.com/sessamekesh/snowplowderby-client/pkg/metrics"
	"github.com/sessamekesh/snowplowderby-client/pkg/transport"
	utils "github.com/sessamekesh/snowplowderby-client/pkg/util"
	"github.com/sessamekesh/snowplowderby-client/pkg/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultInputInterval = 100 * time.Millisecond

var ErrClientClosed = goerrs.New("session closed by client")

// ErrTransportStalled ends a session whose transport stopped draining
// reliable frames.
var ErrTransportStalled = goerrs.New("outgoing reliable backlog full")

const DefaultMaxReliableBacklog = 256

type Params struct {
	Endpoint string

	// Nil dials a WebSocket
	Dialer transport.Dialer

	// Requested automatically right after the handshake when set
	Player *command.BecomePlayerRequest

	InputInterval time.Duration

	IncomingFrameQueueLength uint32
	OutgoingFrameQueueLength uint32

	// Reliable frames held by the session while the outgoing queue is full.
	// Overflowing it closes the connection.
	MaxReliableBacklog int

	Logger   *zap.Logger
	Listener Listener
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
}

// Session is one connection to an arena server. Run owns the connection, the
// entity store and the state machine; every other method is safe to call from
// any goroutine while Run is running.
type Session struct {
	params Params

	id        string
	log       *zap.Logger
	listener  Listener
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	startTime time.Time

	//
	// Owned by the Run goroutine
	store         *world.Store
	channels      *handlers.ConnectionChannels
	transportDone <-chan struct{}

	reliableBacklog []handlers.Frame

	transition    *Transition
	queuedInitial *Transition

	inputTicker *time.Ticker
	inputTick   <-chan time.Time
	inputDx     float32
	inputDy     float32

	localReadySignaled bool

	//
	// Shared
	mut_state      sync.RWMutex
	state          State
	localPlayerId  uint16
	hasLocalPlayer bool
	err            error

	initial *Transition

	requests chan loopRequest

	started       atomic.Bool
	closeOnce     sync.Once
	closeRequests chan struct{}
	done          chan struct{}
}

type loopRequest struct {
	Command *command.Command
	View    func(store *world.Store)
	Span    trace.Span

	reply chan loopReply
}

type loopReply struct {
	Transition *Transition
	Err        error
}

var sessionIdGen = utils.CreateRandomstringGenerator(time.Now().UnixNano())

func CreateSession(params Params) *Session {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	if params.InputInterval <= 0 {
		params.InputInterval = DefaultInputInterval
	}

	if params.MaxReliableBacklog <= 0 {
		params.MaxReliableBacklog = DefaultMaxReliableBacklog
	}

	if params.Dialer == nil {
		params.Dialer = transport.CreateWebsocketDialer(transport.WebsocketDialerParams{
			Logger: logger,
		})
	}

	tracer := params.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/sessamekesh/snowplowderby-client/pkg/session")
	}

	listener := params.Listener
	if listener == nil {
		listener = ListenerFuncs{}
	}

	id := sessionIdGen.GetRandomString(8)

	s := &Session{
		params:    params,
		id:        id,
		log:       logger.With(zap.String("sessionId", id), zap.String("endpoint", params.Endpoint)),
		listener:  listener,
		metrics:   params.Metrics,
		tracer:    tracer,
		startTime: time.Now(),

		store: world.CreateStore(nil),

		state: State_Uninitialized,

		requests:      make(chan loopRequest),
		closeRequests: make(chan struct{}),
		done:          make(chan struct{}),
	}

	if params.Player != nil {
		_, span := tracer.Start(context.Background(), "session.InitialTransition",
			trace.WithAttributes(attribute.String("snowplow.username", params.Player.Username)))
		s.initial = newTransition(*params.Player, span)
		s.queuedInitial = s.initial
	}

	return s
}

func (s *Session) Id() string {
	return s.id
}

func (s *Session) getNowTime() int64 {
	return time.Since(s.startTime).Microseconds()
}

// Run dials the endpoint and processes frames until the connection closes,
// ctx ends, or Close is called. It returns nil for a local shutdown and the
// *errors.ConnectionClosed cause otherwise. Run may only be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return &errors.InvalidState{Operation: "run", State: s.State().String()}
	}

	dialCtx, dialCancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.closeRequests:
			dialCancel()
		case <-dialCtx.Done():
		}
	}()

	s.log.Info("Dialing arena server")
	conn, err := s.params.Dialer.Dial(dialCtx, s.params.Endpoint)
	dialCancel()
	if err != nil {
		select {
		case <-s.closeRequests:
			s.shutdown(ErrClientClosed)
			return nil
		default:
		}
		s.log.Error("Failed to connect", zap.Error(err))
		s.shutdown(err)
		return s.Err()
	}

	handler, channels := handlers.CreateConnectionHandler(handlers.ConnectionHandlerParams{
		Name:                     s.id,
		IncomingFrameQueueLength: s.params.IncomingFrameQueueLength,
		OutgoingFrameQueueLength: s.params.OutgoingFrameQueueLength,
		GetNowTimestamp:          s.getNowTime,
	})
	s.channels = channels

	pumpCtx, pumpCancel := context.WithCancel(context.Background())
	pumpDone := make(chan struct{})
	s.transportDone = pumpDone

	go func() {
		defer close(pumpDone)
		transport.RunConnectionPump(pumpCtx, conn, handler, s.log)
	}()

	defer func() {
		pumpCancel()
		<-pumpDone
	}()

	return s.loop(ctx)
}

func (s *Session) loop(ctx context.Context) error {
	s.log.Info("Starting session loop")
	defer s.log.Info("Stopped session loop")

	for {
		var backlogOut chan<- handlers.Frame
		var backlogNext handlers.Frame
		if len(s.reliableBacklog) > 0 {
			backlogOut = s.channels.OutgoingFrames
			backlogNext = s.reliableBacklog[0]
		}

		select {
		case <-ctx.Done():
			s.requestTransportClose("Context done")
			s.shutdown(ctx.Err())
			return nil
		case <-s.closeRequests:
			s.requestTransportClose("Client closed")
			s.shutdown(ErrClientClosed)
			return nil
		case closeCmd := <-s.channels.TransportClosed:
			s.drainIncoming()
			s.log.Info("Transport closed", zap.String("reason", closeCmd.Reason), zap.Error(closeCmd.Error))
			cause := closeCmd.Error
			if cause == nil {
				cause = goerrs.New(closeCmd.Reason)
			}
			s.shutdown(cause)
			return s.Err()
		case frame := <-s.channels.IncomingFrames:
			s.handleFrame(frame.Data)
		case backlogOut <- backlogNext:
			s.popReliableBacklog()
		case <-s.inputTick:
			s.sendInput()
		case req := <-s.requests:
			req.reply <- s.handleRequest(req)
		}
	}
}

// Frames that arrived before the close still apply, in order.
func (s *Session) drainIncoming() {
	for {
		select {
		case frame := <-s.channels.IncomingFrames:
			s.handleFrame(frame.Data)
		default:
			return
		}
	}
}

func (s *Session) requestTransportClose(reason string) {
	if s.channels == nil {
		return
	}
	select {
	case s.channels.CloseRequests <- handlers.CloseCommand{Reason: reason}:
	default:
	}
}

//
// State

func (s *Session) State() State {
	s.mut_state.RLock()
	defer s.mut_state.RUnlock()
	return s.state
}

// LocalPlayerId is the id the server assigned on a successful transition.
func (s *Session) LocalPlayerId() (uint16, bool) {
	s.mut_state.RLock()
	defer s.mut_state.RUnlock()
	return s.localPlayerId, s.hasLocalPlayer
}

// Done is closed once the session reaches State_Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err is the *errors.ConnectionClosed that ended the session, or nil while open.
func (s *Session) Err() error {
	s.mut_state.RLock()
	defer s.mut_state.RUnlock()
	return s.err
}

// InitialTransition is the outcome of Params.Player, or nil when none was set.
func (s *Session) InitialTransition() *Transition {
	return s.initial
}

func (s *Session) setState(to State) {
	s.mut_state.Lock()
	from := s.state
	s.state = to
	s.mut_state.Unlock()

	if from == to {
		return
	}

	s.log.Info("Session state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	s.listener.OnStateChanged(from, to)
}

func (s *Session) setLocalPlayer(id uint16) {
	s.mut_state.Lock()
	defer s.mut_state.Unlock()
	s.localPlayerId = id
	s.hasLocalPlayer = true
}

// shutdown moves to State_Closed. Every path to Closed goes through here, so
// the input ticker is disarmed and pending transitions rejected exactly once.
func (s *Session) shutdown(cause error) {
	if s.State() == State_Closed {
		return
	}

	s.disarmInput()

	closedErr := &errors.ConnectionClosed{Cause: cause}
	for _, t := range []*Transition{s.transition, s.queuedInitial} {
		if t != nil && t.reject(closedErr) {
			s.metrics.RecordTransition("closed", t.elapsed())
		}
	}
	s.transition = nil
	s.queuedInitial = nil
	s.reliableBacklog = nil

	s.mut_state.Lock()
	s.err = closedErr
	s.mut_state.Unlock()

	s.setState(State_Closed)
	close(s.done)
}

// Close ends the session. Safe to call any number of times, before or during Run.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.started.CompareAndSwap(false, true) {
			// Run never started, so nothing else touches session state
			s.shutdown(ErrClientClosed)
			return
		}
		close(s.closeRequests)
	})
}

//
// Input timer

func (s *Session) armInput() {
	if s.inputTicker != nil {
		return
	}
	s.inputTicker = time.NewTicker(s.params.InputInterval)
	s.inputTick = s.inputTicker.C
}

func (s *Session) disarmInput() {
	if s.inputTicker == nil {
		return
	}
	s.inputTicker.Stop()
	s.inputTicker = nil
	s.inputTick = nil
	s.log.Debug("Input timer disarmed")
}

func (s *Session) sendInput() {
	s.send(command.EncodeMovement(s.inputDx, s.inputDy), command.CommandType_SetInput)
}
