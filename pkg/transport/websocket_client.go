package transport

import (
	"context"
	goerrs "errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sessamekesh/snowplowderby-client/pkg/errors"
	utils "github.com/sessamekesh/snowplowderby-client/pkg/util"
	"go.uber.org/zap"
)

var expectedCloseErrors = []int{websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived}

type NonBinaryMessage struct{}

func (m *NonBinaryMessage) Error() string {
	return "Non binary message received"
}

type WebsocketDialerParams struct {
	HandshakeTimeout   time.Duration
	MaxReadMessageSize int64
	Header             http.Header

	Logger *zap.Logger
}

type WebsocketDialer struct {
	dialer *websocket.Dialer
	params WebsocketDialerParams

	log       *zap.Logger
	stringGen *utils.RandomStringGenerator
}

func CreateWebsocketDialer(params WebsocketDialerParams) *WebsocketDialer {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	if params.HandshakeTimeout == 0 {
		params.HandshakeTimeout = 10 * time.Second
	}

	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: params.HandshakeTimeout,
		},
		params:    params,
		log:       logger.With(zap.String("transport", "WebSocket")),
		stringGen: utils.CreateRandomstringGenerator(time.Now().UnixMicro()),
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	log := d.log.With(
		zap.String("wsConnId", d.stringGen.GetRandomString(6)),
		zap.String("endpoint", endpoint),
	)

	log.Info("Dialing WebSocket server")
	c, rsp, err := d.dialer.DialContext(ctx, endpoint, d.params.Header)
	if err != nil {
		if rsp != nil {
			log.Error("WebSocket upgrade refused", zap.Int("status", rsp.StatusCode), zap.Error(err))
		} else {
			log.Error("Failed to dial WebSocket server", zap.Error(err))
		}
		return nil, err
	}

	if d.params.MaxReadMessageSize > 0 {
		c.SetReadLimit(d.params.MaxReadMessageSize)
	}

	return WrapWebsocket(c, log), nil
}

type websocketConn struct {
	c *websocket.Conn

	closeOnce sync.Once
	closeErr  error
	// Set before the socket is torn down; gorilla hides net.ErrClosed behind its own error type
	closedLocally atomic.Bool

	log *zap.Logger
}

// WrapWebsocket adapts an established gorilla connection, from either end,
// into a frame Conn.
func WrapWebsocket(c *websocket.Conn, logger *zap.Logger) Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &websocketConn{
		c:   c,
		log: logger,
	}
}

func (ws *websocketConn) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgType, payload, msgErr := ws.c.ReadMessage()
		if msgErr != nil {
			return nil, ws.classifyReadError(msgErr)
		}

		if msgType != websocket.BinaryMessage {
			ws.log.Info("Received non-binary message, ignoring", zap.Int("size", len(payload)))
			continue
		}

		return payload, nil
	}
}

func (ws *websocketConn) classifyReadError(msgErr error) error {
	if websocket.IsCloseError(msgErr, expectedCloseErrors...) {
		var closeError *websocket.CloseError
		if goerrs.As(msgErr, &closeError) {
			ws.log.Info("Received close request", zap.Int("closeCode", closeError.Code), zap.String("closeMsg", closeError.Text))
		}
		return &errors.ConnectionClosed{Cause: msgErr}
	}

	if websocket.IsUnexpectedCloseError(msgErr, expectedCloseErrors...) {
		ws.log.Warn("Received unexpected close", zap.Error(msgErr))
		return &errors.ConnectionClosed{Cause: msgErr}
	}

	if ws.isLocalCloseError(msgErr) {
		ws.log.Info("Connection closed locally")
		return &errors.ConnectionClosed{Cause: msgErr}
	}

	ws.log.Error("Received unexpected WebSocket error on message read", zap.Error(msgErr))
	return msgErr
}

func (ws *websocketConn) isLocalCloseError(err error) bool {
	if ws.closedLocally.Load() || goerrs.Is(err, net.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}

func (ws *websocketConn) WriteFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Time{}
	}
	if err := ws.c.SetWriteDeadline(deadline); err != nil {
		return err
	}

	if err := ws.c.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		if goerrs.Is(err, websocket.ErrCloseSent) || ws.isLocalCloseError(err) {
			return &errors.ConnectionClosed{Cause: err}
		}
		return err
	}
	return nil
}

func (ws *websocketConn) Close() error {
	ws.closeOnce.Do(func() {
		ws.closedLocally.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := ws.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			ws.log.Debug("Could not send close frame", zap.Error(err))
		}
		ws.closeErr = ws.c.Close()
	})
	return ws.closeErr
}
