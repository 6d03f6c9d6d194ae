package transport

import (
	"context"
	"sync"

	"github.com/sessamekesh/snowplowderby-client/pkg/handlers"
	"go.uber.org/zap"
)

type connectionPump struct {
	conn    Conn
	handler *handlers.ConnectionHandler

	reportOnce sync.Once

	log *zap.Logger
}

// RunConnectionPump moves frames between conn and the session end of handler
// until either side closes. Incoming frames keep their arrival order. The
// connection is always closed on return, and the transport close is reported
// on handler.TransportCloseChannel exactly once.
func RunConnectionPump(ctx context.Context, conn Conn, handler *handlers.ConnectionHandler, logger *zap.Logger) {
	log := logger
	if log == nil {
		log = zap.Must(zap.NewDevelopment())
	}

	pump := &connectionPump{
		conn:    conn,
		handler: handler,
		log:     log.With(zap.String("handlerBase", "ConnectionPump"), zap.String("handler", handler.Name)),
	}

	pump.run(ctx)
}

func (p *connectionPump) now() int64 {
	if p.handler.GetNowTimestamp == nil {
		return 0
	}
	return p.handler.GetNowTimestamp()
}

func (p *connectionPump) reportClose(reason string, err error) {
	p.reportOnce.Do(func() {
		p.handler.TransportCloseChannel <- handlers.CloseCommand{
			Reason: reason,
			Error:  err,
		}
	})
}

func (p *connectionPump) run(ctx context.Context) {
	routeCtx, routeCancel := context.WithCancel(ctx)
	defer routeCancel()

	wg := sync.WaitGroup{}

	//
	// Route session frames out
	wg.Add(1)
	go func() {
		p.log.Info("Starting connection writer goroutine")
		defer p.log.Info("Stopping connection writer goroutine")
		defer wg.Done()
		defer routeCancel()

		for {
			select {
			case <-routeCtx.Done():
				p.reportClose("Session shutdown", routeCtx.Err())
				return
			case closeRequest := <-p.handler.CloseRequests:
				p.log.Info("Connection writer attempting graceful shutdown", zap.String("reason", closeRequest.Reason))
				p.reportClose(closeRequest.Reason, closeRequest.Error)
				return
			case frame := <-p.handler.OutgoingFrameChannel:
				if err := p.conn.WriteFrame(routeCtx, frame.Data); err != nil {
					p.log.Warn("Error writing frame", zap.Error(err))
					p.reportClose("Write failed", err)
					return
				}
			}
		}
	}()

	//
	// Route connection frames to the session
	wg.Add(1)
	go func() {
		p.log.Info("Starting connection reader goroutine")
		defer p.log.Info("Stopping connection reader goroutine")
		defer wg.Done()
		defer routeCancel()

		for {
			data, err := p.conn.ReadFrame(routeCtx)
			if err != nil {
				if routeCtx.Err() == nil {
					p.log.Info("Connection read ended", zap.Error(err))
				}
				p.reportClose("Connection closed by server", err)
				return
			}

			select {
			case <-routeCtx.Done():
				p.reportClose("Session shutdown", routeCtx.Err())
				return
			case p.handler.IncomingFrameChannel <- handlers.Frame{Data: data, RecvTimestamp: p.now()}:
			}
		}
	}()

	<-routeCtx.Done()
	p.conn.Close()
	wg.Wait()
}
