package transport

import (
	"context"
	"crypto/tls"
	goerrs "errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
	"github.com/sessamekesh/snowplowderby-client/pkg/errors"
	"github.com/sessamekesh/snowplowderby-client/pkg/message"
	utils "github.com/sessamekesh/snowplowderby-client/pkg/util"
	"go.uber.org/zap"
)

// Conservative fit inside a single QUIC packet
const maxDatagramSize = 1100

// datagramSession is the part of *webtransport.Session a frame Conn uses.
type datagramSession interface {
	SendDatagram(b []byte) error
	ReceiveDatagram(ctx context.Context) ([]byte, error)
	CloseWithError(code webtransport.SessionErrorCode, msg string) error
	Context() context.Context
}

type WebtransportDialerParams struct {
	TLSConfig          *tls.Config
	InsecureSkipVerify bool
	Header             http.Header

	Logger *zap.Logger
}

type WebtransportDialer struct {
	params WebtransportDialerParams

	log       *zap.Logger
	stringGen *utils.RandomStringGenerator
}

func CreateWebtransportDialer(params WebtransportDialerParams) *WebtransportDialer {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	return &WebtransportDialer{
		params:    params,
		log:       logger.With(zap.String("transport", "WebTransport")),
		stringGen: utils.CreateRandomstringGenerator(time.Now().UnixMicro()),
	}
}

// Dial opens a WebTransport session plus one bidirectional stream. Reliable
// frames travel length-prefixed on the stream, unreliable ones as datagrams.
func (d *WebtransportDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	log := d.log.With(
		zap.String("wtConnId", d.stringGen.GetRandomString(6)),
		zap.String("endpoint", endpoint),
	)

	tlsConfig := d.params.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{InsecureSkipVerify: d.params.InsecureSkipVerify}
	}

	dialer := webtransport.Dialer{
		TLSClientConfig: tlsConfig,
		QUICConfig: &quic.Config{
			EnableDatagrams: true,
		},
	}

	log.Info("Dialing WebTransport server")
	rsp, session, err := dialer.Dial(ctx, endpoint, d.params.Header)
	if err != nil {
		if rsp != nil {
			log.Error("WebTransport upgrade refused", zap.Int("status", rsp.StatusCode), zap.Error(err))
		} else {
			log.Error("Failed to dial WebTransport server", zap.Error(err))
		}
		return nil, err
	}

	stream, err := session.OpenStreamSync(ctx)
	if err != nil {
		log.Error("Failed to open reliable stream", zap.Error(err))
		session.CloseWithError(0, "")
		return nil, err
	}

	wt := wrapWebtransport(session, stream, log)

	// Streams are invisible to the peer until they carry bytes
	if err := wt.writeStream(nil); err != nil {
		wt.Close()
		return nil, err
	}

	return wt, nil
}

type webtransportConn struct {
	session datagramSession
	stream  io.ReadWriteCloser

	frames chan []byte
	errs   chan error

	mut_write sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	log *zap.Logger
}

func wrapWebtransport(session datagramSession, stream io.ReadWriteCloser, log *zap.Logger) *webtransportConn {
	ctx, cancel := context.WithCancel(context.Background())
	wt := &webtransportConn{
		session: session,
		stream:  stream,
		frames:  make(chan []byte, 16),
		errs:    make(chan error, 2),
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
	}

	go wt.readStream()
	go wt.readDatagrams()

	return wt
}

func (wt *webtransportConn) fail(err error) {
	select {
	case wt.errs <- err:
	default:
	}
}

func (wt *webtransportConn) deliver(frame []byte) bool {
	select {
	case <-wt.ctx.Done():
		return false
	case wt.frames <- frame:
		return true
	}
}

func (wt *webtransportConn) readStream() {
	header := make([]byte, streamHeaderSize)
	for {
		frame, err := readStreamFrame(wt.stream, header)
		if err != nil {
			var tooLarge *FrameTooLarge
			if goerrs.As(err, &tooLarge) {
				wt.log.Error("Peer sent an oversized reliable frame", zap.Uint32("size", tooLarge.Size))
				wt.fail(err)
			} else {
				wt.fail(&errors.ConnectionClosed{Cause: err})
			}
			return
		}

		if !wt.deliver(frame) {
			return
		}
	}
}

func (wt *webtransportConn) readDatagrams() {
	for {
		datagram, err := wt.session.ReceiveDatagram(wt.ctx)
		if err != nil {
			wt.fail(&errors.ConnectionClosed{Cause: err})
			return
		}

		if !wt.deliver(datagram) {
			return
		}
	}
}

func (wt *webtransportConn) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wt.ctx.Done():
		return nil, &errors.ConnectionClosed{Cause: wt.ctx.Err()}
	case err := <-wt.errs:
		return nil, err
	case frame := <-wt.frames:
		return frame, nil
	}
}

func (wt *webtransportConn) WriteFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if message.ChannelOf(frame) == message.Channel_Unreliable && len(frame) <= maxDatagramSize {
		if err := wt.session.SendDatagram(frame); err != nil {
			if cerr := wt.session.Context().Err(); cerr != nil {
				return &errors.ConnectionClosed{Cause: err}
			}
			return err
		}
		return nil
	}

	return wt.writeStream(frame)
}

func (wt *webtransportConn) writeStream(frame []byte) error {
	wt.mut_write.Lock()
	defer wt.mut_write.Unlock()

	if err := writeStreamFrame(wt.stream, frame); err != nil {
		return &errors.ConnectionClosed{Cause: err}
	}
	return nil
}

func (wt *webtransportConn) Close() error {
	wt.closeOnce.Do(func() {
		wt.cancel()
		wt.stream.Close()
		wt.session.CloseWithError(0, "")
	})
	return nil
}

//
// Server side, used by the fake arena

type WebtransportServerParams struct {
	ListenAddress  string
	ListenEndpoint string

	CertPath string
	KeyPath  string

	AllowAllHosts    bool
	AllowlistedHosts []string
	DenylistedHosts  []string

	Logger *zap.Logger
}

type WebtransportServer struct {
	params WebtransportServerParams
	onConn func(ctx context.Context, conn Conn)

	log       *zap.Logger
	stringGen *utils.RandomStringGenerator

	s *webtransport.Server
}

func CreateWebtransportServer(params WebtransportServerParams, onConn func(ctx context.Context, conn Conn)) (*WebtransportServer, error) {
	if params.CertPath == "" || params.KeyPath == "" {
		return nil, &errors.MissingFieldError{MessageName: "WebtransportServerParams", FieldName: "CertPath/KeyPath"}
	}

	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	return &WebtransportServer{
		params:    params,
		onConn:    onConn,
		log:       logger.With(zap.String("handler", "WebTransport")),
		stringGen: utils.CreateRandomstringGenerator(time.Now().UnixMicro()),
	}, nil
}

func (wt *WebtransportServer) onWtRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := wt.log.With(zap.String("wtConnId", wt.stringGen.GetRandomString(6)))

	log.Info("New WebTransport request")

	session, sessionError := wt.s.Upgrade(w, r)
	if sessionError != nil {
		log.Warn("Failed to upgrade HTTP3 request to a WebTransport session", zap.Error(sessionError))
		w.WriteHeader(500)
		return
	}

	stream, err := session.AcceptStream(ctx)
	if err != nil {
		log.Warn("Client never opened its reliable stream", zap.Error(err))
		session.CloseWithError(0, "")
		return
	}

	conn := wrapWebtransport(session, stream, log)
	defer conn.Close()

	wt.onConn(ctx, conn)
}

func (wt *WebtransportServer) Start(ctx context.Context) error {
	certs, err := tls.LoadX509KeyPair(wt.params.CertPath, wt.params.KeyPath)
	if err != nil {
		wt.log.Error("Failed to load certificate pair", zap.Error(err))
		return err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{certs},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(wt.params.ListenEndpoint, func(w http.ResponseWriter, r *http.Request) {
		wt.onWtRequest(ctx, w, r)
	})

	wt.s = &webtransport.Server{
		H3: http3.Server{
			Addr:            wt.params.ListenAddress,
			TLSConfig:       tlsConfig,
			Handler:         mux,
			EnableDatagrams: true,
		},
		CheckOrigin: func(r *http.Request) bool {
			return utils.CheckOrigin(r.Header.Get("Origin"), wt.params.AllowAllHosts, wt.params.AllowlistedHosts, wt.params.DenylistedHosts)
		},
	}

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		wt.log.Info("Starting WebTransport HTTP3 server!", zap.String("path", wt.params.ListenAddress))
		defer wt.log.Info("Shutdown WebTransport HTTP3 server")
		defer wg.Done()

		if err := wt.s.ListenAndServeTLS(wt.params.CertPath, wt.params.KeyPath); err != nil {
			wt.log.Error("Unexpected WebTransport server close!", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := wt.s.Close(); err != nil {
			wt.log.Error("Failed to close WebTransport server", zap.Error(err))
		}
	}()

	wg.Wait()

	wt.log.Info("All WebTransport server goroutines finished. Exiting gracefully.")
	return nil
}
