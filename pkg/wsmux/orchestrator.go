package wsmux

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/requestlog"
	"github.com/sammck-go/logger"
	"github.com/sammck-go/wsmux/pkg/wstnet"
)

// DefaultHandshakeTimeout bounds each stage before the message loop
const DefaultHandshakeTimeout = 30 * time.Second

// StageObserver is told about each stage the orchestrator enters
type StageObserver func(to State)

// OrchestratorConfig is shared, read-only configuration for every session
type OrchestratorConfig struct {
	// TLSConfig serves connections that sniff as TLS. If nil, they are
	// rejected with a protocol error.
	TLSConfig *tls.Config

	Limits RequestLimits

	// HandshakeTimeout is passed to the websocket upgrader
	HandshakeTimeout time.Duration

	// Fallback answers requests that are not websocket upgrades. Defaults to
	// NewFallbackHandler(Version).
	Fallback http.Handler

	// Version is reported by the default fallback handler
	Version string

	// LogRequests logs each fallback request
	LogRequests bool
}

// Orchestrator takes a sniffed connection through the optional TLS
// handshake and the HTTP request, and produces an unaccepted Channel.
type Orchestrator struct {
	logger.Logger
	cfg      OrchestratorConfig
	fallback http.Handler
}

// NewOrchestrator creates an Orchestrator. cfg is copied.
func NewOrchestrator(lg logger.Logger, cfg OrchestratorConfig) *Orchestrator {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	cfg.Limits = cfg.Limits.withDefaults()
	h := cfg.Fallback
	if h == nil {
		h = NewFallbackHandler(cfg.Version)
	}
	if cfg.LogRequests {
		h = requestlog.Wrap(h)
	}
	return &Orchestrator{
		Logger:   lg,
		cfg:      cfg,
		fallback: h,
	}
}

// Config returns the orchestrator configuration
func (o *Orchestrator) Config() OrchestratorConfig {
	return o.cfg
}

// Establish runs the stages between sniffing and the websocket upgrade.
// ra holds the sniffed bytes; they are handed to the next stage and never
// read twice. deadline is the sniffing stage deadline and is refreshed at
// each new stage.
//
// On success the returned Channel owns stream and has not yet been accepted.
// A TLS peer that disconnects before sending a request gets ErrEndOfStream
// after a graceful TLS shutdown. A plaintext peer always sent the sniffed
// bytes, so its early disconnect is a truncated request. A non-upgrade
// request is answered and gets ErrNotUpgrade along with the request. On any
// error the caller still owns stream.
func (o *Orchestrator) Establish(
	ctx context.Context,
	stream wstnet.Channel,
	sniff SniffResult,
	ra *ReadAhead,
	deadline Deadline,
	enter StageObserver,
) (Channel, *http.Request, error) {
	if enter == nil {
		enter = func(State) {}
	}
	lg := logger.Logger(o)
	if ll, ok := stream.(logger.Logger); ok {
		lg = ll
	}

	switch sniff {
	case SniffTLS:
		if o.cfg.TLSConfig == nil {
			return nil, nil, &ProtocolError{Op: "tls-handshake", Err: errors.New("TLS is not enabled")}
		}
		enter(StateTLSHandshaking)
		deadline = deadline.Refresh()
		adapter := wstnet.NewTLSAdapter(stream, o.cfg.TLSConfig)
		if err := adapter.HandshakeAsServer(ctx, ra.Take(), deadline.At()); err != nil {
			return nil, nil, tlsHandshakeError(err)
		}
		lg.DLogf("TLS %s established, sni=%q", tls.VersionName(adapter.ConnectionState().Version), adapter.ServerName())

		enter(StateHTTPReading)
		deadline = deadline.Refresh()
		if err := deadline.Apply(adapter); err != nil {
			return nil, nil, err
		}
		req, br, err := ReadRequest(adapter, nil, o.cfg.Limits)
		if err != nil {
			if errors.Is(err, ErrEndOfStream) {
				if serr := adapter.Shutdown(deadline.Refresh().At()); serr != nil {
					lg.TLogf("TLS shutdown: %s", serr)
				}
			}
			return nil, nil, err
		}
		state := adapter.ConnectionState()
		req.TLS = &state
		req.RemoteAddr = stream.RemoteAddr().String()
		if !websocket.IsWebSocketUpgrade(req) {
			o.serveFallback(lg, adapter, br, req)
			return nil, req, ErrNotUpgrade
		}
		return NewTLSChannel(lg, adapter, br, o.cfg.HandshakeTimeout), req, nil

	case SniffPlaintext:
		enter(StateHTTPReading)
		deadline = deadline.Refresh()
		if err := deadline.Apply(stream); err != nil {
			return nil, nil, err
		}
		req, br, err := ReadRequest(stream, ra.Take(), o.cfg.Limits)
		if err != nil {
			return nil, nil, err
		}
		req.RemoteAddr = stream.RemoteAddr().String()
		if !websocket.IsWebSocketUpgrade(req) {
			o.serveFallback(lg, stream, br, req)
			return nil, req, ErrNotUpgrade
		}
		return NewPlainChannel(lg, stream, br, o.cfg.HandshakeTimeout), req, nil
	}
	return nil, nil, ErrSniffIndeterminate
}

func (o *Orchestrator) serveFallback(lg logger.Logger, conn net.Conn, br *bufio.Reader, req *http.Request) {
	lg.DLogf("not an upgrade: %s %s", req.Method, req.URL.Path)
	w := newConnResponseWriter(conn, br, req)
	o.fallback.ServeHTTP(w, req)
	if err := w.finish(); err != nil {
		lg.DLogf("failed to send response: %s", err)
	}
}

// tlsHandshakeError keeps transport failures as they are and reports
// everything else the TLS engine rejected as a protocol error.
func tlsHandshakeError(err error) error {
	if isIOError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ProtocolError{Op: "tls-handshake", Err: err}
}
