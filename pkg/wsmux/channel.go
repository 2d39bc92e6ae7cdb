package wsmux

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sammck-go/logger"
)

// ChannelKind names the transport beneath a Channel
type ChannelKind int

const (
	// ChannelPlain is a WebSocket over a bare TCP stream
	ChannelPlain ChannelKind = iota
	// ChannelTLS is a WebSocket over a handshaked TLS session
	ChannelTLS
)

func (k ChannelKind) String() string {
	if k == ChannelTLS {
		return "wss"
	}
	return "ws"
}

// Channel is the WebSocket connection of one session, independent of the
// transport beneath it. Implementations are *PlainChannel and *TLSChannel.
//
// At most one read and one write may be outstanding at a time. Close, Ping
// and CloseWithStatus may be called from any goroutine.
type Channel interface {
	// Kind returns the transport variant chosen at construction
	Kind() ChannelKind

	// AcceptUpgrade completes the WebSocket handshake for a request that has
	// already been read from the stream
	AcceptUpgrade(req *http.Request) error

	// ReadMessage appends one complete message to buf and returns its length.
	// The read that processes the peer's close frame returns an error
	// matching ErrClosed; later calls return ErrNotOpen.
	ReadMessage(buf *bytes.Buffer) (int, error)

	// WriteMessage sends p as one text or binary message
	WriteMessage(p []byte, text bool) (int, error)

	Ping(data []byte) error
	Pong(data []byte) error

	// CloseWithStatus sends a close frame. The channel stays readable until
	// the peer's close reply arrives.
	CloseWithStatus(code int, reason string) error

	// Close tears the connection down without a close handshake
	Close() error

	// IsText reports whether the most recently read message was text
	IsText() bool
	// IsBinary reports whether the most recently read message was binary
	IsBinary() bool

	RemoteEndpoint() net.Addr

	SetOption(name OptionName, value interface{}) error
	Option(name OptionName) (interface{}, error)
}

// controlWriteTimeout bounds writes of ping, pong and close frames
const controlWriteTimeout = 10 * time.Second

// peerCloseError is returned by the read that observes the peer's close
// frame. It matches ErrClosed and unwraps to the codec's *websocket.CloseError.
type peerCloseError struct {
	cause *websocket.CloseError
}

func (e *peerCloseError) Error() string {
	return ErrClosed.Error() + ": " + e.cause.Error()
}

func (e *peerCloseError) Is(target error) bool {
	return target == ErrClosed
}

func (e *peerCloseError) Unwrap() error {
	return e.cause
}

// droppedError is returned when the stream ends without a close frame. The
// codec reports that as a synthetic 1006 close; it matches
// io.ErrUnexpectedEOF, never ErrClosed.
type droppedError struct {
	cause *websocket.CloseError
}

func (e *droppedError) Error() string {
	return "connection dropped without close frame: " + e.cause.Error()
}

func (e *droppedError) Is(target error) bool {
	return target == io.ErrUnexpectedEOF
}

func (e *droppedError) Unwrap() error {
	return e.cause
}

// wsEndpoint is the codec state owned by one concrete channel
type wsEndpoint struct {
	logger.Logger

	handshakeTimeout time.Duration

	lock    sync.Mutex
	opts    channelOptions
	conn    *websocket.Conn
	stopped bool
	pinger  chan struct{}

	// accessed only by the reading goroutine
	lastText  bool
	readDone  bool
	readLimit int64
}

func (e *wsEndpoint) initEndpoint(lg logger.Logger, handshakeTimeout time.Duration) {
	e.Logger = lg
	e.handshakeTimeout = handshakeTimeout
	e.opts = defaultChannelOptions()
}

// open returns the codec conn if the channel is accepted and not stopped
func (e *wsEndpoint) open() *websocket.Conn {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.stopped {
		return nil
	}
	return e.conn
}

func (e *wsEndpoint) accept(stream net.Conn, br *bufio.Reader, req *http.Request) error {
	e.lock.Lock()
	if e.conn != nil {
		e.lock.Unlock()
		return ErrAlreadyAccepted
	}
	if e.stopped {
		e.lock.Unlock()
		return ErrNotOpen
	}
	opts := e.opts
	e.lock.Unlock()

	respHeader := make(http.Header)
	if opts.decorator != nil {
		opts.decorator(respHeader)
	}
	upgrader := websocket.Upgrader{
		HandshakeTimeout: e.handshakeTimeout,
		CheckOrigin:      func(r *http.Request) bool { return true },
	}
	w := newConnResponseWriter(stream, br, req)
	conn, err := upgrader.Upgrade(w, req, respHeader)
	if err != nil {
		if ferr := w.finish(); ferr != nil {
			e.DLogf("failed to send upgrade rejection: %s", ferr)
		}
		if isIOError(err) {
			return err
		}
		return &ProtocolError{Op: "ws-accept", Err: err}
	}

	conn.SetReadLimit(opts.maxMessageSize)
	e.readLimit = opts.maxMessageSize
	autoPong := conn.PingHandler()
	conn.SetPingHandler(func(appData string) error {
		e.extendReadDeadline(conn)
		return autoPong(appData)
	})
	conn.SetPongHandler(func(string) error {
		e.extendReadDeadline(conn)
		return nil
	})

	e.lock.Lock()
	defer e.lock.Unlock()
	if e.stopped {
		conn.Close()
		return ErrNotOpen
	}
	e.conn = conn
	e.restartPingerLocked()
	return nil
}

func (e *wsEndpoint) idleTimeout() time.Duration {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.opts.idleTimeout
}

func (e *wsEndpoint) extendReadDeadline(conn *websocket.Conn) {
	var t time.Time
	if idle := e.idleTimeout(); idle > 0 {
		t = time.Now().Add(idle)
	}
	conn.SetReadDeadline(t)
}

// restartPingerLocked replaces the keepalive goroutine to match the current
// idle timeout. e.lock must be held.
func (e *wsEndpoint) restartPingerLocked() {
	if e.pinger != nil {
		close(e.pinger)
		e.pinger = nil
	}
	if e.conn == nil || e.stopped || e.opts.idleTimeout <= 0 {
		return
	}
	stop := make(chan struct{})
	e.pinger = stop
	go e.keepalive(e.conn, e.opts.idleTimeout/2, stop)
}

func (e *wsEndpoint) keepalive(conn *websocket.Conn, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval)); err != nil {
				e.TLogf("keepalive stopped: %s", err)
				return
			}
		}
	}
}

// stop marks the channel closed and returns the codec conn, if any, so the
// caller can release it. Only the first call returns true.
func (e *wsEndpoint) stop() (*websocket.Conn, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.stopped {
		return nil, false
	}
	e.stopped = true
	if e.pinger != nil {
		close(e.pinger)
		e.pinger = nil
	}
	return e.conn, true
}

// readFailed converts a codec read error and stops the channel; gorilla
// conns must not be read again after an error.
func (e *wsEndpoint) readFailed(err error) error {
	e.readDone = true
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseAbnormalClosure {
			return &droppedError{cause: closeErr}
		}
		return &peerCloseError{cause: closeErr}
	}
	if isIOError(err) || errors.Is(err, websocket.ErrReadLimit) {
		return err
	}
	return &ProtocolError{Op: "ws-read", Err: err}
}

func (e *wsEndpoint) readMessage(buf *bytes.Buffer) (int, error) {
	conn := e.open()
	if conn == nil || e.readDone {
		return 0, ErrNotOpen
	}
	e.lock.Lock()
	limit := e.opts.maxMessageSize
	e.lock.Unlock()
	if limit != e.readLimit {
		conn.SetReadLimit(limit)
		e.readLimit = limit
	}
	e.extendReadDeadline(conn)
	mt, r, err := conn.NextReader()
	if err != nil {
		return 0, e.readFailed(err)
	}
	n, err := buf.ReadFrom(r)
	if err != nil {
		return int(n), e.readFailed(err)
	}
	e.lastText = mt == websocket.TextMessage
	return int(n), nil
}

func (e *wsEndpoint) writeMessage(p []byte, text bool) (int, error) {
	conn := e.open()
	if conn == nil || e.readDone {
		return 0, ErrNotOpen
	}
	e.lock.Lock()
	opts := e.opts
	e.lock.Unlock()

	var deadline time.Time
	if opts.idleTimeout > 0 {
		deadline = time.Now().Add(opts.idleTimeout)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return 0, err
	}
	mt := websocket.BinaryMessage
	if text {
		mt = websocket.TextMessage
	}
	if !opts.autoFragment {
		if err := conn.WriteMessage(mt, p); err != nil {
			return 0, e.writeFailed(err)
		}
		return len(p), nil
	}
	w, err := conn.NextWriter(mt)
	if err != nil {
		return 0, e.writeFailed(err)
	}
	n, err := w.Write(p)
	if err != nil {
		w.Close()
		return n, e.writeFailed(err)
	}
	if err := w.Close(); err != nil {
		return n, e.writeFailed(err)
	}
	return n, nil
}

func (e *wsEndpoint) writeFailed(err error) error {
	if errors.Is(err, websocket.ErrCloseSent) {
		return ErrNotOpen
	}
	if isIOError(err) {
		return err
	}
	return &ProtocolError{Op: "ws-write", Err: err}
}

func (e *wsEndpoint) control(messageType int, data []byte) error {
	conn := e.open()
	if conn == nil {
		return ErrNotOpen
	}
	err := conn.WriteControl(messageType, data, time.Now().Add(controlWriteTimeout))
	if err != nil {
		return e.writeFailed(err)
	}
	return nil
}

// Ping sends a ping control frame
func (e *wsEndpoint) Ping(data []byte) error {
	return e.control(websocket.PingMessage, data)
}

// Pong sends an unsolicited pong control frame
func (e *wsEndpoint) Pong(data []byte) error {
	return e.control(websocket.PongMessage, data)
}

// CloseWithStatus starts the closing handshake
func (e *wsEndpoint) CloseWithStatus(code int, reason string) error {
	return e.control(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

// IsText reports whether the last message read was a text message
func (e *wsEndpoint) IsText() bool {
	return e.lastText
}

// IsBinary reports whether the last message read was a binary message
func (e *wsEndpoint) IsBinary() bool {
	return !e.lastText
}

// SetOption sets one of the recognized channel options. Options may be set
// before or after AcceptUpgrade; the header decorator only matters before.
// A new max-message-size takes effect at the next ReadMessage.
func (e *wsEndpoint) SetOption(name OptionName, value interface{}) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if err := e.opts.set(name, value); err != nil {
		return err
	}
	if e.conn != nil && name == OptionIdleTimeout {
		e.restartPingerLocked()
	}
	return nil
}

// Option returns the current value of a recognized channel option
func (e *wsEndpoint) Option(name OptionName) (interface{}, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.opts.get(name)
}
