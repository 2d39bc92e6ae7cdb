package wsmux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/jpillora/sizestr"
	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
	"github.com/sammck-go/wsmux/pkg/wstnet"
)

// DefaultIdleTimeout is how long an open websocket may stay silent
const DefaultIdleTimeout = 300 * time.Second

// SessionConfig is the per-session configuration. It is normally shared by
// every session of a server.
type SessionConfig struct {
	// HandshakeTimeout bounds each stage before the message loop
	HandshakeTimeout time.Duration

	// IdleTimeout bounds silence in the message loop; keepalive pings are sent
	// at half of it. Zero disables it.
	IdleTimeout time.Duration

	// MaxSniffBytes caps the bytes read while classifying the transport
	MaxSniffBytes int

	MaxMessageSize int64

	// DisableAutoFragment sends each message as a single frame
	DisableAutoFragment bool

	// ServerName is sent in the Server header of the upgrade response
	ServerName string

	// Handler produces the reply to each message. Defaults to an EchoHandler.
	Handler MessageHandler

	// OnTransition, if set, is called after each state change
	OnTransition func(from, to State)
}

type byteCounter interface {
	GetNumBytesRead() int64
	GetNumBytesWritten() int64
}

// Session runs the state machine of one accepted connection, from sniffing
// to close. Shutting a session down closes its connection, which aborts any
// I/O in progress.
type Session struct {
	asyncobj.Helper

	cfg    SessionConfig
	orch   *Orchestrator
	stream wstnet.Channel

	// protected by Lock
	state State
	ch    Channel

	started     time.Time
	numMessages int64
}

// NewSession creates a session for stream. The session owns stream from
// here on.
func NewSession(lg logger.Logger, orch *Orchestrator, stream wstnet.Channel, cfg SessionConfig) *Session {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.Handler == nil {
		cfg.Handler = &EchoHandler{Logger: lg}
	}
	s := &Session{
		cfg:    cfg,
		orch:   orch,
		stream: stream,
		state:  StateSniffing,
	}
	s.InitHelper(lg, s)
	s.SetIsActivated()
	return s
}

func (s *Session) String() string {
	return "session " + s.peer()
}

// State returns the current state
func (s *Session) State() State {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	return s.state
}

// NumMessages returns the number of messages answered so far
func (s *Session) NumMessages() int64 {
	return atomic.LoadInt64(&s.numMessages)
}

// HandleOnceShutdown closes the connection. This is an abortive close: any
// read or write in progress fails.
func (s *Session) HandleOnceShutdown(completionErr error) error {
	s.Lock.Lock()
	ch := s.ch
	s.Lock.Unlock()
	if ch != nil {
		if err := ch.Close(); err != nil {
			s.TLogf("channel close: %s", err)
		}
	}
	if err := s.stream.Close(); err != nil {
		s.TLogf("stream close: %s", err)
	}
	return completionErr
}

// Run drives the session to StateClosed and returns the error that ended
// it, wrapped in a *StageError. Use KindOf to tell a normal close from a
// fault; a normal close is only logged at debug level. Cancelling ctx
// aborts the session.
func (s *Session) Run(ctx context.Context) error {
	s.started = time.Now()
	s.ShutdownOnContext(ctx)

	err := s.run(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil && KindOf(err) == KindChannel {
		err = &StageError{Stage: s.State(), Peer: s.peer(), Err: ctxErr}
	}
	s.transition(StateClosing)
	s.logResult(err)

	var completion error
	if kind := KindOf(err); kind != KindNormalClose && kind != KindNone {
		completion = err
	}
	s.Shutdown(completion)
	s.transition(StateClosed)
	return err
}

func (s *Session) peer() string {
	if addr := s.stream.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

func (s *Session) stageErr(err error) error {
	return &StageError{Stage: s.State(), Peer: s.peer(), Err: err}
}

// transition moves the state machine. An invalid transition is a bug.
func (s *Session) transition(to State) {
	s.Lock.Lock()
	from := s.state
	if !validTransition(from, to) {
		s.Lock.Unlock()
		s.Panicf("invalid session transition %s -> %s", from, to)
		return
	}
	s.state = to
	s.Lock.Unlock()
	s.TLogf("%s -> %s", from, to)
	if s.cfg.OnTransition != nil {
		s.cfg.OnTransition(from, to)
	}
}

func (s *Session) setChannel(ch Channel) {
	s.Lock.Lock()
	s.ch = ch
	s.Lock.Unlock()
	// shutdown may have run before ch was visible to it
	if s.IsStartedShutdown() {
		ch.Close()
	}
}

func (s *Session) run(ctx context.Context) error {
	deadline := NewDeadline(s.cfg.HandshakeTimeout)
	if err := deadline.Apply(s.stream); err != nil {
		return s.stageErr(err)
	}
	var ra ReadAhead
	result, err := Classify(s.stream, &ra, s.cfg.MaxSniffBytes)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = ErrEndOfStream
			if cerr := s.stream.CloseWrite(); cerr != nil {
				s.TLogf("half-close: %s", cerr)
			}
		}
		return s.stageErr(err)
	}
	s.TLogf("sniffed %s", result)

	ch, req, err := s.orch.Establish(ctx, s.stream, result, &ra, deadline, s.transition)
	if err != nil {
		return s.stageErr(err)
	}
	s.setChannel(ch)

	s.transition(StateWSUpgrading)
	if err := s.configureChannel(ch); err != nil {
		return s.stageErr(err)
	}
	if err := ch.AcceptUpgrade(req); err != nil {
		return s.stageErr(err)
	}
	s.DLogf("%s upgraded for %s, path=%s", ch.Kind(), ch.RemoteEndpoint(), req.URL.Path)

	s.transition(StateMessageLoop)
	for {
		var buf bytes.Buffer
		if _, err := ch.ReadMessage(&buf); err != nil {
			return s.stageErr(err)
		}
		reply, err := s.cfg.Handler.HandleMessage(ctx, Message{Text: ch.IsText(), Payload: buf.Bytes()})
		if err != nil {
			return s.stageErr(err)
		}
		if _, err := ch.WriteMessage(reply.Payload, reply.Text); err != nil {
			return s.stageErr(err)
		}
		atomic.AddInt64(&s.numMessages, 1)
		s.transition(StateMessageLoop)
	}
}

func (s *Session) configureChannel(ch Channel) error {
	opts := []struct {
		name  OptionName
		value interface{}
	}{
		{OptionIdleTimeout, s.cfg.IdleTimeout},
		{OptionMaxMessageSize, s.cfg.MaxMessageSize},
		{OptionAutoFragment, !s.cfg.DisableAutoFragment},
	}
	if s.cfg.ServerName != "" {
		opts = append(opts, struct {
			name  OptionName
			value interface{}
		}{OptionServerHeaderDecorator, ServerNameDecorator(s.cfg.ServerName)})
	}
	for _, o := range opts {
		if err := ch.SetOption(o.name, o.value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) logResult(err error) {
	kind := KindOf(err)
	switch kind {
	case KindNone, KindNormalClose:
		s.DLogf("closed: %s", err)
	default:
		s.ILogf("%s: %s", kind, err)
	}
	if bc, ok := s.stream.(byteCounter); ok {
		s.DLogf("%s, %d messages, received %s, sent %s",
			time.Since(s.started).Round(time.Millisecond),
			s.NumMessages(),
			sizestr.ToString(bc.GetNumBytesRead()),
			sizestr.ToString(bc.GetNumBytesWritten()))
	}
}
