package wsmux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/gorilla/websocket"
)

// ErrorKind classifies why a stage ended
type ErrorKind int

const (
	// KindNone means no error
	KindNone ErrorKind = iota
	// KindChannel is an I/O failure of the underlying connection
	KindChannel
	// KindTimeout is an expired stage deadline
	KindTimeout
	// KindProtocol is malformed or oversized input from the peer
	KindProtocol
	// KindNormalClose is a peer-initiated end of session; it is not a fault
	KindNormalClose
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindChannel:
		return "channel-error"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol-error"
	case KindNormalClose:
		return "normal-close"
	}
	return "unknown"
}

var (
	// ErrEndOfStream means the peer closed cleanly before sending a request
	ErrEndOfStream = errors.New("end of stream before request")

	// ErrNotUpgrade means the request was plain HTTP; it was answered and the
	// session ends
	ErrNotUpgrade = errors.New("request is not a websocket upgrade")

	// ErrClosed is returned exactly once, by the read that processes the
	// peer's close frame
	ErrClosed = errors.New("websocket closed by peer")

	// ErrNotOpen is returned by channel operations after the channel has
	// closed or before it has been accepted
	ErrNotOpen = errors.New("websocket channel is not open")

	// ErrAlreadyAccepted is returned by a second AcceptUpgrade
	ErrAlreadyAccepted = errors.New("websocket upgrade already accepted")

	// ErrBodyTooLarge means the request body exceeds the configured limit
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrHeaderTooLarge means the request head exceeds the configured limit
	ErrHeaderTooLarge = errors.New("request header too large")

	// ErrSniffIndeterminate means the sniff cap was reached without a decision
	ErrSniffIndeterminate = errors.New("unable to classify connection")

	// ErrUnknownOption is returned for option names outside the fixed set
	ErrUnknownOption = errors.New("unknown channel option")

	// ErrBadOptionValue is returned when an option value has the wrong type or range
	ErrBadOptionValue = errors.New("bad channel option value")
)

// ProtocolError reports malformed or oversized input from the peer
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol error: %s", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// StageError records the stage in which a session failed and the peer it was
// talking to.
type StageError struct {
	Stage State
	Peer  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Stage, e.Peer, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// KindOf classifies an error returned from any stage of a session
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var closeErr *websocket.CloseError
	var protoErr *ProtocolError
	var netErr net.Error
	switch {
	case errors.Is(err, ErrEndOfStream), errors.Is(err, ErrNotUpgrade), errors.Is(err, ErrClosed):
		return KindNormalClose
	case errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure:
		return KindNormalClose
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	case errors.As(err, &protoErr),
		errors.Is(err, ErrBodyTooLarge),
		errors.Is(err, ErrHeaderTooLarge),
		errors.Is(err, ErrSniffIndeterminate),
		errors.Is(err, websocket.ErrReadLimit):
		return KindProtocol
	}
	return KindChannel
}

// isIOError reports whether err came from the transport rather than from a
// codec complaining about what it read.
func isIOError(err error) bool {
	var netErr net.Error
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.As(err, &netErr)
}
