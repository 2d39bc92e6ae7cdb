package wsmux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"

	"github.com/gorilla/websocket"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{ErrEndOfStream, KindNormalClose},
		{ErrNotUpgrade, KindNormalClose},
		{&peerCloseError{cause: &websocket.CloseError{Code: websocket.CloseNormalClosure}}, KindNormalClose},
		{&websocket.CloseError{Code: websocket.CloseGoingAway}, KindNormalClose},
		{&websocket.CloseError{Code: websocket.CloseAbnormalClosure}, KindChannel},
		{&droppedError{cause: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}}, KindChannel},
		{os.ErrDeadlineExceeded, KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{&net.OpError{Op: "read", Err: timeoutError{}}, KindTimeout},
		{&ProtocolError{Op: "http-read", Err: errors.New("bad")}, KindProtocol},
		{ErrBodyTooLarge, KindProtocol},
		{ErrHeaderTooLarge, KindProtocol},
		{websocket.ErrReadLimit, KindProtocol},
		{io.ErrUnexpectedEOF, KindChannel},
		{net.ErrClosed, KindChannel},
		{errors.New("something else"), KindChannel},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
		wrapped := &StageError{Stage: StateHTTPReading, Peer: "127.0.0.1:1", Err: tt.err}
		if tt.err != nil {
			if got := KindOf(fmt.Errorf("outer: %w", wrapped)); got != tt.want {
				t.Errorf("KindOf(wrapped %v) = %s, want %s", tt.err, got, tt.want)
			}
		}
	}
}

func TestStageErrorMessage(t *testing.T) {
	err := &StageError{Stage: StateTLSHandshaking, Peer: "10.0.0.1:443", Err: io.ErrUnexpectedEOF}
	want := "tls-handshaking [10.0.0.1:443]: unexpected EOF"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("StageError does not unwrap")
	}
}

func TestPeerCloseErrorMatchesClosed(t *testing.T) {
	ce := &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"}
	err := error(&peerCloseError{cause: ce})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected errors.Is(err, ErrClosed)")
	}
	var got *websocket.CloseError
	if !errors.As(err, &got) || got.Code != websocket.CloseNormalClosure {
		t.Errorf("expected the close frame to be reachable, got %v", got)
	}
}

func TestDroppedErrorIsNotClosed(t *testing.T) {
	ce := &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: io.ErrUnexpectedEOF.Error()}
	err := error(&droppedError{cause: ce})
	if errors.Is(err, ErrClosed) {
		t.Errorf("a dropped connection must not match ErrClosed")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected errors.Is(err, io.ErrUnexpectedEOF)")
	}
	var got *websocket.CloseError
	if !errors.As(err, &got) || got != ce {
		t.Errorf("expected the codec error to be reachable, got %v", got)
	}
}
