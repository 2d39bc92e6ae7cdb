package wstnet

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prep/socketpair"
	"github.com/stretchr/testify/require"

	"github.com/sammck-go/logger"
)

func newPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b, err := socketpair.New("unix")
	if err != nil {
		t.Fatalf("socketpair.New() returned error: %s", err)
	}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestReplayConnServesPrefixFirst(t *testing.T) {
	a, b := newPair(t)
	go func() {
		b.Write([]byte(" world"))
		b.(WriteHalfCloser).CloseWrite()
	}()

	rc := NewReplayConn(a, []byte("hello"))
	require.Equal(t, 5, rc.(*ReplayConn).Buffered())
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestReplayConnEmptyPrefixIsPassthrough(t *testing.T) {
	a, _ := newPair(t)
	if NewReplayConn(a, nil) != a {
		t.Errorf("expected the original conn for an empty prefix")
	}
}

func TestSocketChannelCountsAndHalfCloses(t *testing.T) {
	a, b := newPair(t)
	ch := NewSocketChannel(logger.NilLogger, a)
	require.NotZero(t, ch.ID)

	_, err := ch.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, ch.CloseWrite())

	// the peer sees the payload then a clean EOF
	got, err := io.ReadAll(b)
	require.NoError(t, err)
	require.Equal(t, "ping", string(got))

	// the read half is still open
	_, err = b.Write([]byte("pong"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(ch, buf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(buf))

	require.EqualValues(t, 4, ch.GetNumBytesRead())
	require.EqualValues(t, 4, ch.GetNumBytesWritten())
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	// a failed half-close carries the logger prefix and keeps its cause
	err = ch.CloseWrite()
	require.Error(t, err)
	require.ErrorIs(t, err, net.ErrClosed)
	require.Contains(t, err.Error(), ch.Strname)
}

func TestSocketChannelDeadline(t *testing.T) {
	a, _ := newPair(t)
	ch := NewSocketChannel(logger.NilLogger, a)
	require.NoError(t, ch.SetDeadline(time.Now().Add(20*time.Millisecond)))
	_, err := ch.Read(make([]byte, 1))
	ne, ok := err.(net.Error)
	require.True(t, ok, "expected net.Error, got %T", err)
	require.True(t, ne.Timeout())
}

func TestTLSAdapterUsesPrebufferedBytes(t *testing.T) {
	cert, err := NewSelfSignedCertificate("localhost", "127.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, FingerprintCertificate(cert))

	serverSide, clientSide := newPair(t)

	clientErr := make(chan error, 1)
	go func() {
		tc := tls.Client(clientSide, &tls.Config{InsecureSkipVerify: true, ServerName: "localhost"})
		if _, err := tc.Write([]byte("over tls")); err != nil {
			clientErr <- err
			return
		}
		reply := make([]byte, 5)
		if _, err := io.ReadFull(tc, reply); err != nil {
			clientErr <- err
			return
		}
		if !bytes.Equal(reply, []byte("reply")) {
			clientErr <- io.ErrUnexpectedEOF
			return
		}
		// answer the server's close_notify
		io.Copy(io.Discard, tc)
		tc.Close()
		clientErr <- nil
	}()

	raw := NewSocketChannel(logger.NilLogger, serverSide)
	// pull the record header off the wire the way a sniffer would
	head := make([]byte, 6)
	_, err = io.ReadFull(raw, head)
	require.NoError(t, err)
	require.Equal(t, byte(0x16), head[0])

	adapter := NewTLSAdapter(raw, &tls.Config{Certificates: []tls.Certificate{cert}})
	_, err = adapter.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrHandshakeNotDone)

	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, adapter.HandshakeAsServer(context.Background(), head, deadline))
	require.True(t, adapter.Handshaked())
	require.Equal(t, "localhost", adapter.ServerName())

	got := make([]byte, 8)
	_, err = io.ReadFull(adapter, got)
	require.NoError(t, err)
	require.Equal(t, "over tls", string(got))
	_, err = adapter.Write([]byte("reply"))
	require.NoError(t, err)

	require.NoError(t, adapter.Shutdown(time.Now().Add(5*time.Second)))
	require.NoError(t, <-clientErr)
	adapter.Close()
}
