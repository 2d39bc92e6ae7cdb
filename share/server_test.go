package wsshare

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/sammck-go/logger"
)

func startTestServer(t *testing.T, config *ServerConfig) (*Server, context.CancelFunc) {
	t.Helper()
	config.BindAddr = "127.0.0.1"
	s, err := NewServer(logger.NilLogger, config)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() {
		cancel()
		s.WaitShutdown()
	})
	return s, cancel
}

func TestServerEchoesOnOnePort(t *testing.T) {
	s, _ := startTestServer(t, &ServerConfig{ServerName: "test-server"})
	addr := s.Addr().String()

	d := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: true},
	}
	for _, scheme := range []string{"ws", "wss"} {
		conn, resp, err := d.Dial(scheme+"://"+addr+"/", nil)
		require.NoError(t, err, scheme)
		require.Equal(t, "test-server", resp.Header.Get("Server"))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
		mt, p, err := conn.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.TextMessage, mt)
		require.Equal(t, "hello", string(p))
		conn.Close()
	}
}

func TestServerVersionEndpoint(t *testing.T) {
	s, _ := startTestServer(t, &ServerConfig{})
	resp, err := http.Get("http://" + s.Addr().String() + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, BuildVersion+"\n", string(body))
}

func TestServerRejectsTLSWhenDisabled(t *testing.T) {
	s, _ := startTestServer(t, &ServerConfig{DisableTLS: true})
	_, err := tls.DialWithDialer(&net.Dialer{Timeout: 2 * time.Second}, "tcp", s.Addr().String(),
		&tls.Config{InsecureSkipVerify: true})
	require.Error(t, err)
	require.Eventually(t, func() bool {
		return s.Stats().NumFaulted() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerShutdownClosesSessions(t *testing.T) {
	s, cancel := startTestServer(t, &ServerConfig{})
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+"/", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool {
		return s.Stats().NumOpen() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	done := make(chan error, 1)
	go func() { done <- s.WaitShutdown() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool {
		return s.Stats().NumOpen() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
