package wsshare

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sammck-go/logger"
)

// flakyListener fails a fixed number of accepts before handing out conns
type flakyListener struct {
	lock     sync.Mutex
	failures int
	conns    chan net.Conn
	closed   chan struct{}
	once     sync.Once
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.lock.Lock()
	if l.failures > 0 {
		l.failures--
		l.lock.Unlock()
		return nil, errors.New("too many open files")
	}
	l.lock.Unlock()
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *flakyListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *flakyListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestListenerSurvivesAcceptFailures(t *testing.T) {
	fl := &flakyListener{
		failures: 3,
		conns:    make(chan net.Conn, 1),
		closed:   make(chan struct{}),
	}
	l := &Listener{ln: fl}
	l.InitHelper(logger.NilLogger, l)

	a, b := net.Pipe()
	defer b.Close()
	fl.conns <- a

	accepted := make(chan net.Conn, 1)
	done := make(chan error, 1)
	go func() {
		done <- l.Serve(func(c net.Conn) { accepted <- c })
	}()

	select {
	case c := <-accepted:
		if c != a {
			t.Errorf("got a different conn")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no connection accepted after transient failures")
	}

	l.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() returned %s", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve() did not return after shutdown")
	}
}

func TestListenErrorKeepsCause(t *testing.T) {
	lg, err := logger.New(logger.WithPrefix("listener"), logger.WithWriter(io.Discard))
	if err != nil {
		t.Fatalf("logger.New() returned error: %s", err)
	}
	first, err := Listen(context.Background(), lg, "127.0.0.1:0", false)
	if err != nil {
		t.Fatalf("Listen() returned error: %s", err)
	}
	defer first.Close()

	_, err = Listen(context.Background(), lg, first.Addr().String(), false)
	if err == nil {
		t.Fatalf("second Listen() on %s succeeded", first.Addr())
	}
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		t.Errorf("cause lost: %T %s", err, err)
	}
	if !strings.HasPrefix(err.Error(), "listener: ") {
		t.Errorf("missing logger prefix: %s", err)
	}
}
