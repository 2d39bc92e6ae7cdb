package wsshare

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
	"github.com/sammck-go/wsmux/pkg/wstnet"
)

// ConnHandler takes ownership of an accepted connection. It must not block.
type ConnHandler func(conn net.Conn)

// Listener owns a listening TCP socket and its accept loop
type Listener struct {
	asyncobj.Helper
	ln net.Listener
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Listen opens a TCP listening socket on addr with SO_REUSEADDR set, and
// SO_REUSEPORT as well if reusePort is true.
func Listen(ctx context.Context, lg logger.Logger, addr string, reusePort bool) (*Listener, error) {
	lc := net.ListenConfig{Control: wstnet.ListenControl(reusePort)}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		lg.DLogf("Listen failed: %s", err)
		return nil, fmt.Errorf("%s: Listen failed: %w", lg.Prefix(), err)
	}
	l := &Listener{ln: ln}
	l.InitHelper(lg, l)
	l.SetIsActivated()
	return l, nil
}

func (l *Listener) String() string {
	return "listener " + l.ln.Addr().String()
}

// Addr returns the address the listener is bound to
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// HandleOnceShutdown closes the listening socket, which ends Serve
func (l *Listener) HandleOnceShutdown(completionErr error) error {
	l.DLogf("HandleOnceShutdown")
	err := l.ln.Close()
	if err != nil {
		l.DLogf("close of listener failed, ignoring: %s", err)
	}
	return completionErr
}

// Serve accepts connections and hands each one to handle until the
// listener is shut down. A failed accept is logged and retried after a
// backoff delay; it never ends the loop.
func (l *Listener) Serve(handle ConnHandler) error {
	b := &backoff.Backoff{
		Min:    5 * time.Millisecond,
		Max:    time.Second,
		Factor: 2,
	}
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.IsStartedShutdown() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			d := b.Duration()
			l.WLogf("Accept failed, retrying in %s: %s", d, err)
			select {
			case <-time.After(d):
			case <-l.ShutdownStartedChan():
				return nil
			}
			continue
		}
		b.Reset()
		handle(conn)
	}
}
