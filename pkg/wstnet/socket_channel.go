package wstnet

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sammck-go/logger"
)

var nextChannelID int32

// AllocChannelID allocates a unique Channel ID number, for logging purposes
func AllocChannelID() int32 {
	return atomic.AddInt32(&nextChannelID, 1)
}

// SocketChannel implements Channel on top of an accepted net.Conn, counting
// bytes in each direction.
type SocketChannel struct {
	net.Conn
	logger.Logger
	ID              int32
	Strname         string
	numBytesRead    int64
	numBytesWritten int64

	closeOnce sync.Once
	closeErr  error
}

// NewSocketChannel wraps netConn. The returned channel owns netConn.
func NewSocketChannel(lg logger.Logger, netConn net.Conn) *SocketChannel {
	id := AllocChannelID()
	name := fmt.Sprintf("[%d]%s", id, netConn.RemoteAddr())
	return &SocketChannel{
		Conn:    netConn,
		Logger:  lg.ForkLogStr(name),
		ID:      id,
		Strname: name,
	}
}

// Read implements the Reader interface
func (c *SocketChannel) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	atomic.AddInt64(&c.numBytesRead, int64(n))
	return n, err
}

// Write implements the Writer interface
func (c *SocketChannel) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	atomic.AddInt64(&c.numBytesWritten, int64(n))
	return n, err
}

// CloseWrite shuts down the writing side of the socket. If the wrapped
// net.Conn cannot half-close, the call is logged and ignored.
func (c *SocketChannel) CloseWrite() error {
	whc, ok := c.Conn.(WriteHalfCloser)
	if !ok {
		c.DLogf("CloseWrite() ignored--not implemented by %T", c.Conn)
		return nil
	}
	if err := whc.CloseWrite(); err != nil {
		return fmt.Errorf("%s: CloseWrite failed: %w", c.Prefix(), err)
	}
	return nil
}

// Close closes the socket. Subsequent calls return the first result.
func (c *SocketChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

// GetNumBytesRead returns the number of bytes read so far
func (c *SocketChannel) GetNumBytesRead() int64 {
	return atomic.LoadInt64(&c.numBytesRead)
}

// GetNumBytesWritten returns the number of bytes written so far
func (c *SocketChannel) GetNumBytesWritten() int64 {
	return atomic.LoadInt64(&c.numBytesWritten)
}

func (c *SocketChannel) String() string {
	return c.Strname
}
