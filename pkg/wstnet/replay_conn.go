package wstnet

import (
	"net"
)

// ReplayConn is a net.Conn that returns a prefix of bytes that were already
// pulled off the wire before reading from the wrapped conn. Everything other
// than Read passes through.
type ReplayConn struct {
	net.Conn
	prefix []byte
}

// NewReplayConn returns conn unchanged if prefix is empty. ReplayConn takes
// ownership of prefix.
func NewReplayConn(conn net.Conn, prefix []byte) net.Conn {
	if len(prefix) == 0 {
		return conn
	}
	return &ReplayConn{Conn: conn, prefix: prefix}
}

// Read drains the replay prefix first. It never mixes prefix bytes and fresh
// bytes in one call, so a read that is satisfied by the prefix cannot block.
func (c *ReplayConn) Read(p []byte) (int, error) {
	if len(c.prefix) > 0 {
		n := copy(p, c.prefix)
		c.prefix = c.prefix[n:]
		if len(c.prefix) == 0 {
			c.prefix = nil
		}
		return n, nil
	}
	return c.Conn.Read(p)
}

// Buffered returns the number of replay bytes not yet consumed
func (c *ReplayConn) Buffered() int {
	return len(c.prefix)
}

// CloseWrite half-closes the wrapped conn when it supports it
func (c *ReplayConn) CloseWrite() error {
	if whc, ok := c.Conn.(WriteHalfCloser); ok {
		return whc.CloseWrite()
	}
	return nil
}
