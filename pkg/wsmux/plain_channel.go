package wsmux

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"time"

	"github.com/sammck-go/logger"
	"github.com/sammck-go/wsmux/pkg/wstnet"
)

var _ Channel = (*PlainChannel)(nil)

// PlainChannel is a WebSocket carried directly on a transport stream
type PlainChannel struct {
	wsEndpoint
	stream wstnet.Channel
	br     *bufio.Reader
}

// NewPlainChannel creates a channel over stream. br holds whatever the
// request parser read past the upgrade request; it may be nil.
func NewPlainChannel(lg logger.Logger, stream wstnet.Channel, br *bufio.Reader, handshakeTimeout time.Duration) *PlainChannel {
	c := &PlainChannel{
		stream: stream,
		br:     br,
	}
	if c.br == nil {
		c.br = bufio.NewReader(stream)
	}
	c.initEndpoint(lg, handshakeTimeout)
	return c
}

// Kind returns ChannelPlain
func (c *PlainChannel) Kind() ChannelKind {
	return ChannelPlain
}

// AcceptUpgrade answers req with 101 Switching Protocols
func (c *PlainChannel) AcceptUpgrade(req *http.Request) error {
	return c.accept(c.stream, c.br, req)
}

// ReadMessage reads one complete message into buf
func (c *PlainChannel) ReadMessage(buf *bytes.Buffer) (int, error) {
	return c.readMessage(buf)
}

// WriteMessage sends p as one message
func (c *PlainChannel) WriteMessage(p []byte, text bool) (int, error) {
	return c.writeMessage(p, text)
}

// RemoteEndpoint returns the peer address
func (c *PlainChannel) RemoteEndpoint() net.Addr {
	return c.stream.RemoteAddr()
}

// Stream returns the transport stream the channel owns
func (c *PlainChannel) Stream() wstnet.Channel {
	return c.stream
}

// Close closes the stream. Safe to call more than once and from any goroutine.
func (c *PlainChannel) Close() error {
	conn, first := c.stop()
	if !first {
		return nil
	}
	if conn != nil {
		return conn.Close()
	}
	return c.stream.Close()
}
