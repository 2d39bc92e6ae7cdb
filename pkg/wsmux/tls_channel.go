package wsmux

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/sammck-go/logger"
	"github.com/sammck-go/wsmux/pkg/wstnet"
)

// tlsCloseTimeout bounds the close_notify sent by Close
const tlsCloseTimeout = 5 * time.Second

var _ Channel = (*TLSChannel)(nil)

// TLSChannel is a WebSocket carried on a handshaked TLS session
type TLSChannel struct {
	wsEndpoint
	stream *wstnet.TLSAdapter
	br     *bufio.Reader
}

// NewTLSChannel creates a channel over a TLS adapter whose handshake has
// completed. br holds whatever the request parser read past the upgrade
// request; it may be nil.
func NewTLSChannel(lg logger.Logger, stream *wstnet.TLSAdapter, br *bufio.Reader, handshakeTimeout time.Duration) *TLSChannel {
	c := &TLSChannel{
		stream: stream,
		br:     br,
	}
	if c.br == nil {
		c.br = bufio.NewReader(stream)
	}
	c.initEndpoint(lg, handshakeTimeout)
	return c
}

// Kind returns ChannelTLS
func (c *TLSChannel) Kind() ChannelKind {
	return ChannelTLS
}

// AcceptUpgrade answers req with 101 Switching Protocols over TLS
func (c *TLSChannel) AcceptUpgrade(req *http.Request) error {
	if !c.stream.Handshaked() {
		return wstnet.ErrHandshakeNotDone
	}
	return c.accept(c.stream, c.br, req)
}

// ReadMessage reads one complete message into buf
func (c *TLSChannel) ReadMessage(buf *bytes.Buffer) (int, error) {
	return c.readMessage(buf)
}

// WriteMessage sends p as one message
func (c *TLSChannel) WriteMessage(p []byte, text bool) (int, error) {
	return c.writeMessage(p, text)
}

// RemoteEndpoint returns the peer address
func (c *TLSChannel) RemoteEndpoint() net.Addr {
	return c.stream.RemoteAddr()
}

// ConnectionState returns the negotiated TLS parameters
func (c *TLSChannel) ConnectionState() tls.ConnectionState {
	return c.stream.ConnectionState()
}

// Stream returns the TLS adapter the channel owns
func (c *TLSChannel) Stream() *wstnet.TLSAdapter {
	return c.stream
}

// Close sends close_notify and closes the underlying stream. Safe to call
// more than once and from any goroutine.
func (c *TLSChannel) Close() error {
	if _, first := c.stop(); !first {
		return nil
	}
	c.stream.SetWriteDeadline(time.Now().Add(tlsCloseTimeout))
	return c.stream.Close()
}
