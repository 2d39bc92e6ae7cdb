package wstnet

import (
	"net"
)

// WriteHalfCloser is an interface for bidirectional io streams that implement CloseWrite()
type WriteHalfCloser interface {
	// CloseWrite shuts down the writing half of a bidirectional io stream (e.g., "socket").
	// Corresponds to net.TCPConn.CloseWrite(). No further writes are possible after
	// this call, but the read half of the stream remains active. A server that has
	// nothing more to say to a peer that has already hit end-of-stream uses this to
	// let the peer see a clean EOF.
	CloseWrite() error
}

// Channel is an accepted duplex byte stream. It intentionally looks and acts
// like a TCP socket: reads and writes are bounded by the net.Conn deadlines, and
// the write side may be closed before the read side.
//
// Implementations are *SocketChannel (a raw accepted socket) and *TLSAdapter
// (a socket after a server-side TLS handshake).
type Channel interface {
	net.Conn
	WriteHalfCloser
}
