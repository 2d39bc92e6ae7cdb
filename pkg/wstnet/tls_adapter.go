package wstnet

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"time"
)

// ErrHandshakeNotDone is returned by TLSAdapter stream methods that are called
// before a successful HandshakeAsServer.
var ErrHandshakeNotDone = errors.New("tls: handshake not completed")

// TLSAdapter wraps a Channel with a server-side TLS session. After
// HandshakeAsServer succeeds it is itself a Channel carrying plaintext.
type TLSAdapter struct {
	raw    Channel
	config *tls.Config
	conn   *tls.Conn
}

// NewTLSAdapter prepares a TLS server session over raw. No I/O happens until
// HandshakeAsServer.
func NewTLSAdapter(raw Channel, config *tls.Config) *TLSAdapter {
	return &TLSAdapter{raw: raw, config: config}
}

// HandshakeAsServer runs the server handshake. prebuffered holds bytes that
// were already read from raw (the start of the ClientHello); they are handed
// to the TLS engine ahead of anything still on the wire, so nothing is read
// twice. deadline bounds the whole handshake.
func (a *TLSAdapter) HandshakeAsServer(ctx context.Context, prebuffered []byte, deadline time.Time) error {
	if a.conn != nil {
		return errors.New("tls: handshake already attempted")
	}
	if err := a.raw.SetDeadline(deadline); err != nil {
		return err
	}
	a.conn = tls.Server(NewReplayConn(a.raw, prebuffered), a.config)
	if err := a.conn.HandshakeContext(ctx); err != nil {
		return err
	}
	return nil
}

// Shutdown performs a graceful TLS closure bounded by deadline: it sends
// close_notify and then waits for the peer's close_notify or end-of-stream.
func (a *TLSAdapter) Shutdown(deadline time.Time) error {
	if a.conn == nil {
		return ErrHandshakeNotDone
	}
	if err := a.conn.SetDeadline(deadline); err != nil {
		return err
	}
	if err := a.conn.CloseWrite(); err != nil {
		return err
	}
	_, err := io.Copy(io.Discard, a.conn)
	return err
}

// Handshaked returns true once HandshakeAsServer has succeeded
func (a *TLSAdapter) Handshaked() bool {
	return a.conn != nil && a.conn.ConnectionState().HandshakeComplete
}

// ConnectionState returns the negotiated TLS parameters
func (a *TLSAdapter) ConnectionState() tls.ConnectionState {
	if a.conn == nil {
		return tls.ConnectionState{}
	}
	return a.conn.ConnectionState()
}

// ServerName returns the SNI name the client asked for, if any
func (a *TLSAdapter) ServerName() string {
	return a.ConnectionState().ServerName
}

// Raw returns the wrapped transport channel
func (a *TLSAdapter) Raw() Channel {
	return a.raw
}

// Read reads decrypted application data
func (a *TLSAdapter) Read(p []byte) (int, error) {
	if a.conn == nil {
		return 0, ErrHandshakeNotDone
	}
	return a.conn.Read(p)
}

// Write encrypts and sends application data
func (a *TLSAdapter) Write(p []byte) (int, error) {
	if a.conn == nil {
		return 0, ErrHandshakeNotDone
	}
	return a.conn.Write(p)
}

// CloseWrite sends close_notify; the raw socket stays open in both directions.
func (a *TLSAdapter) CloseWrite() error {
	if a.conn == nil {
		return ErrHandshakeNotDone
	}
	return a.conn.CloseWrite()
}

// Close closes the TLS session and the raw channel
func (a *TLSAdapter) Close() error {
	if a.conn == nil {
		return a.raw.Close()
	}
	// also closes raw, through the ReplayConn
	return a.conn.Close()
}

// LocalAddr returns the local network address
func (a *TLSAdapter) LocalAddr() net.Addr {
	return a.raw.LocalAddr()
}

// RemoteAddr returns the peer network address
func (a *TLSAdapter) RemoteAddr() net.Addr {
	return a.raw.RemoteAddr()
}

// SetDeadline sets read and write deadlines on the raw channel
func (a *TLSAdapter) SetDeadline(t time.Time) error {
	return a.raw.SetDeadline(t)
}

// SetReadDeadline sets the read deadline on the raw channel
func (a *TLSAdapter) SetReadDeadline(t time.Time) error {
	return a.raw.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline on the raw channel
func (a *TLSAdapter) SetWriteDeadline(t time.Time) error {
	return a.raw.SetWriteDeadline(t)
}
