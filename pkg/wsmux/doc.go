// Package wsmux serves plaintext and TLS WebSocket clients on one listening
// port.
//
// A Session owns one accepted connection and walks it through a fixed
// sequence of stages: the first bytes are sniffed to decide between TLS and
// plaintext (Classify), the Orchestrator performs the TLS handshake when
// needed and reads the HTTP upgrade request, and the resulting Channel, a
// PlainChannel or a TLSChannel, accepts the upgrade and exchanges messages
// with a MessageHandler until the peer goes away.
//
// Every stage runs under its own Deadline. Bytes read while sniffing are
// carried forward in a ReadAhead so that no stage reads a byte twice or
// drops one.
package wsmux
