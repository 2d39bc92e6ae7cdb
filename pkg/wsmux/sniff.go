package wsmux

import (
	"io"
)

// SniffResult is the transport decision for a connection
type SniffResult int

const (
	// SniffIndeterminate means not enough bytes have been seen to decide
	SniffIndeterminate SniffResult = iota
	// SniffPlaintext means the peer is speaking HTTP in the clear
	SniffPlaintext
	// SniffTLS means the peer opened with a TLS ClientHello record
	SniffTLS
)

func (r SniffResult) String() string {
	switch r {
	case SniffPlaintext:
		return "plaintext"
	case SniffTLS:
		return "tls"
	}
	return "indeterminate"
}

const (
	// SniffDecisionBytes is the longest prefix ClassifyBytes ever needs
	SniffDecisionBytes = tlsRecordHeaderLen + 1
	// DefaultSniffMaxBytes is the sniff cap used when none is configured
	DefaultSniffMaxBytes = 16
)

const (
	tlsRecordTypeHandshake  = 0x16
	tlsHandshakeClientHello = 0x01
	tlsRecordHeaderLen      = 5
	minClientHelloRecordLen = 34
)

// ClassifyBytes decides from a prefix of the stream. It looks at the TLS
// record header: content type handshake, a record long enough to hold a
// ClientHello, and a first handshake message of type client_hello. A mismatch
// yields SniffPlaintext as soon as it is visible; at most 6 bytes are needed.
func ClassifyBytes(b []byte) SniffResult {
	if len(b) < 1 {
		return SniffIndeterminate
	}
	if b[0] != tlsRecordTypeHandshake {
		return SniffPlaintext
	}
	if len(b) < tlsRecordHeaderLen {
		return SniffIndeterminate
	}
	length := int(b[3])<<8 | int(b[4])
	if length < minClientHelloRecordLen {
		return SniffPlaintext
	}
	if len(b) < SniffDecisionBytes {
		return SniffIndeterminate
	}
	if b[5] != tlsHandshakeClientHello {
		return SniffPlaintext
	}
	return SniffTLS
}

// Classify reads from r into ra until ClassifyBytes can decide or ra holds
// maxBytes. A cap below SniffDecisionBytes can leave a TLS-looking prefix
// undecided, which is reported as ErrSniffIndeterminate. Every byte read
// stays in ra for the next stage. Bytes already in ra count toward the
// decision. If r fails first, the error is returned as is
// along with SniffIndeterminate; there is no retry.
func Classify(r io.Reader, ra *ReadAhead, maxBytes int) (SniffResult, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultSniffMaxBytes
	}
	for {
		if result := ClassifyBytes(ra.Bytes()); result != SniffIndeterminate {
			return result, nil
		}
		if ra.Len() >= maxBytes {
			return SniffIndeterminate, ErrSniffIndeterminate
		}
		n, err := ra.fill(r, maxBytes)
		if err != nil {
			if n > 0 {
				if result := ClassifyBytes(ra.Bytes()); result != SniffIndeterminate {
					return result, nil
				}
			}
			if err == io.EOF && ra.Len() > 0 {
				err = io.ErrUnexpectedEOF
			}
			return SniffIndeterminate, err
		}
	}
}
