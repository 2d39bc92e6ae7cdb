package wsmux

import (
	"io"
)

// ReadAhead holds bytes already pulled off the wire by one stage and not yet
// consumed by the next. Ownership moves forward with Take.
type ReadAhead struct {
	buf []byte
}

// Bytes returns the buffered bytes without consuming them
func (r *ReadAhead) Bytes() []byte {
	return r.buf
}

// Len returns the number of buffered bytes
func (r *ReadAhead) Len() int {
	return len(r.buf)
}

// Take hands the buffered bytes to the caller and empties the buffer
func (r *ReadAhead) Take() []byte {
	b := r.buf
	r.buf = nil
	return b
}

// fill performs one read from rd, appending at most max-Len() bytes. It
// returns the number of bytes added.
func (r *ReadAhead) fill(rd io.Reader, max int) (int, error) {
	room := max - len(r.buf)
	if room <= 0 {
		return 0, nil
	}
	if cap(r.buf)-len(r.buf) < room {
		grown := make([]byte, len(r.buf), max)
		copy(grown, r.buf)
		r.buf = grown
	}
	n, err := rd.Read(r.buf[len(r.buf) : len(r.buf)+room])
	r.buf = r.buf[:len(r.buf)+n]
	return n, err
}
