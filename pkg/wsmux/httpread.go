package wsmux

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
)

const (
	// DefaultBodyLimit caps the body of the upgrade request
	DefaultBodyLimit = 10000

	// DefaultMaxHeaderBytes caps the request line plus headers
	DefaultMaxHeaderBytes = 64 << 10

	requestReaderSize = 4096
)

// RequestLimits bounds the memory one request may make us hold
type RequestLimits struct {
	MaxHeaderBytes int
	BodyLimit      int64
}

func (l RequestLimits) withDefaults() RequestLimits {
	if l.MaxHeaderBytes <= 0 {
		l.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if l.BodyLimit <= 0 {
		l.BodyLimit = DefaultBodyLimit
	}
	return l
}

// ioRecorder remembers the last transport error so that parse failures caused
// by the connection can be told apart from malformed input.
type ioRecorder struct {
	r     io.Reader
	total int64
	err   error
}

func (rec *ioRecorder) Read(p []byte) (int, error) {
	n, err := rec.r.Read(p)
	rec.total += int64(n)
	if err != nil {
		rec.err = err
	}
	return n, err
}

// headLimiter reports end-of-stream once the head budget is spent. It is
// switched off once the head has been parsed.
type headLimiter struct {
	r         io.Reader
	remaining int64
	active    bool
	exceeded  bool
}

func (h *headLimiter) Read(p []byte) (int, error) {
	if !h.active {
		return h.r.Read(p)
	}
	if h.remaining <= 0 {
		h.exceeded = true
		return 0, io.EOF
	}
	if int64(len(p)) > h.remaining {
		p = p[:h.remaining]
	}
	n, err := h.r.Read(p)
	h.remaining -= int64(n)
	return n, err
}

// ReadRequest parses exactly one HTTP/1.x request. prefix holds bytes already
// read from the same stream; they are parsed before anything from r. The
// returned reader holds whatever arrived after the request and must be used
// for all further reads from the stream.
//
// A peer that closes before sending any byte gets ErrEndOfStream. Oversized
// heads and bodies get ErrHeaderTooLarge and ErrBodyTooLarge; other malformed
// input gets a *ProtocolError. Transport failures are returned unchanged.
// The body is read in full and left in req.Body.
func ReadRequest(r io.Reader, prefix []byte, limits RequestLimits) (*http.Request, *bufio.Reader, error) {
	limits = limits.withDefaults()
	rec := &ioRecorder{r: r}
	var src io.Reader = rec
	if len(prefix) > 0 {
		src = io.MultiReader(bytes.NewReader(prefix), rec)
	}
	hl := &headLimiter{r: src, remaining: int64(limits.MaxHeaderBytes), active: true}
	br := bufio.NewReaderSize(hl, requestReaderSize)

	req, err := http.ReadRequest(br)
	if err != nil {
		switch {
		case hl.exceeded:
			return nil, nil, ErrHeaderTooLarge
		case err == io.EOF && len(prefix) == 0 && rec.total == 0:
			return nil, nil, ErrEndOfStream
		}
		return nil, nil, requestError(rec, err)
	}
	hl.active = false

	if req.ContentLength > limits.BodyLimit {
		return nil, nil, ErrBodyTooLarge
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, limits.BodyLimit+1))
	req.Body.Close()
	if err != nil {
		return nil, nil, requestError(rec, err)
	}
	if int64(len(body)) > limits.BodyLimit {
		return nil, nil, ErrBodyTooLarge
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return req, br, nil
}

func requestError(rec *ioRecorder, err error) error {
	if rec.err != nil && rec.err != io.EOF {
		return rec.err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.ErrUnexpectedEOF
	}
	return &ProtocolError{Op: "http-read", Err: err}
}
