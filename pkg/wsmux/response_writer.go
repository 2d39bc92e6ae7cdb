package wsmux

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/sammck-go/wsmux/pkg/wstnet"
)

var errHijacked = errors.New("connection has been hijacked")

// connResponseWriter is the http.ResponseWriter handed to the websocket
// upgrader and to the non-upgrade fallback handler. It owns no goroutines;
// a response that is not hijacked is buffered and sent by finish.
type connResponseWriter struct {
	conn     net.Conn
	br       *bufio.Reader
	req      *http.Request
	header   http.Header
	status   int
	body     bytes.Buffer
	hijacked bool
}

func newConnResponseWriter(conn net.Conn, br *bufio.Reader, req *http.Request) *connResponseWriter {
	return &connResponseWriter{
		conn:   conn,
		br:     br,
		req:    req,
		header: make(http.Header),
	}
}

func (w *connResponseWriter) Header() http.Header {
	return w.header
}

func (w *connResponseWriter) WriteHeader(status int) {
	if w.status == 0 && !w.hijacked {
		w.status = status
	}
}

func (w *connResponseWriter) Write(p []byte) (int, error) {
	if w.hijacked {
		return 0, errHijacked
	}
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

// Hijack hands the stream to the websocket codec. Bytes that the request
// parser read past the end of the request are replayed ahead of the wire, so
// the returned reader starts out empty.
func (w *connResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.hijacked {
		return nil, nil, errHijacked
	}
	w.hijacked = true
	var leftover []byte
	if n := w.br.Buffered(); n > 0 {
		peeked, _ := w.br.Peek(n)
		leftover = append([]byte(nil), peeked...)
		w.br.Discard(n)
	}
	conn := wstnet.NewReplayConn(w.conn, leftover)
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	return conn, rw, nil
}

// finish writes the buffered response, marked Connection: close. It does
// nothing if the connection was hijacked or nothing was written.
func (w *connResponseWriter) finish() error {
	if w.hijacked || w.status == 0 {
		return nil
	}
	resp := &http.Response{
		StatusCode:    w.status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Request:       w.req,
		Header:        w.header,
		Close:         true,
		ContentLength: int64(w.body.Len()),
		Body:          io.NopCloser(&w.body),
	}
	bw := bufio.NewWriter(w.conn)
	if err := resp.Write(bw); err != nil {
		return err
	}
	return bw.Flush()
}
