package wsmux

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

const upgradeRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: example.com\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"\r\n"

func TestReadRequestJoinsPrefixAndStream(t *testing.T) {
	raw := upgradeRequest + "trailing"
	req, br, err := ReadRequest(strings.NewReader(raw[1:]), []byte(raw[:1]), RequestLimits{})
	require.NoError(t, err)
	require.Equal(t, "GET", req.Method)
	require.Equal(t, "/chat", req.URL.Path)
	require.Equal(t, "websocket", req.Header.Get("Upgrade"))

	rest, err := io.ReadAll(br)
	require.NoError(t, err)
	require.Equal(t, "trailing", string(rest))
}

func TestReadRequestBody(t *testing.T) {
	raw := "POST /x HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\n\r\nhello"
	req, _, err := ReadRequest(strings.NewReader(raw), nil, RequestLimits{})
	require.NoError(t, err)
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))
}

func TestReadRequestBodyLimit(t *testing.T) {
	raw := "POST /x HTTP/1.1\r\nHost: h\r\nContent-Length: 11\r\n\r\nhello world"
	_, _, err := ReadRequest(strings.NewReader(raw), nil, RequestLimits{BodyLimit: 10})
	require.ErrorIs(t, err, ErrBodyTooLarge)

	chunked := "POST /x HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"b\r\nhello world\r\n0\r\n\r\n"
	_, _, err = ReadRequest(strings.NewReader(chunked), nil, RequestLimits{BodyLimit: 10})
	require.ErrorIs(t, err, ErrBodyTooLarge)
	require.Equal(t, KindProtocol, KindOf(err))
}

func TestReadRequestHeaderLimit(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: h\r\nX-Big: " + strings.Repeat("a", 2000) + "\r\n\r\n"
	_, _, err := ReadRequest(strings.NewReader(raw), nil, RequestLimits{MaxHeaderBytes: 512})
	require.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestReadRequestEndOfStream(t *testing.T) {
	_, _, err := ReadRequest(strings.NewReader(""), nil, RequestLimits{})
	require.ErrorIs(t, err, ErrEndOfStream)
	require.Equal(t, KindNormalClose, KindOf(err))

	_, _, err = ReadRequest(strings.NewReader("ET / HTTP/1.1\r\n"), []byte("G"), RequestLimits{})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadRequestMalformed(t *testing.T) {
	_, _, err := ReadRequest(strings.NewReader("\x00\x01garbage\r\n\r\n"), nil, RequestLimits{})
	var pe *ProtocolError
	require.True(t, errors.As(err, &pe), "got %T: %v", err, err)
	require.Equal(t, KindProtocol, KindOf(err))
}

func TestReadRequestTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("GET / HT"), iotest.ErrReader(boom))
	_, _, err := ReadRequest(r, nil, RequestLimits{})
	require.ErrorIs(t, err, boom)
	require.Equal(t, KindChannel, KindOf(err))
}

func TestReadRequestLeavesPipelinedBytes(t *testing.T) {
	// a websocket frame sent right behind the upgrade request
	frame := []byte{0x81, 0x85, 1, 2, 3, 4, 'h' ^ 1, 'e' ^ 2, 'l' ^ 3, 'l' ^ 4, 'o' ^ 1}
	src := io.MultiReader(strings.NewReader(upgradeRequest), bytes.NewReader(frame))
	_, br, err := ReadRequest(src, nil, RequestLimits{})
	require.NoError(t, err)
	rest, err := io.ReadAll(br)
	require.NoError(t, err)
	require.Equal(t, frame, rest)
}
