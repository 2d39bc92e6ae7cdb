package wsmux

import (
	"fmt"
	"net/http"
	"time"
)

// OptionName identifies one of the fixed set of channel options
type OptionName string

const (
	// OptionIdleTimeout (time.Duration) bounds how long the channel may go
	// without hearing from the peer. Keepalive pings go out at half the
	// interval. Zero disables both.
	OptionIdleTimeout OptionName = "idle-timeout"

	// OptionMaxMessageSize (int64) is the largest message ReadMessage accepts
	OptionMaxMessageSize OptionName = "max-message-size"

	// OptionAutoFragment (bool) lets large outgoing messages be split into
	// frames of the codec's write buffer size
	OptionAutoFragment OptionName = "auto-fragment"

	// OptionServerHeaderDecorator (HeaderDecorator) edits the headers of the
	// 101 Switching Protocols response
	OptionServerHeaderDecorator OptionName = "server-header-decorator"
)

// DefaultMaxMessageSize is the read limit of a new channel
const DefaultMaxMessageSize int64 = 16 << 20

// HeaderDecorator edits outgoing handshake response headers
type HeaderDecorator func(h http.Header)

// ServerNameDecorator returns a HeaderDecorator that sets the Server header
func ServerNameDecorator(name string) HeaderDecorator {
	return func(h http.Header) {
		h.Set("Server", name)
	}
}

type channelOptions struct {
	idleTimeout    time.Duration
	maxMessageSize int64
	autoFragment   bool
	decorator      HeaderDecorator
}

func defaultChannelOptions() channelOptions {
	return channelOptions{
		maxMessageSize: DefaultMaxMessageSize,
		autoFragment:   true,
	}
}

func badOption(name OptionName, value interface{}) error {
	return fmt.Errorf("%w: %s=%v (%T)", ErrBadOptionValue, name, value, value)
}

func (o *channelOptions) set(name OptionName, value interface{}) error {
	switch name {
	case OptionIdleTimeout:
		d, ok := value.(time.Duration)
		if !ok || d < 0 {
			return badOption(name, value)
		}
		o.idleTimeout = d
	case OptionMaxMessageSize:
		var n int64
		switch v := value.(type) {
		case int64:
			n = v
		case int:
			n = int64(v)
		default:
			return badOption(name, value)
		}
		if n <= 0 {
			return badOption(name, value)
		}
		o.maxMessageSize = n
	case OptionAutoFragment:
		b, ok := value.(bool)
		if !ok {
			return badOption(name, value)
		}
		o.autoFragment = b
	case OptionServerHeaderDecorator:
		switch v := value.(type) {
		case HeaderDecorator:
			o.decorator = v
		case func(http.Header):
			o.decorator = v
		case nil:
			o.decorator = nil
		default:
			return badOption(name, value)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOption, string(name))
	}
	return nil
}

func (o *channelOptions) get(name OptionName) (interface{}, error) {
	switch name {
	case OptionIdleTimeout:
		return o.idleTimeout, nil
	case OptionMaxMessageSize:
		return o.maxMessageSize, nil
	case OptionAutoFragment:
		return o.autoFragment, nil
	case OptionServerHeaderDecorator:
		return o.decorator, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOption, string(name))
}
