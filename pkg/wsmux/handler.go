package wsmux

import (
	"context"

	"github.com/sammck-go/logger"
)

// Message is one complete WebSocket data message
type Message struct {
	Text    bool
	Payload []byte
}

// MessageHandler produces the reply to each message a session reads. The
// reply is written before the next message is read.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg Message) (Message, error)
}

// HandlerFunc adapts a function to MessageHandler
type HandlerFunc func(ctx context.Context, msg Message) (Message, error)

// HandleMessage calls f(ctx, msg)
func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) (Message, error) {
	return f(ctx, msg)
}

// EchoHandler replies with the message it was given
type EchoHandler struct {
	// Logger, if set, receives each payload at trace level
	Logger logger.Logger
}

// HandleMessage returns msg unchanged
func (h *EchoHandler) HandleMessage(ctx context.Context, msg Message) (Message, error) {
	if h.Logger != nil && h.Logger.GetLogLevel() >= logger.LogLevelTrace {
		if msg.Text {
			h.Logger.TLogf("echo text %q", msg.Payload)
		} else {
			h.Logger.TLogf("echo binary, %d bytes", len(msg.Payload))
		}
	}
	return msg, nil
}
