package output

import (
	"context"
	"encoding/json"

	"github.com/gofiber/websocket/v2"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/callcoach/relay"
)

// MessageWriter is the write half of a WebSocket connection.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketSink streams relay messages as WebSocket text frames.
type WebSocketSink struct {
	*pump
	conn MessageWriter
}

// NewWebSocketSink returns a sink bound to conn with the connected greeting queued.
func NewWebSocketSink(conn MessageWriter, opts ...Option) *WebSocketSink {
	return &WebSocketSink{pump: newPump(opts), conn: conn}
}

// Serve writes queued messages to the connection. The caller owns reading
// from the connection and cancels ctx when the peer disconnects.
func (s *WebSocketSink) Serve(ctx context.Context) error {
	return s.run(ctx, s.write, func() error { return nil })
}

func (s *WebSocketSink) write(m relay.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
