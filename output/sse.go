package output

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/callcoach/relay"
)

// SSESink streams relay messages as server-sent events.
type SSESink struct {
	*pump
}

// NewSSESink returns a sink with the connected greeting already queued.
func NewSSESink(opts ...Option) *SSESink {
	return &SSESink{pump: newPump(opts)}
}

// Serve writes `data: <json>` frames to w until ctx ends, the sink is closed
// or the client goes away.
func (s *SSESink) Serve(ctx context.Context, w *bufio.Writer) error {
	return s.run(ctx, func(m relay.Message) error { return WriteEvent(w, m) }, w.Flush)
}

// WriteEvent writes one server-sent event frame.
func WriteEvent(w io.Writer, m relay.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
