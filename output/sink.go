// Package output implements relay sinks for the browser push channel.
//
// A sink never writes from Send: messages go into a bounded backlog that the
// transport goroutine drains in Serve. A client that stops reading fills its
// backlog, Send starts failing and the relay drops it.
package output

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/callcoach/queue"
	"github.com/mrsingh-rishi/callcoach/relay"
)

// ErrSinkClosed is returned by Send after Close.
var ErrSinkClosed = errors.New("sink closed")

const (
	DefaultBacklog   = 64
	DefaultHeartbeat = 30 * time.Second
)

type options struct {
	backlog   int
	heartbeat time.Duration
	now       func() time.Time
}

// Option configures a sink.
type Option func(*options)

// WithBacklog bounds the number of undelivered messages.
func WithBacklog(n int) Option {
	return func(o *options) { o.backlog = n }
}

// WithHeartbeat sets the keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

// WithClock overrides the timestamp source for connected and heartbeat messages.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type pump struct {
	id        string
	backlog   *queue.Queue[relay.Message]
	done      chan struct{}
	closeOnce sync.Once
	heartbeat time.Duration
	now       func() time.Time
}

func newPump(opts []Option) *pump {
	o := options{backlog: DefaultBacklog, heartbeat: DefaultHeartbeat, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.heartbeat <= 0 {
		o.heartbeat = DefaultHeartbeat
	}

	p := &pump{
		id:        uuid.NewString(),
		backlog:   queue.New[relay.Message](o.backlog),
		done:      make(chan struct{}),
		heartbeat: o.heartbeat,
		now:       o.now,
	}
	_ = p.backlog.Enqueue(relay.NewConnectedMessage(p.now()))
	return p
}

// ID identifies the sink in the relay.
func (p *pump) ID() string { return p.id }

// Send queues msg for delivery. It never blocks.
func (p *pump) Send(msg relay.Message) error {
	select {
	case <-p.done:
		return ErrSinkClosed
	default:
	}
	if err := p.backlog.Enqueue(msg); err != nil {
		return errors.Wrapf(err, "sink %s backlog", p.id)
	}
	return nil
}

// Close stops Serve. It is safe to call more than once.
func (p *pump) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// Done is closed once the sink is closed.
func (p *pump) Done() <-chan struct{} { return p.done }

// Pending reports how many messages wait for delivery.
func (p *pump) Pending() int { return p.backlog.Len() }

// run delivers queued messages and heartbeats until ctx ends, the sink is
// closed or a write fails.
func (p *pump) run(ctx context.Context, write func(relay.Message) error, flush func() error) error {
	ticker := time.NewTicker(p.heartbeat)
	defer ticker.Stop()

	for {
		if err := p.deliver(write, flush); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-p.done:
			return nil
		case <-p.backlog.Ready():
		case <-ticker.C:
			if err := write(relay.NewHeartbeatMessage(p.now())); err != nil {
				return errors.Wrap(err, "write heartbeat")
			}
			if err := flush(); err != nil {
				return errors.Wrap(err, "flush heartbeat")
			}
		}
	}
}

func (p *pump) deliver(write func(relay.Message) error, flush func() error) error {
	msgs := p.backlog.Drain()
	if len(msgs) == 0 {
		return nil
	}
	for _, msg := range msgs {
		if err := write(msg); err != nil {
			return errors.Wrapf(err, "write %s message", msg.Type)
		}
	}
	return errors.Wrap(flush(), "flush")
}
