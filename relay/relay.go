// Package relay keeps the transcript of the one call currently in progress and
// pushes its full state to every connected client whenever it changes.
//
// At most one call is active. Setting a new active call discards the previous
// buffer; segments for any other call identity are dropped. Every mutation is
// applied under a single lock and fanned out to subscribers with non-blocking
// sends, so a subscriber whose Send fails is removed rather than retried.
package relay

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/logger"
)

// Sink is a live output channel to one connected client.
// Send must not block; an error means the sink is dead.
type Sink interface {
	ID() string
	Send(Message) error
	Close() error
}

// Relay is the single source of truth for the live transcript.
type Relay struct {
	mu         sync.Mutex
	active     bool
	callID     string
	transcript strings.Builder
	sinks      map[string]Sink

	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// New returns an idle relay with no active call and no subscribers.
func New(opts ...Option) *Relay {
	r := &Relay{
		sinks: make(map[string]Sink),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.Or(r.logger).Named("relay")
	return r
}

// SetActiveCall makes callID the active call, resets the transcript and
// broadcasts the empty state. The previous call, if any, is discarded.
func (r *Relay) SetActiveCall(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active && r.callID != callID {
		r.logger.Info("replacing active call", zap.String("previous", r.callID), zap.String("call_id", callID))
	}
	r.active = true
	r.callID = callID
	r.transcript.Reset()
	r.broadcastLocked()
}

// SetActiveCallIfNew makes callID the active call unless it already is. A
// repeated announcement of the live call keeps its transcript. It reports
// whether the active call changed.
func (r *Relay) SetActiveCallIfNew(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active && r.callID == callID {
		return false
	}
	if r.active {
		r.logger.Info("replacing active call", zap.String("previous", r.callID), zap.String("call_id", callID))
	}
	r.active = true
	r.callID = callID
	r.transcript.Reset()
	r.broadcastLocked()
	return true
}

// AppendTranscript appends segment verbatim when callID is the active call and
// broadcasts the full transcript. Segments for any other call are dropped.
func (r *Relay) AppendTranscript(callID, segment string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || r.callID != callID {
		r.logger.Debug("dropping stale segment", zap.String("call_id", callID))
		return
	}
	r.transcript.WriteString(segment)
	r.broadcastLocked()
}

// ClearActiveCall drops the active call and its transcript and broadcasts the
// cleared state, also when nothing was active.
func (r *Relay) ClearActiveCall() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

// ClearActiveCallIf clears the relay only when callID is the active call.
// It reports whether anything was cleared.
func (r *Relay) ClearActiveCallIf(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || r.callID != callID {
		return false
	}
	r.clearLocked()
	return true
}

func (r *Relay) clearLocked() {
	r.active = false
	r.callID = ""
	r.transcript.Reset()
	r.broadcastLocked()
}

// AddConnection registers sink. When a call is active and has transcript text
// the current state is pushed to this sink right away.
func (r *Relay) AddConnection(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sinks[sink.ID()] = sink
	r.logger.Debug("subscriber added", zap.String("sink", sink.ID()), zap.Int("subscribers", len(r.sinks)))

	if r.active && r.transcript.Len() > 0 {
		r.deliverLocked(sink, r.messageLocked())
	}
}

// RemoveConnection unregisters sink. Unknown sinks are ignored.
func (r *Relay) RemoveConnection(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sinks[sink.ID()]; ok && cur == sink {
		delete(r.sinks, sink.ID())
		r.logger.Debug("subscriber removed", zap.String("sink", sink.ID()), zap.Int("subscribers", len(r.sinks)))
	}
}

// State returns a snapshot of the relay.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := State{
		Transcript:      r.transcript.String(),
		ConnectionCount: len(r.sinks),
	}
	if r.active {
		id := r.callID
		s.ActiveCall = &id
	}
	return s
}

func (r *Relay) messageLocked() Message {
	msg := Message{
		Type:       TypeTranscript,
		Transcript: r.transcript.String(),
		Timestamp:  r.now(),
	}
	if r.active {
		id := r.callID
		msg.CallSessionID = &id
	}
	return msg
}

func (r *Relay) broadcastLocked() {
	msg := r.messageLocked()
	for _, sink := range r.sinks {
		r.deliverLocked(sink, msg)
	}
}

// deliverLocked sends msg and evicts the sink on failure.
func (r *Relay) deliverLocked(sink Sink, msg Message) {
	err := sink.Send(msg)
	if err == nil {
		return
	}
	delete(r.sinks, sink.ID())
	_ = sink.Close()
	r.logger.Debug("dropping dead subscriber", zap.String("sink", sink.ID()), zap.Error(err))
}
