// Package call decides when calls start and end from provider webhooks and
// feeds the live relay, the store and the coaching worker.
package call

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/logger"
	"github.com/mrsingh-rishi/callcoach/model"
	"github.com/mrsingh-rishi/callcoach/trace"
	"github.com/mrsingh-rishi/callcoach/types"
	"github.com/mrsingh-rishi/callcoach/workers"
)

//go:generate mockgen -destination=../mocks/mock_call.go -package=mocks github.com/mrsingh-rishi/callcoach/call Store,CoachingQueue

// ErrMissingCallID is returned for callbacks that do not identify a call.
var ErrMissingCallID = errors.New("call id missing")

// Store is the persistence the ingress writes to.
type Store interface {
	LogCallEvent(ctx context.Context, callControlID, eventType string, data any) error
	UpsertCall(ctx context.Context, call model.Call) (model.Call, error)
	UpdateCallStatus(ctx context.Context, callControlID, status string, upd model.CallUpdate) (model.Call, error)
	SaveCallHangup(ctx context.Context, h model.Hangup) (model.Call, error)
	SaveTranscript(ctx context.Context, t model.Transcript) (model.Transcript, error)
}

// CoachingQueue accepts post-call coaching work.
type CoachingQueue interface {
	Submit(job workers.CoachingJob) error
}

// Relay is the live transcript state.
type Relay interface {
	SetActiveCallIfNew(callID string) bool
	AppendTranscript(callID, segment string)
	ClearActiveCallIf(callID string) bool
}

// Transferrer moves an answered inbound call to an agent.
type Transferrer interface {
	ScheduleTransfer(callSid string)
}

// Ingress applies provider events.
type Ingress struct {
	store        Store
	relay        Relay
	coaching     CoachingQueue
	transfer     Transferrer
	defaultAgent string
	now          func() time.Time
	logger       *zap.Logger
}

// Option configures an Ingress.
type Option func(*Ingress)

// WithTransferrer enables the delayed SIP transfer of inbound calls.
func WithTransferrer(t Transferrer) Option {
	return func(in *Ingress) { in.transfer = t }
}

// WithDefaultAgent sets the agent calls are attributed to.
func WithDefaultAgent(agentID string) Option {
	return func(in *Ingress) { in.defaultAgent = agentID }
}

func WithLogger(l *zap.Logger) Option {
	return func(in *Ingress) { in.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(in *Ingress) { in.now = now }
}

func NewIngress(store Store, relay Relay, coaching CoachingQueue, opts ...Option) *Ingress {
	in := &Ingress{
		store:        store,
		relay:        relay,
		coaching:     coaching,
		defaultAgent: "agent_001",
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	in.logger = logger.Or(in.logger).Named("ingress")
	return in
}

// HandleEvent applies one call-control event. Relay changes happen before
// any store write so a database failure never stalls the live transcript.
func (in *Ingress) HandleEvent(ctx context.Context, ev types.CallControlEvent) (err error) {
	p := ev.Payload
	ctx, span := trace.StartSpan(ctx, "webhook.call_control",
		oteltrace.WithAttributes(trace.WebhookAttrs(ev.EventType, p.CallControlID)...))
	defer func() { trace.End(span, err) }()

	log := in.logger.With(zap.String("event_type", ev.EventType), zap.String("call_control_id", p.CallControlID))

	if p.CallControlID != "" && ev.EventType != "" {
		if lerr := in.store.LogCallEvent(ctx, p.CallControlID, ev.EventType, ev); lerr != nil {
			log.Warn("event log write failed", zap.Error(lerr))
		}
	}

	switch ev.EventType {
	case types.EventCallAnswered, types.EventCallTranscription, types.EventCallHangup:
		if p.SessionID() == "" {
			return ErrMissingCallID
		}
	}

	switch ev.EventType {
	case types.EventCallInitiated:
		_, err = in.store.UpsertCall(ctx, model.Call{
			CallControlID: p.CallControlID,
			CallSessionID: p.CallSessionID,
			AgentID:       in.defaultAgent,
			CustomerPhone: p.From,
			AgentPhone:    p.To,
			Direction:     p.Direction,
			StartTime:     in.timeOrNow(parseTime(p.StartTime, ev.OccurredAt)),
			ClientState:   p.ClientState,
		})

	case types.EventCallAnswered:
		if !in.relay.SetActiveCallIfNew(p.SessionID()) {
			log.Debug("answered call already active")
		}
		_, err = in.store.UpdateCallStatus(ctx, p.CallControlID, types.StatusAnswered, model.CallUpdate{})

	case types.EventCallTranscription:
		in.appendLive(p)

	case types.EventCallHangup:
		if in.relay.ClearActiveCallIf(p.SessionID()) {
			log.Info("active call ended")
		}
		// legs carrying client_state were placed by this service
		if p.ClientState == "" {
			_, err = in.store.SaveCallHangup(ctx, model.Hangup{
				CallControlID: p.CallControlID,
				CallSessionID: p.CallSessionID,
				AgentID:       in.defaultAgent,
				CustomerPhone: p.From,
				AgentPhone:    p.To,
				StartTime:     parseTime(p.StartTime),
				EndTime:       parseTime(p.EndTime, ev.OccurredAt),
			})
		}

	case types.EventCallTranscriptionSaved, types.EventCallRecordingTranscriptionSaved:
		err = in.saveTranscript(ctx, p.CallControlID, p.TranscriptionText)

	default:
		log.Debug("unhandled event type")
	}
	return errors.Wrapf(err, "handle %s", ev.EventType)
}

func (in *Ingress) appendLive(p types.CallControlPayload) {
	data := p.TranscriptionData
	if data == nil || !data.IsFinal {
		return
	}
	text := strings.TrimSpace(data.Transcript)
	if text == "" {
		return
	}
	label := types.SpeakerForTrack(data.TranscriptionTrack)
	in.relay.AppendTranscript(p.SessionID(), types.FormatSegment(label, text))
}

// HandleStatus applies a TeXML status callback.
func (in *Ingress) HandleStatus(ctx context.Context, s types.CallStatus) (err error) {
	id := s.CallID()
	ctx, span := trace.StartSpan(ctx, "webhook.call_status",
		oteltrace.WithAttributes(trace.WebhookAttrs(s.Status, id)...))
	defer func() { trace.End(span, err) }()

	if id == "" {
		return ErrMissingCallID
	}
	status := strings.ToLower(s.Status)
	log := in.logger.With(zap.String("call_id", id), zap.String("status", status))

	switch status {
	case types.StatusRinging, types.StatusBusy, types.StatusNoAnswer, types.StatusFailed:
		_, err = in.store.UpdateCallStatus(ctx, id, status, model.CallUpdate{})

	case types.StatusAnswered, types.StatusInProgress:
		// a transferred leg reports its parent, which is usually live already
		in.relay.SetActiveCallIfNew(id)
		_, err = in.store.UpdateCallStatus(ctx, id, status, model.CallUpdate{})

	case types.StatusCompleted, types.StatusHangup:
		if in.relay.ClearActiveCallIf(id) {
			log.Info("active call ended")
		}
		_, err = in.store.UpdateCallStatus(ctx, id, types.StatusCompleted, model.CallUpdate{
			EndTime:      parseTime(s.EndTime),
			Duration:     s.Duration,
			RecordingURL: s.RecordingURL,
		})

	default:
		log.Info("unknown call status")
	}
	return errors.Wrapf(err, "handle status %s", status)
}

// HandleTranscription stores a recording transcription and queues coaching.
func (in *Ingress) HandleTranscription(ctx context.Context, t types.RecordingTranscription) (err error) {
	ctx, span := trace.StartSpan(ctx, "webhook.transcription",
		oteltrace.WithAttributes(trace.WebhookAttrs("transcription", t.CallSid)...))
	defer func() { trace.End(span, err) }()

	if strings.TrimSpace(t.Transcript) == "" {
		return nil
	}
	if t.CallSid == "" {
		return ErrMissingCallID
	}
	return in.saveTranscript(ctx, t.CallSid, t.Transcript)
}

// HandleInbound registers a new inbound call and schedules its transfer. It
// returns the call id, empty when the request carried none.
func (in *Ingress) HandleInbound(ctx context.Context, fields map[string]string) (string, error) {
	id := firstOf(fields, "CallSid", "call_control_id", "call_session_id")
	if id == "" {
		return "", nil
	}
	if in.transfer != nil {
		in.transfer.ScheduleTransfer(id)
	}

	direction := fields["Direction"]
	if direction == "" {
		direction = "inbound"
	}
	_, err := in.store.UpsertCall(ctx, model.Call{
		CallControlID: id,
		AgentID:       in.defaultAgent,
		CustomerPhone: fields["From"],
		AgentPhone:    fields["To"],
		Direction:     direction,
		Status:        types.StatusRinging,
		StartTime:     in.timeOrNow(nil),
	})
	return id, errors.Wrap(err, "register inbound call")
}

func (in *Ingress) saveTranscript(ctx context.Context, callControlID, text string) error {
	if strings.TrimSpace(text) == "" || callControlID == "" {
		return nil
	}
	_, err := in.store.SaveTranscript(ctx, model.Transcript{
		CallControlID:  callControlID,
		TranscriptText: text,
	})
	if in.coaching != nil {
		qerr := in.coaching.Submit(workers.CoachingJob{
			CallControlID: callControlID,
			AgentID:       in.defaultAgent,
			Transcript:    text,
		})
		if qerr != nil {
			in.logger.Warn("coaching job not queued", zap.String("call_control_id", callControlID), zap.Error(qerr))
		}
	}
	return err
}

// parseTime returns the first parseable timestamp of values, or nil.
func parseTime(values ...string) *time.Time {
	for _, v := range values {
		if t, ok := parseTimestamp(v); ok {
			return &t
		}
	}
	return nil
}

func (in *Ingress) timeOrNow(t *time.Time) *time.Time {
	if t != nil {
		return t
	}
	now := in.now().UTC()
	return &now
}

var timestampLayouts = []string{time.RFC3339Nano, time.RFC1123Z, time.RFC1123, "2006-01-02 15:04:05"}

func parseTimestamp(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func firstOf(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return ""
}
