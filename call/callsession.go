package call

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/logger"
	"github.com/mrsingh-rishi/callcoach/types"
	"github.com/mrsingh-rishi/callcoach/workers"
)

// drainTimeout bounds how long a finished stream waits for its last results.
const drainTimeout = 5 * time.Second

// FrameReader is the provider side of a media stream.
type FrameReader interface {
	ReadMessage() (int, []byte, error)
}

// TranscriptStream is a live speech-to-text session for one audio track.
type TranscriptStream interface {
	Send(audio []byte) error
	Results() <-chan types.TranscriptionResult
	Close() error
}

// StreamDialer opens a TranscriptStream for a track.
type StreamDialer func(ctx context.Context, track string) (TranscriptStream, error)

type trackSession struct {
	stt    TranscriptStream
	worker *workers.TranscriptionWorker
}

// MediaStream transcribes the audio of one provider media stream into the
// live relay. Each audio track gets its own recognition stream, opened on
// the first frame of that track.
type MediaStream struct {
	conn   FrameReader
	dial   StreamDialer
	relay  workers.Appender
	logger *zap.Logger

	callID    string
	streamSid string
	tracks    map[string]*trackSession
}

func NewMediaStream(conn FrameReader, dial StreamDialer, relay workers.Appender, l *zap.Logger) *MediaStream {
	return &MediaStream{
		conn:   conn,
		dial:   dial,
		relay:  relay,
		logger: logger.Or(l).Named("media_stream"),
		tracks: make(map[string]*trackSession),
	}
}

// CallID is the call announced by the stream's start frame.
func (ms *MediaStream) CallID() string {
	return ms.callID
}

// Run reads frames until the provider stops the stream or the connection
// closes, then flushes every track.
func (ms *MediaStream) Run(ctx context.Context) error {
	defer ms.cleanup()

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, msg, err := ms.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ms.logger.Debug("media stream closed", zap.String("call_id", ms.callID))
				return nil
			}
			return errors.Wrap(err, "read media frame")
		}

		var ev types.MediaEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			ms.logger.Warn("unparseable media frame", zap.Error(err))
			continue
		}

		switch ev.Event {
		case types.MediaEventConnected:
			ms.logger.Debug("media stream connected")

		case types.MediaEventStart:
			ms.callID = ev.Start.CallSid
			ms.streamSid = firstNonEmpty(ev.Start.StreamSid, ev.StreamSid)
			ms.logger.Info("media stream started", zap.String("call_id", ms.callID), zap.String("stream_sid", ms.streamSid))

		case types.MediaEventMedia:
			ms.forward(ctx, ev.Media.Track, ev.Media.Payload)

		case types.MediaEventStop:
			ms.logger.Info("media stream stopped", zap.String("call_id", ms.callID))
			return nil

		default:
			ms.logger.Debug("unknown media event", zap.String("event", ev.Event))
		}
	}
}

func (ms *MediaStream) forward(ctx context.Context, track, payload string) {
	if ms.callID == "" {
		return
	}
	chunk, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		ms.logger.Warn("media payload decode failed", zap.Error(err))
		return
	}
	ts := ms.session(ctx, normalizeTrack(track))
	if ts == nil {
		return
	}
	if err := ts.stt.Send(chunk); err != nil {
		ms.logger.Debug("audio send failed", zap.String("track", track), zap.Error(err))
	}
}

// session returns the track's recognition session, dialing it on first use.
// A failed dial is remembered so the track is not redialed on every frame.
func (ms *MediaStream) session(ctx context.Context, track string) *trackSession {
	if ts, ok := ms.tracks[track]; ok {
		return ts
	}
	ms.tracks[track] = nil

	stream, err := ms.dial(ctx, track)
	if err != nil {
		ms.logger.Error("transcription stream unavailable", zap.String("track", track), zap.Error(err))
		return nil
	}
	worker, err := workers.NewTranscriptionWorker(ms.callID, types.SpeakerForTrack(track), stream.Results(), ms.relay, ms.logger)
	if err != nil {
		_ = stream.Close()
		ms.logger.Error("transcription worker not created", zap.Error(err))
		return nil
	}
	worker.Start()

	ts := &trackSession{stt: stream, worker: worker}
	ms.tracks[track] = ts
	return ts
}

func (ms *MediaStream) cleanup() {
	for track, ts := range ms.tracks {
		if ts == nil {
			continue
		}
		if err := ts.stt.Close(); err != nil {
			ms.logger.Debug("transcription stream close", zap.String("track", track), zap.Error(err))
		}
		select {
		case <-ts.worker.Done():
		case <-time.After(drainTimeout):
			ms.logger.Warn("transcription worker did not drain", zap.String("track", track))
		}
		ts.worker.Stop()
	}
	ms.tracks = make(map[string]*trackSession)
}

func normalizeTrack(track string) string {
	switch track {
	case types.TrackOutbound, "outbound_track":
		return types.TrackOutbound
	default:
		return types.TrackInbound
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
