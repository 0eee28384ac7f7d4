package call_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/call"
	"github.com/mrsingh-rishi/callcoach/relay"
	"github.com/mrsingh-rishi/callcoach/types"
)

type frameQueue struct {
	frames [][]byte
	err    error
}

func (q *frameQueue) ReadMessage() (int, []byte, error) {
	if len(q.frames) == 0 {
		if q.err != nil {
			return 0, nil, q.err
		}
		return 0, nil, io.EOF
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return 1, f, nil
}

func frame(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func startFrame(t *testing.T, callSid string) []byte {
	return frame(t, map[string]any{"event": "start", "start": map[string]any{"callSid": callSid, "streamSid": "MZ1"}})
}

func mediaFrame(t *testing.T, track, audio string) []byte {
	return frame(t, map[string]any{"event": "media", "media": map[string]any{
		"track": track, "payload": base64.StdEncoding.EncodeToString([]byte(audio)),
	}})
}

// echoStream recognizes every audio chunk as its own text.
type echoStream struct {
	track   string
	results chan types.TranscriptionResult
	once    sync.Once
}

func (s *echoStream) Send(audio []byte) error {
	s.results <- types.TranscriptionResult{Transcription: string(audio), Final: true, Track: s.track}
	return nil
}

func (s *echoStream) Results() <-chan types.TranscriptionResult { return s.results }

func (s *echoStream) Close() error {
	s.once.Do(func() { close(s.results) })
	return nil
}

type dialLog struct {
	mu     sync.Mutex
	tracks []string
	err    error
}

func (d *dialLog) dial(_ context.Context, track string) (call.TranscriptStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracks = append(d.tracks, track)
	if d.err != nil {
		return nil, d.err
	}
	return &echoStream{track: track, results: make(chan types.TranscriptionResult, 8)}, nil
}

func TestMediaStreamTranscribesBothTracks(t *testing.T) {
	r := relay.New()
	r.SetActiveCall("CA1")
	dials := &dialLog{}

	conn := &frameQueue{frames: [][]byte{
		frame(t, map[string]any{"event": "connected"}),
		startFrame(t, "CA1"),
		mediaFrame(t, "inbound", "I want a refund"),
		mediaFrame(t, "outbound", "Let me check"),
		mediaFrame(t, "inbound", "Thanks"),
		frame(t, map[string]any{"event": "stop"}),
	}}

	ms := call.NewMediaStream(conn, dials.dial, r, zap.NewNop())
	require.NoError(t, ms.Run(context.Background()))
	assert.Equal(t, "CA1", ms.CallID())

	assert.ElementsMatch(t, []string{"inbound", "outbound"}, dials.tracks)
	transcript := r.State().Transcript
	assert.Contains(t, transcript, "\nCustomer: I want a refund\nCustomer: Thanks")
	assert.Contains(t, transcript, "\nAgent: Let me check")
}

func TestMediaStreamIgnoresAudioBeforeStart(t *testing.T) {
	dials := &dialLog{}
	conn := &frameQueue{frames: [][]byte{
		mediaFrame(t, "inbound", "too early"),
		[]byte("not json"),
		frame(t, map[string]any{"event": "stop"}),
	}}

	require.NoError(t, call.NewMediaStream(conn, dials.dial, relay.New(), nil).Run(context.Background()))
	assert.Empty(t, dials.tracks)
}

func TestMediaStreamDialFailureIsNotRetried(t *testing.T) {
	r := relay.New()
	r.SetActiveCall("CA1")
	dials := &dialLog{err: errors.New("401 unauthorized")}
	conn := &frameQueue{frames: [][]byte{
		startFrame(t, "CA1"),
		mediaFrame(t, "inbound", "one"),
		mediaFrame(t, "inbound", "two"),
		frame(t, map[string]any{"event": "stop"}),
	}}

	require.NoError(t, call.NewMediaStream(conn, dials.dial, r, nil).Run(context.Background()))
	assert.Equal(t, []string{"inbound"}, dials.tracks)
	assert.Empty(t, r.State().Transcript)
}

func TestMediaStreamReadError(t *testing.T) {
	conn := &frameQueue{err: errors.New("connection reset")}
	err := call.NewMediaStream(conn, (&dialLog{}).dial, relay.New(), nil).Run(context.Background())
	assert.Error(t, err)
}
