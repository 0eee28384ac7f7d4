package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/logger"
	"github.com/mrsingh-rishi/callcoach/types"
)

// DefaultEndpoint is tuned for 8kHz mu-law phone audio.
const DefaultEndpoint = "wss://api.deepgram.com/v1/listen?model=nova-2-phonecall&encoding=mulaw&sample_rate=8000&channels=1&language=en-US&punctuate=true&smart_format=true&interim_results=true"

// closeTimeout bounds how long Close waits for the final results.
const closeTimeout = 3 * time.Second

// Config holds the Deepgram connection settings.
type Config struct {
	APIKey   string
	Endpoint string
	Dialer   *gws.Dialer
}

// DeepgramClient is one live transcription stream for a single audio track.
type DeepgramClient struct {
	conn    *gws.Conn
	track   string
	results chan types.TranscriptionResult

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	finished  chan struct{}
	logger    *zap.Logger
}

type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Dial opens a stream and starts reading results.
func Dial(ctx context.Context, cfg Config, track string, l *zap.Logger) (*DeepgramClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("deepgram api key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = gws.DefaultDialer
	}

	header := http.Header{"Authorization": {fmt.Sprintf("Token %s", cfg.APIKey)}}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "deepgram dial (status %d)", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "deepgram dial")
	}

	dg := &DeepgramClient{
		conn:     conn,
		track:    track,
		results:  make(chan types.TranscriptionResult, 16),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		logger:   logger.Or(l).Named("deepgram").With(zap.String("track", track)),
	}
	go dg.listen()
	dg.logger.Debug("connected to deepgram")
	return dg, nil
}

// Send forwards one chunk of raw audio. Empty chunks are skipped.
func (dg *DeepgramClient) Send(audio []byte) error {
	if len(audio) == 0 {
		return nil
	}
	dg.writeMu.Lock()
	defer dg.writeMu.Unlock()
	return errors.Wrap(dg.conn.WriteMessage(gws.BinaryMessage, audio), "deepgram write")
}

// Results yields recognition results. It is closed when the stream ends.
func (dg *DeepgramClient) Results() <-chan types.TranscriptionResult {
	return dg.results
}

// Close asks Deepgram to flush pending audio, waits briefly for the last
// results and closes the connection.
func (dg *DeepgramClient) Close() error {
	var err error
	dg.closeOnce.Do(func() {
		dg.writeMu.Lock()
		werr := dg.conn.WriteMessage(gws.TextMessage, []byte(`{"type":"CloseStream"}`))
		dg.writeMu.Unlock()

		if werr == nil {
			select {
			case <-dg.finished:
			case <-time.After(closeTimeout):
			}
		}
		close(dg.done)
		err = dg.conn.Close()
		<-dg.finished
	})
	return err
}

func (dg *DeepgramClient) listen() {
	defer close(dg.finished)
	defer close(dg.results)

	for {
		_, msg, err := dg.conn.ReadMessage()
		if err != nil {
			if !gws.IsCloseError(err, gws.CloseNormalClosure) {
				dg.logger.Debug("deepgram read ended", zap.Error(err))
			}
			return
		}

		responses, err := decodeResponses(msg)
		if err != nil {
			dg.logger.Warn("unparseable deepgram message", zap.Error(err))
			continue
		}
		for _, resp := range responses {
			if len(resp.Channel.Alternatives) == 0 {
				continue
			}
			alt := resp.Channel.Alternatives[0]
			if alt.Transcript == "" {
				continue
			}
			result := types.TranscriptionResult{
				Transcription: alt.Transcript,
				Confidence:    alt.Confidence,
				Final:         resp.IsFinal,
				Track:         dg.track,
			}
			select {
			case dg.results <- result:
			case <-dg.done:
				return
			}
		}
	}
}

// decodeResponses accepts a single response object or an array of them.
func decodeResponses(msg []byte) ([]deepgramResponse, error) {
	if len(msg) == 0 {
		return nil, nil
	}
	switch msg[0] {
	case '[':
		var arr []deepgramResponse
		if err := json.Unmarshal(msg, &arr); err != nil {
			return nil, errors.Wrap(err, "decode response array")
		}
		return arr, nil
	case '{':
		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			return nil, errors.Wrap(err, "decode response")
		}
		return []deepgramResponse{resp}, nil
	default:
		return nil, errors.Errorf("unexpected message prefix %q", msg[0])
	}
}
