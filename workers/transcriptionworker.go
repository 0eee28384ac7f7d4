package workers

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/logger"
	"github.com/mrsingh-rishi/callcoach/types"
)

// Appender receives finalized transcript segments.
type Appender interface {
	AppendTranscript(callID, segment string)
}

// TranscriptionWorker turns the recognition results of one audio track into
// labelled transcript segments for a call.
type TranscriptionWorker struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	callID string
	label  string
	input  <-chan types.TranscriptionResult
	relay  Appender
	logger *zap.Logger
}

// NewTranscriptionWorker creates a worker for callID. An empty label picks
// the speaker from each result's track.
func NewTranscriptionWorker(callID, label string, input <-chan types.TranscriptionResult, relay Appender, l *zap.Logger) (*TranscriptionWorker, error) {
	if callID == "" {
		return nil, errors.New("call id is required")
	}
	if input == nil {
		return nil, errors.New("transcription input channel is required")
	}
	if relay == nil {
		return nil, errors.New("transcript appender is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TranscriptionWorker{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		callID: callID,
		label:  label,
		input:  input,
		relay:  relay,
		logger: logger.Or(l).Named("transcription").With(zap.String("call_id", callID)),
	}, nil
}

// Start consumes results until Stop is called or the input is closed.
func (tw *TranscriptionWorker) Start() {
	go func() {
		defer close(tw.done)
		for {
			select {
			case <-tw.ctx.Done():
				return
			case result, ok := <-tw.input:
				if !ok {
					return
				}
				tw.handle(result)
			}
		}
	}()
}

func (tw *TranscriptionWorker) handle(result types.TranscriptionResult) {
	if !result.Final {
		tw.logger.Debug("partial transcription", zap.String("text", result.Transcription), zap.Float64("confidence", result.Confidence))
		return
	}
	text := strings.TrimSpace(result.Transcription)
	if text == "" {
		return
	}

	label := tw.label
	if label == "" {
		label = types.SpeakerForTrack(result.Track)
	}
	tw.relay.AppendTranscript(tw.callID, types.FormatSegment(label, text))
	tw.logger.Debug("final transcription", zap.String("speaker", label), zap.Float64("confidence", result.Confidence))
}

// Stop ends the worker without waiting for queued results.
func (tw *TranscriptionWorker) Stop() {
	tw.cancel()
}

// Done is closed once the worker goroutine has exited.
func (tw *TranscriptionWorker) Done() <-chan struct{} {
	return tw.done
}
