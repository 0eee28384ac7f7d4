package workers_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/mocks"
	"github.com/mrsingh-rishi/callcoach/model"
	"github.com/mrsingh-rishi/callcoach/types"
	"github.com/mrsingh-rishi/callcoach/workers"
)

type segmentLog struct {
	mu       sync.Mutex
	calls    []string
	segments []string
}

func (s *segmentLog) AppendTranscript(callID, segment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, callID)
	s.segments = append(s.segments, segment)
}

func (s *segmentLog) snapshot() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...), append([]string(nil), s.segments...)
}

func TestNewTranscriptionWorkerValidation(t *testing.T) {
	in := make(chan types.TranscriptionResult)
	_, err := workers.NewTranscriptionWorker("", "Agent", in, &segmentLog{}, nil)
	assert.Error(t, err)
	_, err = workers.NewTranscriptionWorker("call_1", "Agent", nil, &segmentLog{}, nil)
	assert.Error(t, err)
	_, err = workers.NewTranscriptionWorker("call_1", "Agent", in, nil, nil)
	assert.Error(t, err)
}

func TestTranscriptionWorkerAppendsFinals(t *testing.T) {
	in := make(chan types.TranscriptionResult, 8)
	log := &segmentLog{}
	tw, err := workers.NewTranscriptionWorker("call_42", "", in, log, zap.NewNop())
	require.NoError(t, err)
	tw.Start()

	in <- types.TranscriptionResult{Transcription: "Hi", Final: false, Track: types.TrackInbound}
	in <- types.TranscriptionResult{Transcription: " Hi, I need help ", Final: true, Track: types.TrackInbound}
	in <- types.TranscriptionResult{Transcription: "  ", Final: true, Track: types.TrackOutbound}
	in <- types.TranscriptionResult{Transcription: "Sure", Final: true, Track: types.TrackOutbound}
	close(in)

	select {
	case <-tw.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after input closed")
	}

	calls, segments := log.snapshot()
	assert.Equal(t, []string{"call_42", "call_42"}, calls)
	assert.Equal(t, []string{"\nCustomer: Hi, I need help", "\nAgent: Sure"}, segments)
}

func TestTranscriptionWorkerFixedLabel(t *testing.T) {
	in := make(chan types.TranscriptionResult, 1)
	log := &segmentLog{}
	tw, err := workers.NewTranscriptionWorker("call_1", "Agent", in, log, nil)
	require.NoError(t, err)
	tw.Start()

	in <- types.TranscriptionResult{Transcription: "hello", Final: true, Track: types.TrackInbound}
	assert.Eventually(t, func() bool {
		_, segments := log.snapshot()
		return len(segments) == 1
	}, time.Second, 5*time.Millisecond)

	tw.Stop()
	<-tw.Done()
	_, segments := log.snapshot()
	assert.Equal(t, "\nAgent: hello", segments[0])
}

func TestCoachingWorkerProcessesJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	coach := mocks.NewMockCoach(ctrl)
	store := mocks.NewMockSessionStore(ctrl)

	feedback := model.CoachingFeedback{Strengths: []string{"calm"}, OverallScore: 90, AvatarScript: "Well done."}
	saved := make(chan model.CoachingSession, 1)

	coach.EXPECT().GenerateFeedback(gomock.Any(), "\nCustomer: hi").Return(feedback, nil)
	store.EXPECT().SaveCoachingSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s model.CoachingSession) (model.CoachingSession, error) {
			s.ID = 1
			saved <- s
			return s, nil
		})

	w, err := workers.NewCoachingWorker(coach, store, 4, zap.NewNop())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, w.Submit(workers.CoachingJob{CallControlID: "cc_1", AgentID: "agent_001", Transcript: "\nCustomer: hi"}))

	select {
	case s := <-saved:
		assert.Equal(t, "cc_1", s.CallControlID)
		assert.Equal(t, "agent_001", s.AgentID)
		assert.Equal(t, feedback, s.CoachingContent)
		assert.Equal(t, "Well done.", s.AvatarScript)
	case <-time.After(time.Second):
		t.Fatal("coaching session was not saved")
	}
}

func TestCoachingWorkerSkipsSaveOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	coach := mocks.NewMockCoach(ctrl)
	store := mocks.NewMockSessionStore(ctrl)

	done := make(chan struct{})
	coach.EXPECT().GenerateFeedback(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string) (model.CoachingFeedback, error) {
			close(done)
			return model.CoachingFeedback{}, errors.New("model unavailable")
		})

	w, err := workers.NewCoachingWorker(coach, store, 1, nil)
	require.NoError(t, err)
	w.Start()

	require.NoError(t, w.Submit(workers.CoachingJob{CallControlID: "cc_2", AgentID: "a", Transcript: "x"}))
	<-done
	w.Stop()
}

func TestCoachingWorkerSubmitBackpressure(t *testing.T) {
	ctrl := gomock.NewController(t)
	w, err := workers.NewCoachingWorker(mocks.NewMockCoach(ctrl), mocks.NewMockSessionStore(ctrl), 1, nil)
	require.NoError(t, err)

	require.NoError(t, w.Submit(workers.CoachingJob{CallControlID: "a"}))
	assert.ErrorIs(t, w.Submit(workers.CoachingJob{CallControlID: "b"}), workers.ErrQueueFull)

	w.Stop()
	assert.ErrorIs(t, w.Submit(workers.CoachingJob{CallControlID: "c"}), workers.ErrStopped)
}

func TestNewCoachingWorkerValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, err := workers.NewCoachingWorker(nil, mocks.NewMockSessionStore(ctrl), 1, nil)
	assert.Error(t, err)
	_, err = workers.NewCoachingWorker(mocks.NewMockCoach(ctrl), nil, 1, nil)
	assert.Error(t, err)
}
