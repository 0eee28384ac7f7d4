package workers

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mrsingh-rishi/callcoach/logger"
	"github.com/mrsingh-rishi/callcoach/model"
)

//go:generate mockgen -destination=../mocks/mock_coaching.go -package=mocks github.com/mrsingh-rishi/callcoach/workers Coach,SessionStore

var (
	// ErrQueueFull is returned by Submit when the job backlog is saturated.
	ErrQueueFull = errors.New("coaching queue is full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("coaching worker stopped")
)

// Coach produces feedback for a finished call.
type Coach interface {
	GenerateFeedback(ctx context.Context, transcript string) (model.CoachingFeedback, error)
}

// SessionStore persists generated coaching sessions.
type SessionStore interface {
	SaveCoachingSession(ctx context.Context, s model.CoachingSession) (model.CoachingSession, error)
}

// CoachingJob asks for feedback on one call transcript.
type CoachingJob struct {
	CallControlID string
	AgentID       string
	Transcript    string
}

// CoachingWorker generates and stores coaching off the webhook path.
type CoachingWorker struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	jobs   chan CoachingJob

	coach  Coach
	store  SessionStore
	logger *zap.Logger
}

// NewCoachingWorker creates a worker with room for size pending jobs.
func NewCoachingWorker(coach Coach, store SessionStore, size int, l *zap.Logger) (*CoachingWorker, error) {
	if coach == nil {
		return nil, errors.New("coach is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CoachingWorker{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan CoachingJob, size),
		coach:  coach,
		store:  store,
		logger: logger.Or(l).Named("coaching"),
	}, nil
}

// Start processes jobs one at a time until Stop.
func (w *CoachingWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.ctx.Done():
				return
			case job := <-w.jobs:
				w.process(job)
			}
		}
	}()
}

// Submit queues a job without blocking.
func (w *CoachingWorker) Submit(job CoachingJob) error {
	if w.ctx.Err() != nil {
		return ErrStopped
	}
	select {
	case w.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop cancels the in-flight job and waits for the worker to exit.
func (w *CoachingWorker) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *CoachingWorker) process(job CoachingJob) {
	log := w.logger.With(zap.String("call_control_id", job.CallControlID))

	feedback, err := w.coach.GenerateFeedback(w.ctx, job.Transcript)
	if err != nil {
		log.Error("coaching generation failed", zap.Error(err))
		return
	}

	session, err := w.store.SaveCoachingSession(w.ctx, model.CoachingSession{
		CallControlID:   job.CallControlID,
		AgentID:         job.AgentID,
		CoachingContent: feedback,
		AvatarScript:    feedback.AvatarScript,
	})
	if err != nil {
		log.Error("saving coaching session failed", zap.Error(err))
		return
	}
	log.Info("coaching session saved", zap.Int64("session_id", session.ID), zap.Int("score", feedback.OverallScore))
}
