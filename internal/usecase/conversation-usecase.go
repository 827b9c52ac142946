package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/iamvkosarev/vision-chat-bot/internal/model"
	"github.com/iamvkosarev/vision-chat-bot/internal/observability"
	"github.com/iamvkosarev/vision-chat-bot/pkg/jobqueue"
	"github.com/iamvkosarev/vision-chat-bot/pkg/local"
	"github.com/sourcegraph/conc"
)

const sessionQueueBuffer = 64

var (
	ErrEmptyPrompt         = errors.New("prompt is empty")
	ErrShortcutUnavailable = errors.New("no classified label to ask about")
	ErrSessionClosed       = errors.New("session closed")
)

type Classifier interface {
	Classify(ctx context.Context, payload model.ImagePayload) model.ClassifyResult
}

type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) model.GenerationResult
}

type ConversationUsecaseDeps struct {
	Classifier Classifier
	Generator  Generator
}

type SessionPhase string

const (
	SessionPhaseIdle                   = SessionPhase("idle")
	SessionPhaseAwaitingClassification = SessionPhase("awaiting-classification")
	SessionPhaseClassifiedReady        = SessionPhase("classified-ready")
	SessionPhaseClassifiedFailed       = SessionPhase("classified-failed")
)

type SessionState struct {
	Phase               SessionPhase
	InFlightGenerations int
}

// Session owns one transcript and one classification state. Every change to
// them happens on the session queue; adapter calls run on worker goroutines
// and post their results back to the queue.
type Session struct {
	ConversationUsecaseDeps
	id       uuid.UUID
	language local.Language
	queue    *jobqueue.Queue
	workers  *conc.WaitGroup

	// written only from the queue goroutine
	epoch    uint64
	inFlight int
	closed   bool

	mu             sync.RWMutex
	transcript     []model.Message
	classification model.ClassificationState

	closeOnce sync.Once
}

func NewSession(deps ConversationUsecaseDeps, language local.Language) *Session {
	return &Session{
		ConversationUsecaseDeps: deps,
		id:                      uuid.New(),
		language:                language,
		queue:                   jobqueue.New(sessionQueueBuffer),
		workers:                 conc.NewWaitGroup(),
		transcript:              make([]model.Message, 0),
		classification:          model.NewClassificationState(local.ClassificationPlaceholder.Text(language)),
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// SubmitImage starts classification of the image. The newest submitted image
// owns the classification state: results of older ones are still delivered
// through their PendingClassification but marked as superseded.
func (s *Session) SubmitImage(ctx context.Context, payload model.ImagePayload) (*PendingClassification, error) {
	ctx = s.workerContext(ctx)
	pending := newPendingClassification()
	var err error
	ok := s.queue.Do(
		func() {
			if s.closed {
				err = ErrSessionClosed
				return
			}
			s.epoch++
			epoch := s.epoch
			s.setClassification(model.PendingClassificationState(local.ClassificationInProgress.Text(s.language)))

			s.workers.Go(
				func() {
					result := s.Classifier.Classify(ctx, payload)
					if !s.queue.Enqueue(func() { s.finishClassification(ctx, epoch, pending, result) }) {
						pending.complete(result, true)
					}
				},
			)
		},
	)
	if !ok {
		return nil, ErrSessionClosed
	}
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// AcquireAndSubmit pulls an image from source and submits it. A failed
// acquisition leaves the session untouched.
func (s *Session) AcquireAndSubmit(ctx context.Context, source ImageSource) (*PendingClassification, error) {
	payload, err := source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return s.SubmitImage(ctx, payload)
}

func (s *Session) SubmitText(ctx context.Context, text string) (*Turn, error) {
	return s.SubmitPrompt(ctx, text, nil)
}

// SubmitPrompt appends the user message and starts generation. Text that is
// empty after trimming is rejected with ErrEmptyPrompt and changes nothing.
func (s *Session) SubmitPrompt(ctx context.Context, text string, image *model.ImagePayload) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyPrompt
	}
	return s.submit(
		ctx, func() (*Turn, error) {
			return s.startTurn(ctx, text, image), nil
		},
	)
}

// AskAboutClassification asks the generator about the current label. It is
// only possible right after a successful classification.
func (s *Session) AskAboutClassification(ctx context.Context) (*Turn, error) {
	return s.submit(
		ctx, func() (*Turn, error) {
			state := s.Classification()
			if !state.Available {
				return nil, ErrShortcutUnavailable
			}
			return s.startTurn(ctx, model.ShortcutPrompt(state.Label), nil), nil
		},
	)
}

func (s *Session) Transcript() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	transcript := make([]model.Message, len(s.transcript))
	copy(transcript, s.transcript)
	return transcript
}

func (s *Session) Classification() model.ClassificationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classification
}

func (s *Session) State() SessionState {
	var inFlight int
	if !s.queue.Do(func() { inFlight = s.inFlight }) {
		inFlight = 0
	}
	return SessionState{
		Phase:               phaseOf(s.Classification()),
		InFlightGenerations: inFlight,
	}
}

// Close rejects new submissions and waits for in-flight calls to land in the
// transcript.
func (s *Session) Close() {
	s.closeOnce.Do(
		func() {
			s.queue.Do(func() { s.closed = true })
			s.workers.Wait()
			s.queue.Stop()
		},
	)
}

func (s *Session) submit(ctx context.Context, start func() (*Turn, error)) (*Turn, error) {
	var (
		turn *Turn
		err  error
	)
	ok := s.queue.Do(
		func() {
			if s.closed {
				err = ErrSessionClosed
				return
			}
			turn, err = start()
		},
	)
	if !ok {
		return nil, ErrSessionClosed
	}
	return turn, err
}

// startTurn must run on the queue goroutine.
func (s *Session) startTurn(ctx context.Context, prompt string, image *model.ImagePayload) *Turn {
	ctx = s.workerContext(ctx)
	question := model.NewMessage(prompt, model.MessageSenderUser)
	s.appendMessage(question)
	turn := newTurn(question)
	s.inFlight++

	s.workers.Go(
		func() {
			result := s.Generator.Generate(ctx, GenerationRequest{Prompt: prompt, Image: image})
			if !s.queue.Enqueue(func() { s.finishTurn(turn, result) }) {
				turn.complete(model.NewMessage(result.Text, model.MessageSenderAssistant), result)
			}
		},
	)
	return turn
}

func (s *Session) finishTurn(turn *Turn, result model.GenerationResult) {
	answer := model.NewMessage(result.Text, model.MessageSenderAssistant)
	s.appendMessage(answer)
	s.inFlight--
	turn.complete(answer, result)
}

func (s *Session) finishClassification(
	ctx context.Context,
	epoch uint64,
	pending *PendingClassification,
	result model.ClassifyResult,
) {
	if epoch != s.epoch {
		observability.LoggerFromContext(ctx).Info(
			"dropping superseded classification",
			"epoch", epoch,
			"current_epoch", s.epoch,
		)
		pending.complete(result, true)
		return
	}
	s.setClassification(model.StateFromResult(result))
	pending.complete(result, false)
}

func (s *Session) appendMessage(message model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, message)
}

func (s *Session) setClassification(state model.ClassificationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classification = state
}

// workerContext keeps request values such as the logger fields but drops
// cancellation: once started, adapter calls always finish.
func (s *Session) workerContext(ctx context.Context) context.Context {
	return observability.WithSessionID(context.WithoutCancel(ctx), s.id.String())
}

func phaseOf(state model.ClassificationState) SessionPhase {
	switch state.Status {
	case model.ClassificationStatusPending:
		return SessionPhaseAwaitingClassification
	case model.ClassificationStatusReady:
		return SessionPhaseClassifiedReady
	case model.ClassificationStatusFailed:
		return SessionPhaseClassifiedFailed
	default:
		return SessionPhaseIdle
	}
}

// Turn resolves once the assistant answer has been appended.
type Turn struct {
	Question model.Message

	done   chan struct{}
	answer model.Message
	result model.GenerationResult
}

func newTurn(question model.Message) *Turn {
	return &Turn{
		Question: question,
		done:     make(chan struct{}),
	}
}

func (t *Turn) complete(answer model.Message, result model.GenerationResult) {
	t.answer = answer
	t.result = result
	close(t.done)
}

func (t *Turn) Done() <-chan struct{} {
	return t.done
}

func (t *Turn) Wait(ctx context.Context) (model.Message, error) {
	select {
	case <-t.done:
		return t.answer, nil
	case <-ctx.Done():
		return model.Message{}, ctx.Err()
	}
}

// Result is only meaningful after Done is closed.
func (t *Turn) Result() model.GenerationResult {
	<-t.done
	return t.result
}

type PendingClassification struct {
	done       chan struct{}
	result     model.ClassifyResult
	superseded bool
}

func newPendingClassification() *PendingClassification {
	return &PendingClassification{done: make(chan struct{})}
}

func (p *PendingClassification) complete(result model.ClassifyResult, superseded bool) {
	p.result = result
	p.superseded = superseded
	close(p.done)
}

func (p *PendingClassification) Done() <-chan struct{} {
	return p.done
}

func (p *PendingClassification) Wait(ctx context.Context) (model.ClassifyResult, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return model.ClassifyResult{}, ctx.Err()
	}
}

// Superseded reports whether a newer image was submitted before this one
// finished. Only valid after Done is closed.
func (p *PendingClassification) Superseded() bool {
	<-p.done
	return p.superseded
}
