package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skillcert/proctor-engine/internal/client"
	"github.com/skillcert/proctor-engine/internal/detect"
	"github.com/skillcert/proctor-engine/internal/events"
	"github.com/skillcert/proctor-engine/internal/models"
	"github.com/skillcert/proctor-engine/internal/proctor"
	"github.com/skillcert/proctor-engine/internal/repositories"
	"github.com/skillcert/proctor-engine/internal/timer"
)

// State is the exam session lifecycle state.
type State string

const (
	StateLoading    State = "loading"
	StateInProgress State = "in_progress"
	StateSubmitted  State = "submitted"
	StateExpired    State = "expired"
	StateTerminated State = "terminated"

	// StateError is the non-terminal load-failure state; the user must
	// navigate back and start over.
	StateError State = "error"
)

// IsFinished reports whether the state is terminal. Error is not
// terminal: a failed load can be retried with a fresh session.
func (s State) IsFinished() bool {
	switch s {
	case StateSubmitted, StateExpired, StateTerminated:
		return true
	}
	return false
}

var (
	ErrSessionNotActive = errors.New("exam session is not in progress")
	ErrInvalidOption    = errors.New("option does not belong to the current question")

	// ErrInvalidAttempt is fatal: submission cannot be retried without a
	// valid attempt identifier.
	ErrInvalidAttempt = errors.New("attempt identifier is missing or invalid")

	// ErrSubmitFailed is recoverable: the session stays in progress and
	// the user may retry.
	ErrSubmitFailed = errors.New("submission failed")
)

// internal events consumed by the dispatch function; every terminal
// transition goes through dispatch and nowhere else.
type eventKind int

const (
	eventTimerExpired eventKind = iota
	eventViolationsExceeded
)

// Config wires one exam session.
type Config struct {
	CertificationID uint

	Backend    client.Backend
	TimerStore timer.Store
	Frames     detect.FrameSource
	Faces      detect.FaceDetector
	Objects    detect.ObjectDetector
	Publisher  events.EventPublisher
	Violations repositories.ViolationRepository

	Logger *slog.Logger
	Now    func() time.Time

	// Proctoring tuning; zero values take the proctor package defaults.
	MaxViolations   int
	DebounceWindow  time.Duration
	WarningDuration time.Duration
	NoFaceAfter     time.Duration
	ObjectInterval  time.Duration
	PhoneConfidence float64

	// TickInterval shortens the timer tick in tests.
	TickInterval     time.Duration
	WarningThreshold int

	// OnWarning and OnWarningCleared surface the transient proctoring
	// warning to the connected client.
	OnWarning        func(v models.Violation)
	OnWarningCleared func()

	// OnDeviceError reports a camera failure message. Proctoring is
	// disabled at that point; the exam itself continues.
	OnDeviceError func(userMessage string)

	// OnStateChange observes every state transition.
	OnStateChange func(state State)
}

// Session owns one certification attempt end to end: it loads the attempt
// and question set, composes the countdown timer and perception loop,
// accumulates answers, and applies every lifecycle transition through a
// single dispatch point so that termination, expiry, and submission can
// never interleave.
type Session struct {
	id  uuid.UUID
	cfg Config

	mu            sync.Mutex
	state         State
	certification *models.Certification
	attempt       *models.ExamAttempt
	questions     []models.Question
	answers       map[uint]uint // question ID -> option ID, Unanswered when none
	cursor        int
	result        *models.GradedResult
	submitting    bool
	deviceMessage string
	warned        bool

	countdown *timer.Countdown
	recorder  *proctor.Recorder
	loop      *proctor.Loop

	logger *slog.Logger
}

// New creates a session in the loading state. Call Start to fetch the
// attempt and begin the exam.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	id := uuid.New()
	return &Session{
		id:     id,
		cfg:    cfg,
		state:  StateLoading,
		logger: cfg.Logger.With("session_id", id.String()),
	}
}

// Start fetches certification metadata, the attempt, and the question set,
// then transitions to in_progress and starts the timer and perception
// loop. A fetch failure moves the session to the error state.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateLoading {
		s.mu.Unlock()
		return fmt.Errorf("cannot start session in state %s", s.state)
	}
	s.mu.Unlock()

	s.logger.Info("Starting exam session", "certification_id", s.cfg.CertificationID)

	certification, err := s.cfg.Backend.GetCertification(ctx, s.cfg.CertificationID)
	if err != nil {
		return s.failLoad(fmt.Errorf("failed to load certification: %w", err))
	}
	attempt, err := s.cfg.Backend.StartAttempt(ctx, s.cfg.CertificationID)
	if err != nil {
		return s.failLoad(fmt.Errorf("failed to start attempt: %w", err))
	}
	questions, err := s.cfg.Backend.GetQuestions(ctx, s.cfg.CertificationID)
	if err != nil {
		return s.failLoad(fmt.Errorf("failed to load questions: %w", err))
	}
	if len(questions) == 0 {
		return s.failLoad(errors.New("certification has no questions"))
	}

	duration := attempt.Duration
	if duration <= 0 {
		duration = certification.Duration
	}

	answers := make(map[uint]uint, len(questions))
	for _, q := range questions {
		answers[q.ID] = models.Unanswered
	}

	s.mu.Lock()
	s.certification = certification
	s.attempt = attempt
	s.questions = questions
	s.answers = answers
	s.cursor = 0

	s.recorder = proctor.NewRecorder(proctor.RecorderConfig{
		MaxViolations:    s.cfg.MaxViolations,
		DebounceWindow:   s.cfg.DebounceWindow,
		WarningDuration:  s.cfg.WarningDuration,
		Logger:           s.logger,
		Now:              s.cfg.Now,
		OnRecorded:       s.handleViolationRecorded,
		OnWarning:        s.cfg.OnWarning,
		OnWarningCleared: s.cfg.OnWarningCleared,
		OnExceeded: func(violations []models.Violation) {
			s.dispatch(eventViolationsExceeded, violations)
		},
	})

	s.countdown = timer.NewCountdown(ctx, timer.Config{
		AttemptID:        attempt.ID,
		DurationMinutes:  duration,
		WarningThreshold: s.cfg.WarningThreshold,
		TickInterval:     s.cfg.TickInterval,
		Store:            s.cfg.TimerStore,
		Logger:           s.logger,
		Now:              s.cfg.Now,
		OnTick:           s.handleTick,
		OnExpire: func() {
			s.dispatch(eventTimerExpired, nil)
		},
	})

	s.loop = proctor.NewLoop(proctor.LoopConfig{
		Frames:          s.cfg.Frames,
		Faces:           s.cfg.Faces,
		Objects:         s.cfg.Objects,
		Recorder:        s.recorder,
		ObjectInterval:  s.cfg.ObjectInterval,
		NoFaceAfter:     s.cfg.NoFaceAfter,
		PhoneConfidence: s.cfg.PhoneConfidence,
		Logger:          s.logger,
		Now:             s.cfg.Now,
		OnDeviceError:   s.handleDeviceError,
	})

	s.setStateLocked(StateInProgress)
	s.attempt.Status = models.AttemptInProgress
	started := events.SessionStartedEvent{
		SessionID:       s.id.String(),
		AttemptID:       attempt.ID,
		CertificationID: certification.ID,
		AttemptNumber:   attempt.AttemptNumber,
		QuestionCount:   len(questions),
		DurationMinutes: duration,
		StartedAt:       s.cfg.Now(),
	}
	s.mu.Unlock()

	s.countdown.Start()
	s.loop.Start()
	s.publish(events.NewSessionStartedEvent(started))

	s.logger.Info("Exam session in progress",
		"attempt_id", attempt.ID,
		"question_count", len(questions),
		"duration_minutes", duration)
	return nil
}

func (s *Session) failLoad(err error) error {
	s.mu.Lock()
	s.setStateLocked(StateError)
	s.mu.Unlock()
	s.logger.Error("Exam session load failed", "error", err)
	return err
}

// dispatch is the single place terminal transitions occur. The first
// terminal event wins: a violation-exceeded and a timer-expiration that
// become eligible in the same window cannot both apply, and termination
// suppresses any pending submission-on-expiry.
func (s *Session) dispatch(ev eventKind, violations []models.Violation) {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return
	}

	switch ev {
	case eventViolationsExceeded:
		s.setStateLocked(StateTerminated)
		s.attempt.Status = models.AttemptTerminated
		ended := s.endedEventLocked()
		exceeded := events.ViolationExceededEvent{
			SessionID:  s.id.String(),
			AttemptID:  s.attempt.ID,
			Violations: violations,
		}
		s.mu.Unlock()

		s.stopProctoring(false)
		s.publish(events.NewViolationExceededEvent(exceeded))
		s.publish(events.NewSessionEndedEvent(events.EventSessionTerminated, ended))
		s.logger.Warn("Exam session terminated for violations",
			"violation_count", len(violations))

	case eventTimerExpired:
		s.setStateLocked(StateExpired)
		s.attempt.Status = models.AttemptExpired
		payload := s.buildSubmissionLocked()
		ended := s.endedEventLocked()
		s.mu.Unlock()

		s.stopProctoring(true)
		s.logger.Info("Exam time expired, auto-submitting",
			"answered_count", len(payload.Answers))

		// Partial submission is valid and expected here.
		result, err := s.cfg.Backend.SubmitAttempt(context.Background(), payload)
		if err != nil {
			s.logger.Error("Auto-submit after expiry failed", "error", err)
		} else {
			s.mu.Lock()
			s.result = result
			s.mu.Unlock()
		}
		s.publish(events.NewSessionEndedEvent(events.EventSessionExpired, ended))
	}
}

// Submit is the user-initiated submission action.
func (s *Session) Submit(ctx context.Context) (*models.GradedResult, error) {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	if s.submitting {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: submission already in flight", ErrSubmitFailed)
	}
	if s.attempt == nil || s.attempt.ID == 0 {
		s.mu.Unlock()
		return nil, ErrInvalidAttempt
	}
	s.submitting = true
	payload := s.buildSubmissionLocked()
	s.mu.Unlock()

	s.logger.Info("Submitting exam", "answered_count", len(payload.Answers))

	result, err := s.cfg.Backend.SubmitAttempt(ctx, payload)

	s.mu.Lock()
	s.submitting = false
	if err != nil {
		s.mu.Unlock()
		// Recoverable: the session stays in progress for a retry.
		s.logger.Error("Submission failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	if s.state != StateInProgress {
		// A terminal transition won while the request was in flight;
		// its outcome stands and the submission result is discarded.
		s.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	s.setStateLocked(StateSubmitted)
	s.attempt.Status = models.AttemptSubmitted
	s.result = result
	ended := s.endedEventLocked()
	s.mu.Unlock()

	s.stopProctoring(true)
	s.publish(events.NewSessionEndedEvent(events.EventSessionSubmitted, ended))
	s.logger.Info("Exam submitted",
		"score", result.Score,
		"passed", result.Passed)
	return result, nil
}

// stopProctoring halts the recorder, timer, and perception loop. The
// recorder and timer stop synchronously, so no further violation or tick
// is observable past the transition that called us; the loop's blocking
// wait and camera release run in the background because this may execute
// on a detection goroutine.
func (s *Session) stopProctoring(clearTimer bool) {
	s.recorder.Close()
	s.countdown.Stop()
	if clearTimer {
		s.countdown.ClearPersisted(context.Background())
	}
	s.loop.Cancel()
	go s.loop.Stop()
}

// Close tears the session down regardless of state, releasing the camera
// and all timers. Used when the hosting view goes away. Blocking and
// idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	started := s.recorder != nil
	s.mu.Unlock()
	if !started {
		return
	}
	s.recorder.Close()
	s.countdown.Stop()
	s.loop.Stop()
}

// ===== QUESTION NAVIGATION & ANSWERS =====

// SelectOption records the user's selection for the current question,
// overwriting any previous selection.
func (s *Session) SelectOption(optionID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return ErrSessionNotActive
	}
	q := s.questions[s.cursor]
	if !q.HasOption(optionID) {
		return ErrInvalidOption
	}
	s.answers[q.ID] = optionID
	return nil
}

// GoToQuestion moves the cursor to index i; out-of-range values are a
// no-op.
func (s *Session) GoToQuestion(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return
	}
	if i < 0 || i >= len(s.questions) {
		return
	}
	s.cursor = i
}

// Next advances the cursor, clamped at the last question.
func (s *Session) Next() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return
	}
	if s.cursor < len(s.questions)-1 {
		s.cursor++
	}
}

// Previous moves the cursor back, clamped at the first question.
func (s *Session) Previous() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return
	}
	if s.cursor > 0 {
		s.cursor--
	}
}

// buildSubmissionLocked collects answered questions only. Caller holds
// s.mu.
func (s *Session) buildSubmissionLocked() client.SubmitRequest {
	answers := make([]client.AnswerSubmission, 0, len(s.questions))
	for _, q := range s.questions {
		selected := s.answers[q.ID]
		if selected == models.Unanswered {
			continue
		}
		answers = append(answers, client.AnswerSubmission{
			QuestionID:        q.ID,
			SelectedOptionIDs: []uint{selected},
		})
	}
	return client.SubmitRequest{AttemptID: s.attempt.ID, Answers: answers}
}

// ===== COMPONENT CALLBACKS =====

func (s *Session) handleTick(remaining int, warning bool) {
	if !warning {
		return
	}
	s.mu.Lock()
	if s.warned || s.state != StateInProgress {
		s.mu.Unlock()
		return
	}
	s.warned = true
	ev := events.TimerWarningEvent{
		SessionID:        s.id.String(),
		AttemptID:        s.attempt.ID,
		RemainingSeconds: remaining,
	}
	s.mu.Unlock()
	s.publish(events.NewTimerWarningEvent(ev))
}

func (s *Session) handleViolationRecorded(v models.Violation) {
	s.mu.Lock()
	attemptID := uint(0)
	if s.attempt != nil {
		attemptID = s.attempt.ID
	}
	count := s.recorder.Count()
	s.mu.Unlock()

	if s.cfg.Violations != nil {
		record := &models.ProctoringViolation{
			AttemptID:  attemptID,
			SessionID:  s.id.String(),
			Kind:       v.Kind,
			Message:    v.Message,
			OccurredAt: v.OccurredAt,
		}
		if err := s.cfg.Violations.Create(context.Background(), record); err != nil {
			s.logger.Error("Failed to persist violation", "error", err)
		}
	}
	s.publish(events.NewViolationRecordedEvent(events.ViolationRecordedEvent{
		SessionID: s.id.String(),
		AttemptID: attemptID,
		Kind:      v.Kind,
		Message:   v.Message,
		Count:     count,
	}))
}

func (s *Session) handleDeviceError(err error, userMessage string) {
	s.mu.Lock()
	s.deviceMessage = userMessage
	s.mu.Unlock()
	if s.cfg.OnDeviceError != nil {
		s.cfg.OnDeviceError(userMessage)
	}
}

func (s *Session) setStateLocked(state State) {
	s.state = state
	if s.cfg.OnStateChange != nil {
		// Observers must not call back into the session synchronously.
		go s.cfg.OnStateChange(state)
	}
}

func (s *Session) endedEventLocked() events.SessionEndedEvent {
	answered := 0
	for _, opt := range s.answers {
		if opt != models.Unanswered {
			answered++
		}
	}
	return events.SessionEndedEvent{
		SessionID:      s.id.String(),
		AttemptID:      s.attempt.ID,
		Status:         s.attempt.Status,
		AnsweredCount:  answered,
		QuestionCount:  len(s.questions),
		ViolationCount: s.recorder.Count(),
		EndedAt:        s.cfg.Now(),
	}
}

func (s *Session) publish(event *events.SessionEvent) {
	if s.cfg.Publisher == nil {
		return
	}
	if err := s.cfg.Publisher.PublishSessionEvent(context.Background(), event); err != nil {
		s.logger.Error("Failed to publish session event",
			"event_type", event.Type,
			"error", err)
	}
}

// ===== ACCESSORS =====

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the session is in progress; the navigation guard
// intercepts leaves only while this is true.
func (s *Session) Active() bool {
	return s.State() == StateInProgress
}

func (s *Session) Attempt() *models.ExamAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == nil {
		return nil
	}
	attempt := *s.attempt
	return &attempt
}

func (s *Session) Certification() *models.Certification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.certification == nil {
		return nil
	}
	cert := *s.certification
	return &cert
}

func (s *Session) Questions() []models.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions
}

func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Session) CurrentQuestion() *models.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.questions) == 0 {
		return nil
	}
	q := s.questions[s.cursor]
	return &q
}

// Answers returns a copy of the answer map; every fetched question has an
// entry, Unanswered when no option is selected.
func (s *Session) Answers() map[uint]uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint]uint, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

func (s *Session) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, opt := range s.answers {
		if opt != models.Unanswered {
			count++
		}
	}
	return count
}

func (s *Session) Result() *models.GradedResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Session) Violations() []models.Violation {
	s.mu.Lock()
	recorder := s.recorder
	s.mu.Unlock()
	if recorder == nil {
		return nil
	}
	return recorder.Violations()
}

func (s *Session) RemainingSeconds() int {
	s.mu.Lock()
	countdown := s.countdown
	s.mu.Unlock()
	if countdown == nil {
		return 0
	}
	return countdown.Remaining()
}

func (s *Session) TimeWarning() bool {
	s.mu.Lock()
	countdown := s.countdown
	s.mu.Unlock()
	if countdown == nil {
		return false
	}
	return countdown.Warning()
}

// DeviceMessage returns the user-facing camera failure message, empty
// when proctoring is healthy.
func (s *Session) DeviceMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceMessage
}
