package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/skillcert/proctor-engine/internal/client"
	"github.com/skillcert/proctor-engine/internal/config"
	"github.com/skillcert/proctor-engine/internal/detect"
	"github.com/skillcert/proctor-engine/internal/events"
	"github.com/skillcert/proctor-engine/internal/guard"
	"github.com/skillcert/proctor-engine/internal/models"
	"github.com/skillcert/proctor-engine/internal/repositories"
	"github.com/skillcert/proctor-engine/internal/session"
	"github.com/skillcert/proctor-engine/internal/timer"
)

// Notice is a transient message pushed to the connected client over its
// proctoring stream: violation warnings, warning clears, camera failures,
// and state transitions.
type Notice struct {
	Type    string               `json:"type"`
	Kind    models.ViolationKind `json:"kind,omitempty"`
	Message string               `json:"message,omitempty"`
	State   session.State        `json:"state,omitempty"`
}

const (
	NoticeWarning        = "violation_warning"
	NoticeWarningCleared = "warning_cleared"
	NoticeDeviceError    = "device_error"
	NoticeStateChange    = "state_change"
)

// ManagedSession bundles one exam session with its navigation guard and
// the frame source its proctoring stream feeds.
type ManagedSession struct {
	Session *session.Session
	Guard   *guard.Guard
	Source  *detect.StreamSource

	notices chan Notice
}

// Notices is the client-facing notification stream. Entries are dropped,
// never blocked on, when the consumer lags.
func (m *ManagedSession) Notices() <-chan Notice {
	return m.notices
}

func (m *ManagedSession) pushNotice(n Notice) {
	select {
	case m.notices <- n:
	default:
	}
}

// ===== SESSION SERVICE =====

type SessionService interface {
	// Start creates a session for the certification, begins the attempt
	// and starts its timer and perception loop.
	Start(ctx context.Context, certificationID uint) (*ManagedSession, error)

	// Get looks up a live session by ID.
	Get(id uuid.UUID) (*ManagedSession, error)

	// Remove tears a session down and discards it, releasing the camera
	// stream and timers.
	Remove(id uuid.UUID) error

	// Shutdown closes every live session.
	Shutdown()
}

type SessionServiceDeps struct {
	Backend    client.Backend
	TimerStore timer.Store
	Faces      detect.FaceDetector
	Objects    detect.ObjectDetector
	Publisher  events.EventPublisher
	Violations repositories.ViolationRepository
	Logger     *slog.Logger
	Proctoring config.ProctoringConfig
}

type sessionService struct {
	deps SessionServiceDeps

	mu       sync.RWMutex
	sessions map[uuid.UUID]*ManagedSession
}

func NewSessionService(deps SessionServiceDeps) SessionService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &sessionService{
		deps:     deps,
		sessions: make(map[uuid.UUID]*ManagedSession),
	}
}

func (s *sessionService) Start(ctx context.Context, certificationID uint) (*ManagedSession, error) {
	p := s.deps.Proctoring
	source := detect.NewStreamSource(p.FrameBuffer, p.FrameWait)

	managed := &ManagedSession{
		Source:  source,
		notices: make(chan Notice, 16),
	}

	sess := session.New(session.Config{
		CertificationID: certificationID,

		Backend:    s.deps.Backend,
		TimerStore: s.deps.TimerStore,
		Frames:     source,
		Faces:      s.deps.Faces,
		Objects:    s.deps.Objects,
		Publisher:  s.deps.Publisher,
		Violations: s.deps.Violations,

		Logger: s.deps.Logger,

		MaxViolations:    p.MaxViolations,
		DebounceWindow:   p.DebounceWindow,
		WarningDuration:  p.WarningDuration,
		NoFaceAfter:      p.NoFaceAfter,
		ObjectInterval:   p.ObjectInterval,
		PhoneConfidence:  p.PhoneConfidence,
		WarningThreshold: p.WarningThreshold,

		OnWarning: func(v models.Violation) {
			managed.pushNotice(Notice{Type: NoticeWarning, Kind: v.Kind, Message: v.Message})
		},
		OnWarningCleared: func() {
			managed.pushNotice(Notice{Type: NoticeWarningCleared})
		},
		OnDeviceError: func(userMessage string) {
			managed.pushNotice(Notice{Type: NoticeDeviceError, Message: userMessage})
		},
		OnStateChange: func(state session.State) {
			managed.pushNotice(Notice{Type: NoticeStateChange, State: state})
		},
	})
	managed.Session = sess

	managed.Guard = guard.New(guard.Config{
		Session:  sess,
		Fallback: "/dashboard",
		Logger:   s.deps.Logger,
		OnExit: func(destination string) {
			// Confirmed exit abandons the attempt: monitoring stops and
			// nothing is submitted.
			s.deps.Logger.Info("Session abandoned via confirmed exit",
				"session_id", sess.ID().String(),
				"destination", destination)
			s.teardown(sess.ID())
		},
	})

	if err := sess.Start(ctx); err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("failed to start exam session: %w", err)
	}

	s.mu.Lock()
	s.sessions[sess.ID()] = managed
	s.mu.Unlock()

	return managed, nil
}

func (s *sessionService) Get(id uuid.UUID) (*ManagedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	managed, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return managed, nil
}

func (s *sessionService) Remove(id uuid.UUID) error {
	s.mu.RLock()
	_, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.teardown(id)
	return nil
}

// teardown closes a session and drops it from the registry.
func (s *sessionService) teardown(id uuid.UUID) {
	s.mu.Lock()
	managed, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	managed.Session.Close()
	_ = managed.Source.Close()
}

func (s *sessionService) Shutdown() {
	s.mu.Lock()
	all := make([]*ManagedSession, 0, len(s.sessions))
	for _, managed := range s.sessions {
		all = append(all, managed)
	}
	s.sessions = make(map[uuid.UUID]*ManagedSession)
	s.mu.Unlock()

	for _, managed := range all {
		managed.Session.Close()
		_ = managed.Source.Close()
	}
}
