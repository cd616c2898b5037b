package guard

import (
	"errors"
	"log/slog"
	"sync"
)

// ActivityReporter tells the guard whether an exam session is still in
// progress. The guard only observes; it never mutates session state.
type ActivityReporter interface {
	Active() bool
}

// Decision is the guard's answer to a leave request.
type Decision struct {
	// Allowed means the navigation may proceed immediately; the guard is
	// detached because no exam is in progress.
	Allowed bool

	// Message describes the consequences of leaving and must be shown in
	// a blocking confirmation when Allowed is false.
	Message string
}

// ErrNoPendingLeave is returned when Confirm or Decline is called without
// an intercepted leave awaiting a decision.
var ErrNoPendingLeave = errors.New("no leave request is pending")

// DefaultLeaveMessage spells out what confirming an exit costs.
const DefaultLeaveMessage = "Leaving now will end your exam session: monitoring stops, " +
	"unsaved progress is lost, and this attempt may be consumed. Are you sure you want to leave?"

// Guard intercepts back-navigation and tab-close while an exam session is
// in progress. An intercepted leave reasserts the current location and
// demands explicit confirmation; confirming fires the exit callback
// exactly once, declining leaves the exam fully intact.
type Guard struct {
	session  ActivityReporter
	fallback string
	message  string
	onExit   func(destination string)
	logger   *slog.Logger

	mu        sync.Mutex
	pending   bool
	exitFired bool
}

// Config wires a Guard. Fallback is the destination reported to onExit
// when the user confirms leaving.
type Config struct {
	Session  ActivityReporter
	Fallback string
	OnExit   func(destination string)
	Logger   *slog.Logger
	Message  string
}

func New(cfg Config) *Guard {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	g := &Guard{
		session:  cfg.Session,
		fallback: cfg.Fallback,
		onExit:   cfg.OnExit,
		logger:   cfg.Logger,
	}
	if cfg.Message != "" {
		g.message = cfg.Message
	} else {
		g.message = DefaultLeaveMessage
	}
	return g
}

// RequestLeave is called when the user tries to navigate away or close
// the tab. While the session is active the leave is blocked pending
// confirmation; otherwise the guard is detached and the leave passes
// through.
func (g *Guard) RequestLeave() Decision {
	if !g.session.Active() {
		return Decision{Allowed: true}
	}

	g.mu.Lock()
	g.pending = true
	g.mu.Unlock()

	g.logger.Info("Navigation intercepted during active exam")
	return Decision{Allowed: false, Message: g.message}
}

// Confirm accepts the pending leave. The exit callback fires exactly once
// across the guard's lifetime, no matter how many times leaving is
// confirmed.
func (g *Guard) Confirm() (string, error) {
	g.mu.Lock()
	if !g.pending {
		g.mu.Unlock()
		return "", ErrNoPendingLeave
	}
	g.pending = false
	fire := !g.exitFired
	g.exitFired = true
	g.mu.Unlock()

	if fire {
		g.logger.Info("Exam exit confirmed", "destination", g.fallback)
		if g.onExit != nil {
			g.onExit(g.fallback)
		}
	}
	return g.fallback, nil
}

// Decline rejects the pending leave; the exam continues with no side
// effects.
func (g *Guard) Decline() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.pending {
		return ErrNoPendingLeave
	}
	g.pending = false
	g.logger.Info("Exam exit declined")
	return nil
}

// Pending reports whether a leave awaits a decision.
func (g *Guard) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}
