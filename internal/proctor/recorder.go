package proctor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/skillcert/proctor-engine/internal/models"
)

const (
	// DefaultMaxViolations is the count at which the attempt is forcibly
	// terminated.
	DefaultMaxViolations = 10

	// DefaultDebounceWindow is the minimum time between two recordable
	// occurrences of the same violation kind.
	DefaultDebounceWindow = 2 * time.Second

	// DefaultWarningDuration is how long a transient warning is surfaced
	// before auto-clearing.
	DefaultWarningDuration = 3 * time.Second
)

// RecorderConfig configures a Recorder. Zero values take the defaults
// above.
type RecorderConfig struct {
	MaxViolations   int
	DebounceWindow  time.Duration
	WarningDuration time.Duration

	Logger *slog.Logger
	Now    func() time.Time

	// OnRecorded fires for every appended violation, before any
	// threshold handling. Used for persistence and event publishing.
	OnRecorded func(v models.Violation)

	// OnWarning fires for every Record call, debounced or not; the UI
	// shows it for WarningDuration unless replaced first.
	OnWarning func(v models.Violation)

	// OnWarningCleared fires when the transient warning times out.
	OnWarningCleared func()

	// OnExceeded fires exactly once, when the count reaches
	// MaxViolations, with the full log at that moment.
	OnExceeded func(violations []models.Violation)
}

// Recorder accumulates proctoring violations with per-kind debouncing and
// a hard termination threshold. The violation log is append-only; the
// count always equals the log length and never decreases.
type Recorder struct {
	mu            sync.Mutex
	violations    []models.Violation
	lastByKind    map[models.ViolationKind]time.Time
	exceededFired bool
	closed        bool
	clearTimer    *time.Timer

	maxViolations int
	debounce      time.Duration
	warnDuration  time.Duration
	logger        *slog.Logger
	now           func() time.Time

	onRecorded       func(models.Violation)
	onWarning        func(models.Violation)
	onWarningCleared func()
	onExceeded       func([]models.Violation)
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.MaxViolations <= 0 {
		cfg.MaxViolations = DefaultMaxViolations
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.WarningDuration <= 0 {
		cfg.WarningDuration = DefaultWarningDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Recorder{
		lastByKind:       make(map[models.ViolationKind]time.Time),
		maxViolations:    cfg.MaxViolations,
		debounce:         cfg.DebounceWindow,
		warnDuration:     cfg.WarningDuration,
		logger:           cfg.Logger,
		now:              cfg.Now,
		onRecorded:       cfg.OnRecorded,
		onWarning:        cfg.OnWarning,
		onWarningCleared: cfg.OnWarningCleared,
		onExceeded:       cfg.OnExceeded,
	}
}

// Record appends a violation unless the same kind was recorded within the
// debounce window. Suppressed calls still surface a transient warning.
// Returns true when the violation was appended.
func (r *Recorder) Record(kind models.ViolationKind, message string) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}

	now := r.now()
	violation := models.Violation{Kind: kind, Message: message, OccurredAt: now}

	if last, seen := r.lastByKind[kind]; seen && now.Sub(last) < r.debounce {
		// Debounced: a sustained condition must not flood the log.
		r.restartWarningClearLocked()
		r.mu.Unlock()

		r.logger.Debug("Violation debounced", "kind", kind)
		if r.onWarning != nil {
			r.onWarning(violation)
		}
		return false
	}

	r.lastByKind[kind] = now
	r.violations = append(r.violations, violation)
	count := len(r.violations)

	var exceededLog []models.Violation
	if count >= r.maxViolations && !r.exceededFired {
		r.exceededFired = true
		exceededLog = make([]models.Violation, count)
		copy(exceededLog, r.violations)
	}
	r.restartWarningClearLocked()
	r.mu.Unlock()

	r.logger.Info("Violation recorded",
		"kind", kind,
		"message", message,
		"count", count)

	if r.onRecorded != nil {
		r.onRecorded(violation)
	}
	if r.onWarning != nil {
		r.onWarning(violation)
	}
	if exceededLog != nil {
		r.logger.Warn("Violation threshold exceeded", "count", count)
		if r.onExceeded != nil {
			r.onExceeded(exceededLog)
		}
	}
	return true
}

// restartWarningClearLocked arms (or re-arms) the transient warning
// auto-clear. Caller holds r.mu.
func (r *Recorder) restartWarningClearLocked() {
	if r.clearTimer != nil {
		r.clearTimer.Stop()
	}
	r.clearTimer = time.AfterFunc(r.warnDuration, func() {
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()
		if !closed && r.onWarningCleared != nil {
			r.onWarningCleared()
		}
	})
}

// Count returns the number of recorded violations.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.violations)
}

// Violations returns a copy of the append-only log.
func (r *Recorder) Violations() []models.Violation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Violation, len(r.violations))
	copy(out, r.violations)
	return out
}

// Exceeded reports whether the termination threshold has been reached.
func (r *Recorder) Exceeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exceededFired
}

// Close stops the warning timer and ignores further Record calls. Called
// when proctoring is torn down for the attempt.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.clearTimer != nil {
		r.clearTimer.Stop()
		r.clearTimer = nil
	}
}
