package proctor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skillcert/proctor-engine/internal/detect"
	"github.com/skillcert/proctor-engine/internal/models"
)

const (
	// DefaultObjectInterval is the fixed period of the object-detection
	// pass.
	DefaultObjectInterval = time.Second

	// DefaultNoFaceAfter is how long the camera view may be continuously
	// empty before a no_face violation is recorded.
	DefaultNoFaceAfter = 5 * time.Second

	// DefaultPhoneConfidence is the minimum confidence for a prohibited
	// item detection to count.
	DefaultPhoneConfidence = 0.6
)

// LoopConfig configures a perception Loop.
type LoopConfig struct {
	Frames   detect.FrameSource
	Faces    detect.FaceDetector
	Objects  detect.ObjectDetector
	Recorder *Recorder

	ObjectInterval  time.Duration
	NoFaceAfter     time.Duration
	PhoneConfidence float64

	Logger *slog.Logger
	Now    func() time.Time

	// OnDeviceError reports a classified camera failure. The loop stops
	// after reporting; whether the exam continues without proctoring is
	// the integrator's policy.
	OnDeviceError func(err error, userMessage string)
}

// Loop drives continuous face-presence detection and periodic object
// detection against the session's camera feed, translating detections
// into recorder violations.
//
// Face passes run back-to-back on a single goroutine, so at most one
// inference call is ever in flight and a pass due while another runs is
// skipped by construction. Object passes run independently on a fixed
// period and never wait on face passes.
type Loop struct {
	frames   detect.FrameSource
	faces    detect.FaceDetector
	objects  detect.ObjectDetector
	recorder *Recorder

	objectInterval  time.Duration
	noFaceAfter     time.Duration
	phoneConfidence float64
	logger          *slog.Logger
	now             func() time.Time
	onDeviceError   func(error, string)

	mu          sync.Mutex
	running     bool
	stopped     bool
	noFaceArmed bool
	noFaceSince time.Time
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.ObjectInterval <= 0 {
		cfg.ObjectInterval = DefaultObjectInterval
	}
	if cfg.NoFaceAfter <= 0 {
		cfg.NoFaceAfter = DefaultNoFaceAfter
	}
	if cfg.PhoneConfidence <= 0 {
		cfg.PhoneConfidence = DefaultPhoneConfidence
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		frames:          cfg.Frames,
		faces:           cfg.Faces,
		objects:         cfg.Objects,
		recorder:        cfg.Recorder,
		objectInterval:  cfg.ObjectInterval,
		noFaceAfter:     cfg.NoFaceAfter,
		phoneConfidence: cfg.PhoneConfidence,
		logger:          cfg.Logger,
		now:             cfg.Now,
		onDeviceError:   cfg.OnDeviceError,
	}
}

// Start launches the face and object goroutines. Starting a running or
// stopped loop has no effect.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.running = true
	l.mu.Unlock()

	l.wg.Add(2)
	go l.faceLoop(ctx)
	go l.objectLoop(ctx)

	l.logger.Info("Perception loop started")
}

// Cancel stops scheduling new detection passes without waiting for the
// in-flight one. Safe to call from within detection callbacks; Stop is
// not, since it waits for the calling goroutine.
func (l *Loop) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop cancels all scheduled detection work, waits for in-flight passes,
// and releases the frame source. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	wasRunning := l.running
	l.running = false
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wasRunning {
		l.wg.Wait()
	}
	if err := l.frames.Close(); err != nil {
		l.logger.Warn("Failed to close frame source", "error", err)
	}
	l.logger.Info("Perception loop stopped")
}

// faceLoop runs face passes continuously: as soon as one pass completes
// the next frame is requested.
func (l *Loop) faceLoop(ctx context.Context) {
	defer l.wg.Done()

	for ctx.Err() == nil {
		frame, err := l.frames.Next(ctx)
		if err != nil {
			if l.handleFrameError(ctx, err) {
				return
			}
			continue
		}

		faces, err := l.faces.DetectFaces(ctx, frame)
		if err != nil {
			// Inference failure counts as zero detections this frame.
			l.logger.Debug("Face inference failed", "error", err)
			faces = nil
		}
		l.handleFaces(len(faces))
	}
}

// objectLoop runs one object pass per interval regardless of face-pass
// progress. A pass that cannot obtain a frame within its slot is skipped.
func (l *Loop) objectLoop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.objectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.objectPass(ctx)
		}
	}
}

func (l *Loop) objectPass(ctx context.Context) {
	frameCtx, cancel := context.WithTimeout(ctx, l.objectInterval)
	defer cancel()

	frame, err := l.frames.Next(frameCtx)
	if err != nil {
		return
	}

	objects, err := l.objects.DetectObjects(ctx, frame)
	if err != nil {
		l.logger.Debug("Object inference failed", "error", err)
		return
	}

	for _, obj := range objects {
		if isProhibited(obj.Label) && obj.Confidence > l.phoneConfidence {
			l.recorder.Record(models.ViolationCellPhone,
				fmt.Sprintf("Prohibited item detected: %s (%.0f%% confidence)",
					obj.Label, obj.Confidence*100))
		}
	}
}

// handleFaces applies the face-presence policy for one frame.
func (l *Loop) handleFaces(count int) {
	now := l.now()

	l.mu.Lock()
	switch {
	case count == 0:
		if !l.noFaceArmed {
			l.noFaceArmed = true
			l.noFaceSince = now
			l.mu.Unlock()
			return
		}
		if now.Sub(l.noFaceSince) < l.noFaceAfter {
			l.mu.Unlock()
			return
		}
		// Restart the window so sustained absence re-triggers.
		l.noFaceSince = now
		l.mu.Unlock()
		l.recorder.Record(models.ViolationNoFace,
			"No face detected in camera view")

	case count == 1:
		l.noFaceArmed = false
		l.mu.Unlock()

	default:
		l.noFaceArmed = false
		l.mu.Unlock()
		// Multiple faces are flagged on sight, with no grace period.
		l.recorder.Record(models.ViolationMultipleFaces,
			fmt.Sprintf("%d faces detected in camera view", count))
	}
}

// handleFrameError classifies a frame-source failure. Returns true when
// the loop should stop.
func (l *Loop) handleFrameError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, detect.ErrSourceClosed) {
		return true
	}
	if detect.IsDeviceError(err) {
		msg := detect.UserMessage(err)
		l.logger.Error("Camera device error", "error", err, "user_message", msg)
		if l.onDeviceError != nil {
			l.onDeviceError(err, msg)
		}
		return true
	}
	l.logger.Debug("Frame fetch failed", "error", err)
	return false
}

func isProhibited(label string) bool {
	return strings.EqualFold(strings.TrimSpace(label), "cell phone")
}
