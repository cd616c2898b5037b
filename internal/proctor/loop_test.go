package proctor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skillcert/proctor-engine/internal/detect"
	"github.com/skillcert/proctor-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcSource adapts a function to detect.FrameSource.
type funcSource struct {
	nextFn func(ctx context.Context) (detect.Frame, error)
}

func (s *funcSource) Next(ctx context.Context) (detect.Frame, error) { return s.nextFn(ctx) }
func (s *funcSource) Close() error                                   { return nil }

func pacedSource(interval time.Duration) *funcSource {
	return &funcSource{nextFn: func(ctx context.Context) (detect.Frame, error) {
		select {
		case <-ctx.Done():
			return detect.Frame{}, ctx.Err()
		case <-time.After(interval):
			return detect.Frame{CapturedAt: time.Now()}, nil
		}
	}}
}

// stubFaces returns a fixed number of faces and tracks detection
// concurrency.
type stubFaces struct {
	count       int32
	delay       time.Duration
	inFlight    int32
	maxInFlight int32
}

func (d *stubFaces) SetCount(n int32) { atomic.StoreInt32(&d.count, n) }

func (d *stubFaces) MaxInFlight() int32 { return atomic.LoadInt32(&d.maxInFlight) }

func (d *stubFaces) DetectFaces(ctx context.Context, _ detect.Frame) ([]models.FaceDetection, error) {
	cur := atomic.AddInt32(&d.inFlight, 1)
	defer atomic.AddInt32(&d.inFlight, -1)
	for {
		max := atomic.LoadInt32(&d.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&d.maxInFlight, max, cur) {
			break
		}
	}
	if d.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.delay):
		}
	}
	return make([]models.FaceDetection, atomic.LoadInt32(&d.count)), nil
}

type stubObjects struct {
	objects []models.ObjectDetection
}

func (d *stubObjects) DetectObjects(context.Context, detect.Frame) ([]models.ObjectDetection, error) {
	return d.objects, nil
}

func newTestLoop(clock *fakeClock, recorder *Recorder, objects []models.ObjectDetection) *Loop {
	return NewLoop(LoopConfig{
		Frames:   pacedSource(time.Millisecond),
		Faces:    &stubFaces{},
		Objects:  &stubObjects{objects: objects},
		Recorder: recorder,
		Now:      clock.Now,
	})
}

func violationKinds(r *Recorder) []models.ViolationKind {
	var kinds []models.ViolationKind
	for _, v := range r.Violations() {
		kinds = append(kinds, v.Kind)
	}
	return kinds
}

func TestLoop_NoFaceRecordedOnlyAfterFullWindow(t *testing.T) {
	clock := newFakeClock()
	r := NewRecorder(RecorderConfig{DebounceWindow: time.Millisecond, Now: clock.Now})
	defer r.Close()
	l := newTestLoop(clock, r, nil)

	// Empty frames short of the window: armed but silent.
	l.handleFaces(0)
	clock.Advance(4999 * time.Millisecond)
	l.handleFaces(0)
	assert.Equal(t, 0, r.Count())

	// Window complete: one violation.
	clock.Advance(1 * time.Millisecond)
	l.handleFaces(0)
	require.Equal(t, 1, r.Count())
	assert.Equal(t, models.ViolationNoFace, r.Violations()[0].Kind)

	// Window restarts after recording; continued absence stays silent
	// until another full window elapses.
	clock.Advance(4 * time.Second)
	l.handleFaces(0)
	assert.Equal(t, 1, r.Count())
	clock.Advance(time.Second)
	l.handleFaces(0)
	assert.Equal(t, 2, r.Count())
}

func TestLoop_FaceReappearanceResetsWindow(t *testing.T) {
	clock := newFakeClock()
	r := NewRecorder(RecorderConfig{DebounceWindow: time.Millisecond, Now: clock.Now})
	defer r.Close()
	l := newTestLoop(clock, r, nil)

	l.handleFaces(0)
	clock.Advance(4 * time.Second)
	l.handleFaces(1) // face back; absence window discarded
	clock.Advance(2 * time.Second)
	l.handleFaces(0) // re-armed here
	clock.Advance(4 * time.Second)
	l.handleFaces(0)
	assert.Equal(t, 0, r.Count(), "interrupted absence must not accumulate")

	clock.Advance(time.Second)
	l.handleFaces(0)
	assert.Equal(t, 1, r.Count())
}

func TestLoop_MultipleFacesFlaggedImmediately(t *testing.T) {
	clock := newFakeClock()
	r := NewRecorder(RecorderConfig{DebounceWindow: time.Millisecond, Now: clock.Now})
	defer r.Close()
	l := newTestLoop(clock, r, nil)

	l.handleFaces(3)
	require.Equal(t, 1, r.Count(), "multiple faces have no grace period")
	assert.Equal(t, models.ViolationMultipleFaces, r.Violations()[0].Kind)
}

func TestLoop_ObjectPassFlagsConfidentPhonesOnly(t *testing.T) {
	clock := newFakeClock()
	r := NewRecorder(RecorderConfig{DebounceWindow: time.Millisecond, Now: clock.Now})
	defer r.Close()
	l := newTestLoop(clock, r, []models.ObjectDetection{
		{Label: "laptop", Confidence: 0.99},
		{Label: "cell phone", Confidence: 0.55},
		{Label: "cell phone", Confidence: 0.60}, // not strictly above threshold
		{Label: "Cell Phone", Confidence: 0.87}, // label match is case-insensitive
	})

	l.objectPass(context.Background())
	assert.Equal(t, []models.ViolationKind{models.ViolationCellPhone}, violationKinds(r))
}

func TestLoop_FaceDetectionIsSingleFlight(t *testing.T) {
	clock := newFakeClock()
	r := NewRecorder(RecorderConfig{Now: clock.Now})
	defer r.Close()

	faces := &stubFaces{delay: 3 * time.Millisecond}
	l := NewLoop(LoopConfig{
		Frames:   pacedSource(time.Millisecond),
		Faces:    faces,
		Objects:  &stubObjects{},
		Recorder: r,
		Now:      clock.Now,
	})

	l.Start()
	time.Sleep(60 * time.Millisecond)
	l.Stop()

	assert.Equal(t, int32(1), faces.MaxInFlight(),
		"face inference calls must never overlap")
}

func TestLoop_DeviceErrorReportedAndLoopStops(t *testing.T) {
	reported := make(chan string, 1)
	r := NewRecorder(RecorderConfig{})
	defer r.Close()

	l := NewLoop(LoopConfig{
		Frames: &funcSource{nextFn: func(context.Context) (detect.Frame, error) {
			return detect.Frame{}, detect.ErrPermissionDenied
		}},
		Faces:    &stubFaces{},
		Objects:  &stubObjects{},
		Recorder: r,
		OnDeviceError: func(_ error, userMessage string) {
			select {
			case reported <- userMessage:
			default:
			}
		},
	})

	l.Start()
	defer l.Stop()

	select {
	case msg := <-reported:
		assert.Equal(t, detect.UserMessage(detect.ErrPermissionDenied), msg)
	case <-time.After(time.Second):
		t.Fatal("device error never reported")
	}
	assert.Equal(t, 0, r.Count(), "device failure is not a violation")
}

func TestLoop_StopIsIdempotent(t *testing.T) {
	r := NewRecorder(RecorderConfig{})
	defer r.Close()
	l := newTestLoop(newFakeClock(), r, nil)

	l.Start()
	l.Stop()
	l.Stop()
	l.Cancel() // after Stop: no-op
}
