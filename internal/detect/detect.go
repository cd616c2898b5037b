package detect

import (
	"context"
	"time"

	"github.com/skillcert/proctor-engine/internal/models"
)

// Frame is one captured camera frame. The engine treats the image bytes as
// opaque; only the detectors interpret them.
type Frame struct {
	Image      []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// FrameSource yields camera frames for one exam session. The perception
// loop exclusively owns the source for the session's duration and must
// Close it on teardown so the underlying device is released.
type FrameSource interface {
	// Next blocks until a frame is available or ctx is done.
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// FaceDetector runs face-presence inference over a single frame and
// returns zero, one, or many bounding boxes.
type FaceDetector interface {
	DetectFaces(ctx context.Context, frame Frame) ([]models.FaceDetection, error)
}

// ObjectDetector runs general object inference over a single frame and
// returns labeled boxes with confidence scores.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, frame Frame) ([]models.ObjectDetection, error)
}
