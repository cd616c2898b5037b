package detect

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSourceClosed is returned by Next once the stream has been closed.
var ErrSourceClosed = errors.New("frame source closed")

// StreamSource is a FrameSource fed by an external producer, typically the
// websocket ingest handler relaying a browser's camera capture. Producers
// call Push; the perception loop consumes via Next.
//
// A bounded wait replaces indefinite polling for a late camera: if no
// frame arrives within waitTimeout, Next reports ErrNoCamera so the
// caller can surface a device error instead of hanging.
type StreamSource struct {
	frames      chan Frame
	waitTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func NewStreamSource(buffer int, waitTimeout time.Duration) *StreamSource {
	if buffer <= 0 {
		buffer = 1
	}
	return &StreamSource{
		frames:      make(chan Frame, buffer),
		waitTimeout: waitTimeout,
		closed:      make(chan struct{}),
	}
}

// Push offers a frame to the source. When the buffer is full the frame is
// dropped and Push returns false; detection works on the freshest frames
// and never queues stale ones behind a slow consumer.
func (s *StreamSource) Push(f Frame) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.frames <- f:
		return true
	default:
		return false
	}
}

func (s *StreamSource) Next(ctx context.Context) (Frame, error) {
	var wait <-chan time.Time
	if s.waitTimeout > 0 {
		t := time.NewTimer(s.waitTimeout)
		defer t.Stop()
		wait = t.C
	}

	select {
	case f := <-s.frames:
		return f, nil
	case <-s.closed:
		return Frame{}, ErrSourceClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-wait:
		return Frame{}, ErrNoCamera
	}
}

func (s *StreamSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
