package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamSource_PushThenNext(t *testing.T) {
	s := NewStreamSource(2, time.Second)
	defer s.Close()

	captured := time.Now()
	require.True(t, s.Push(Frame{Width: 640, Height: 480, CapturedAt: captured}))

	frame, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 640, frame.Width)
	assert.Equal(t, captured, frame.CapturedAt)
}

func TestStreamSource_DropsFramesWhenFull(t *testing.T) {
	s := NewStreamSource(1, time.Second)
	defer s.Close()

	assert.True(t, s.Push(Frame{Width: 1}))
	assert.False(t, s.Push(Frame{Width: 2}), "full buffer drops, never blocks")

	frame, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, frame.Width)
}

func TestStreamSource_NextTimesOutAsMissingCamera(t *testing.T) {
	s := NewStreamSource(1, 10*time.Millisecond)
	defer s.Close()

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrNoCamera)
}

func TestStreamSource_NextHonorsContext(t *testing.T) {
	s := NewStreamSource(1, time.Second)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamSource_CloseUnblocksAndRejectsPushes(t *testing.T) {
	s := NewStreamSource(1, time.Minute)

	done := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background())
		done <- err
	}()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSourceClosed)
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock on close")
	}
	assert.False(t, s.Push(Frame{}))
}

func TestUserMessage_DistinctPerDeviceFailure(t *testing.T) {
	deviceErrs := []error{
		ErrPermissionDenied,
		ErrNoCamera,
		ErrCameraBusy,
		ErrInsecureContext,
		ErrUnsupported,
	}

	seen := make(map[string]error)
	for _, err := range deviceErrs {
		assert.True(t, IsDeviceError(err), "%v must classify as a device error", err)
		msg := UserMessage(err)
		require.NotEmpty(t, msg)
		if prev, dup := seen[msg]; dup {
			t.Errorf("%v and %v share the message %q", prev, err, msg)
		}
		seen[msg] = err
	}

	assert.False(t, IsDeviceError(errors.New("network blip")))
}
