package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReporter struct {
	active bool
}

func (s *stubReporter) Active() bool { return s.active }

func TestGuard_LeavePassesThroughWhenInactive(t *testing.T) {
	g := New(Config{Session: &stubReporter{active: false}, Fallback: "/dashboard"})

	decision := g.RequestLeave()
	assert.True(t, decision.Allowed)
	assert.False(t, g.Pending())
}

func TestGuard_LeaveBlockedDuringActiveExam(t *testing.T) {
	g := New(Config{Session: &stubReporter{active: true}, Fallback: "/dashboard"})

	decision := g.RequestLeave()
	assert.False(t, decision.Allowed)
	assert.Equal(t, DefaultLeaveMessage, decision.Message)
	assert.True(t, g.Pending())
}

func TestGuard_ConfirmFiresExitExactlyOnce(t *testing.T) {
	exits := 0
	var lastDestination string
	g := New(Config{
		Session:  &stubReporter{active: true},
		Fallback: "/dashboard",
		OnExit: func(destination string) {
			exits++
			lastDestination = destination
		},
	})

	g.RequestLeave()
	destination, err := g.Confirm()
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", destination)
	assert.Equal(t, 1, exits)
	assert.Equal(t, "/dashboard", lastDestination)

	// A second intercepted leave may still be confirmed, but the exit
	// callback never fires again.
	g.RequestLeave()
	destination, err = g.Confirm()
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", destination)
	assert.Equal(t, 1, exits)
}

func TestGuard_ConfirmWithoutPendingLeave(t *testing.T) {
	g := New(Config{Session: &stubReporter{active: true}, Fallback: "/dashboard"})

	_, err := g.Confirm()
	assert.ErrorIs(t, err, ErrNoPendingLeave)
}

func TestGuard_DeclineKeepsExamIntact(t *testing.T) {
	exits := 0
	g := New(Config{
		Session:  &stubReporter{active: true},
		Fallback: "/dashboard",
		OnExit:   func(string) { exits++ },
	})

	g.RequestLeave()
	require.NoError(t, g.Decline())
	assert.False(t, g.Pending())
	assert.Equal(t, 0, exits)

	// Declining again has nothing to decline.
	assert.ErrorIs(t, g.Decline(), ErrNoPendingLeave)

	// The guard keeps intercepting after a decline.
	decision := g.RequestLeave()
	assert.False(t, decision.Allowed)
}

func TestGuard_CustomMessage(t *testing.T) {
	g := New(Config{
		Session: &stubReporter{active: true},
		Message: "custom warning",
	})

	decision := g.RequestLeave()
	assert.Equal(t, "custom warning", decision.Message)
}
