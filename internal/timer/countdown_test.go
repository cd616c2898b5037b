package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverRemaining(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	nominal := 3600

	tests := []struct {
		name      string
		persisted PersistedState
		want      int
	}{
		{
			name:      "no time elapsed",
			persisted: PersistedState{RemainingSeconds: 1800, Snapshot: now},
			want:      1800,
		},
		{
			name:      "elapsed time subtracted",
			persisted: PersistedState{RemainingSeconds: 1800, Snapshot: now.Add(-5 * time.Minute)},
			want:      1500,
		},
		{
			name:      "floored at zero when exhausted",
			persisted: PersistedState{RemainingSeconds: 60, Snapshot: now.Add(-10 * time.Minute)},
			want:      0,
		},
		{
			name:      "stale value above nominal resets to nominal",
			persisted: PersistedState{RemainingSeconds: 7200, Snapshot: now},
			want:      3600,
		},
		{
			name:      "snapshot in the future counts as zero elapsed",
			persisted: PersistedState{RemainingSeconds: 1800, Snapshot: now.Add(time.Minute)},
			want:      1800,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecoverRemaining(tt.persisted, now, nominal)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountdown_TicksDownMonotonically(t *testing.T) {
	ticks := make(chan int, 128)
	c := NewCountdown(context.Background(), Config{
		AttemptID:        1,
		DurationMinutes:  1,
		WarningThreshold: 55,
		TickInterval:     2 * time.Millisecond,
		Store:            NewMemoryStore(),
		OnTick: func(remaining int, _ bool) {
			ticks <- remaining
		},
	})
	c.Start()
	defer c.Stop()

	prev := 61
	for i := 0; i < 10; i++ {
		select {
		case remaining := <-ticks:
			assert.Less(t, remaining, prev, "remaining must strictly decrease")
			prev = remaining
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for tick")
		}
	}
}

func TestCountdown_WarningFlipsOnAndStaysOn(t *testing.T) {
	type tick struct {
		remaining int
		warning   bool
	}
	ticks := make(chan tick, 128)

	c := NewCountdown(context.Background(), Config{
		AttemptID:        2,
		DurationMinutes:  1,
		WarningThreshold: 57,
		TickInterval:     2 * time.Millisecond,
		OnTick: func(remaining int, warning bool) {
			ticks <- tick{remaining, warning}
		},
	})
	c.Start()
	defer c.Stop()

	warned := false
	for i := 0; i < 10; i++ {
		select {
		case got := <-ticks:
			if got.remaining > 57 {
				assert.False(t, got.warning, "warning before threshold at %d", got.remaining)
			} else {
				assert.True(t, got.warning, "no warning at %d", got.remaining)
				warned = true
			}
			if warned {
				assert.True(t, got.warning, "warning must never clear")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for tick")
		}
	}
	assert.True(t, warned)
}

func TestCountdown_ExpiresExactlyOnceAndClearsState(t *testing.T) {
	store := NewMemoryStore()
	// Seed state so the timer runs only a few ticks.
	require.NoError(t, store.Save(context.Background(), 3, PersistedState{
		RemainingSeconds: 3,
		Snapshot:         time.Now(),
	}))

	var mu sync.Mutex
	expirations := 0
	done := make(chan struct{})

	c := NewCountdown(context.Background(), Config{
		AttemptID:       3,
		DurationMinutes: 1,
		TickInterval:    2 * time.Millisecond,
		Store:           store,
		OnExpire: func() {
			mu.Lock()
			expirations++
			mu.Unlock()
			close(done)
		},
	})
	c.Start()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown never expired")
	}
	// Starting again must not revive a spent countdown.
	c.Start()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, expirations)
	mu.Unlock()
	assert.True(t, c.Expired())
	assert.Equal(t, 0, c.Remaining())

	persisted, err := store.Load(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, persisted, "expired countdown must clear its durable state")
}

func TestCountdown_RecoversPersistedState(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), 4, PersistedState{
		RemainingSeconds: 30,
		Snapshot:         time.Now().Add(-10 * time.Second),
	}))

	c := NewCountdown(context.Background(), Config{
		AttemptID:       4,
		DurationMinutes: 1,
		Store:           store,
	})
	assert.InDelta(t, 20, c.Remaining(), 1)
}

func TestCountdown_RecoveredLowStateStartsWarned(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), 5, PersistedState{
		RemainingSeconds: 120,
		Snapshot:         time.Now(),
	}))

	c := NewCountdown(context.Background(), Config{
		AttemptID:        5,
		DurationMinutes:  60,
		WarningThreshold: 300,
		Store:            store,
	})
	assert.True(t, c.Warning())
}

func TestCountdown_ExhaustedStateExpiresImmediately(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), 6, PersistedState{
		RemainingSeconds: 2,
		Snapshot:         time.Now().Add(-time.Minute),
	}))

	done := make(chan struct{})
	c := NewCountdown(context.Background(), Config{
		AttemptID:       6,
		DurationMinutes: 1,
		Store:           store,
		OnExpire:        func() { close(done) },
	})
	c.Start()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("exhausted countdown did not expire on start")
	}
	assert.Equal(t, 0, c.Remaining())
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Load(context.Context, uint) (*PersistedState, error) {
	return nil, errors.New("store down")
}
func (brokenStore) Save(context.Context, uint, PersistedState) error {
	return errors.New("store down")
}
func (brokenStore) Clear(context.Context, uint) error {
	return errors.New("store down")
}

func TestCountdown_StoreFailureDegradesToMemory(t *testing.T) {
	ticks := make(chan int, 128)
	c := NewCountdown(context.Background(), Config{
		AttemptID:       7,
		DurationMinutes: 1,
		TickInterval:    2 * time.Millisecond,
		Store:           brokenStore{},
		OnTick:          func(remaining int, _ bool) { ticks <- remaining },
	})
	c.Start()
	defer c.Stop()

	// The timer must keep ticking despite the dead store.
	for i := 0; i < 5; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("timer stalled after store failure")
		}
	}
	assert.Less(t, c.Remaining(), 60)
}

func TestCountdown_StopHaltsWithoutExpiring(t *testing.T) {
	expired := false
	c := NewCountdown(context.Background(), Config{
		AttemptID:       8,
		DurationMinutes: 1,
		TickInterval:    2 * time.Millisecond,
		OnExpire:        func() { expired = true },
	})
	c.Start()
	time.Sleep(10 * time.Millisecond)
	c.Stop()
	c.Stop() // idempotent

	remaining := c.Remaining()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, remaining, c.Remaining(), "stopped timer must not tick")
	assert.False(t, expired)
	assert.False(t, c.Expired())
}
