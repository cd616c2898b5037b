package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultWarningThreshold is the remaining-seconds mark at which the
	// low-time warning flips on.
	DefaultWarningThreshold = 300
)

// PersistedState is the durable (remaining, snapshot) record written after
// each tick so a reconnecting session resumes at the correct point.
type PersistedState struct {
	RemainingSeconds int       `json:"remaining_seconds"`
	Snapshot         time.Time `json:"snapshot"`
}

// Store persists timer state between sessions. Load returns (nil, nil)
// when no state exists. Store failures are non-fatal to the timer.
type Store interface {
	Load(ctx context.Context, attemptID uint) (*PersistedState, error)
	Save(ctx context.Context, attemptID uint, state PersistedState) error
	Clear(ctx context.Context, attemptID uint) error
}

// Config configures a Countdown.
type Config struct {
	AttemptID       uint
	DurationMinutes int

	// WarningThreshold in seconds; DefaultWarningThreshold when zero.
	WarningThreshold int

	// TickInterval defaults to one second. Tests shorten it; each tick
	// still represents one logical second of exam time.
	TickInterval time.Duration

	Store  Store
	Logger *slog.Logger
	Now    func() time.Time

	OnTick   func(remaining int, warning bool)
	OnExpire func()
}

// Countdown is the exam clock. Remaining seconds decrease by one per tick
// while active and never increase. The expiration callback fires exactly
// once when remaining reaches zero, after which the countdown is spent and
// cannot be restarted.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	warning   bool
	active    bool
	expired   bool
	stopCh    chan struct{}

	attemptID    uint
	nominal      int
	warnAt       int
	interval     time.Duration
	store        Store
	storeBroken  bool
	logger       *slog.Logger
	now          func() time.Time
	onTick       func(remaining int, warning bool)
	onExpire     func()
	expireFired  bool
}

// RecoverRemaining computes the effective remaining seconds from a
// persisted record. Elapsed wall-clock time since the snapshot is
// subtracted and the result floored at zero. A persisted value above the
// nominal duration is stale or corrupt and yields the nominal duration.
func RecoverRemaining(persisted PersistedState, now time.Time, nominalSeconds int) int {
	if persisted.RemainingSeconds > nominalSeconds {
		return nominalSeconds
	}
	elapsed := int(now.Sub(persisted.Snapshot) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := persisted.RemainingSeconds - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// NewCountdown builds a countdown, recovering persisted state when
// present. Load failures degrade the timer to in-memory operation.
func NewCountdown(ctx context.Context, cfg Config) *Countdown {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = DefaultWarningThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Countdown{
		attemptID: cfg.AttemptID,
		nominal:   cfg.DurationMinutes * 60,
		warnAt:    cfg.WarningThreshold,
		interval:  cfg.TickInterval,
		store:     cfg.Store,
		logger:    cfg.Logger,
		now:       cfg.Now,
		onTick:    cfg.OnTick,
		onExpire:  cfg.OnExpire,
		stopCh:    make(chan struct{}),
	}

	c.remaining = c.nominal
	if c.store != nil {
		persisted, err := c.store.Load(ctx, c.attemptID)
		switch {
		case err != nil:
			c.storeBroken = true
			c.logger.Warn("Timer state load failed, running without durability",
				"attempt_id", c.attemptID,
				"error", err)
		case persisted != nil:
			c.remaining = RecoverRemaining(*persisted, c.now(), c.nominal)
			c.logger.Info("Recovered timer state",
				"attempt_id", c.attemptID,
				"remaining_seconds", c.remaining)
		}
	}
	if c.remaining <= c.warnAt {
		c.warning = true
	}
	return c
}

// Start begins ticking. Starting a spent or already running countdown has
// no effect.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.active || c.expired {
		c.mu.Unlock()
		return
	}
	c.active = true
	immediate := c.remaining <= 0
	c.mu.Unlock()

	if immediate {
		// Recovered state was already exhausted.
		c.expire()
		return
	}
	go c.run()
}

func (c *Countdown) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if done := c.tick(); done {
				return
			}
		}
	}
}

// tick applies one logical second. Persistence happens after the state
// update, never before. Returns true once the countdown has expired.
func (c *Countdown) tick() bool {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return true
	}
	c.remaining--
	if c.remaining < 0 {
		c.remaining = 0
	}
	if c.remaining <= c.warnAt {
		c.warning = true
	}
	remaining := c.remaining
	warning := c.warning
	expired := c.remaining == 0
	if expired {
		c.active = false
	}
	c.mu.Unlock()

	if !expired {
		c.persist(remaining)
	}
	if c.onTick != nil {
		c.onTick(remaining, warning)
	}
	if expired {
		c.expire()
		return true
	}
	return false
}

func (c *Countdown) persist(remaining int) {
	if c.store == nil || c.storeBroken {
		return
	}
	state := PersistedState{RemainingSeconds: remaining, Snapshot: c.now()}
	if err := c.store.Save(context.Background(), c.attemptID, state); err != nil {
		c.storeBroken = true
		c.logger.Warn("Timer state save failed, continuing in memory only",
			"attempt_id", c.attemptID,
			"error", err)
	}
}

func (c *Countdown) expire() {
	c.mu.Lock()
	if c.expireFired {
		c.mu.Unlock()
		return
	}
	c.expireFired = true
	c.expired = true
	c.active = false
	c.mu.Unlock()

	c.ClearPersisted(context.Background())
	if c.onExpire != nil {
		c.onExpire()
	}
}

// Stop halts ticking without firing expiration. Idempotent. Persisted
// state is left in place; callers that end the attempt normally should
// also ClearPersisted.
func (c *Countdown) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	close(c.stopCh)
	c.mu.Unlock()
}

// ClearPersisted removes the durable record. Failures are logged only.
func (c *Countdown) ClearPersisted(ctx context.Context) {
	if c.store == nil || c.storeBroken {
		return
	}
	if err := c.store.Clear(ctx, c.attemptID); err != nil {
		c.logger.Warn("Timer state clear failed",
			"attempt_id", c.attemptID,
			"error", err)
	}
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Warning reports the low-time flag. It flips on once and stays on.
func (c *Countdown) Warning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warning
}

func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}
