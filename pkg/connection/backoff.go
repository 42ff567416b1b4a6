package connection

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Redial pacing defaults. Radios on USB serial often need several
// seconds to reboot or re-enumerate after a link drop, so the floor is
// a full second.
const (
	// InitialBackoff is the delay before the first redial.
	InitialBackoff = 1 * time.Second

	// MaxBackoff caps the delay between redials.
	MaxBackoff = 60 * time.Second

	// BackoffMultiplier is the per-attempt growth factor.
	BackoffMultiplier = 2.0

	// JitterFactor is the maximum upward jitter as a fraction of the
	// base delay.
	JitterFactor = 0.25
)

// Backoff paces reconnect attempts after a session drop. Each Next
// grows the delay geometrically up to the cap, with random upward
// jitter so a fleet of clients does not redial in lockstep. Call Reset
// after a successful handshake.
type Backoff struct {
	mu       sync.Mutex
	attempts int

	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
}

// NewBackoff returns a Backoff with the default pacing.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// BackoffConfig overrides the default pacing. Zero fields keep the
// defaults; a negative Jitter disables jitter.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// NewBackoffWithConfig returns a Backoff with custom pacing.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	if cfg.Jitter == 0 {
		cfg.Jitter = JitterFactor
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &Backoff{
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
	}
}

// Next returns the delay to wait before the upcoming attempt and
// advances the attempt counter.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.jittered(b.base())
	b.attempts++
	return d
}

// Peek returns what Next would return without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jittered(b.base())
}

// Reset clears the attempt counter. Call after a successful connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

// Attempts returns the number of Next calls since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the base delay for the upcoming attempt, without
// jitter.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base()
}

// base derives the delay for the current attempt count. Caller holds
// b.mu.
func (b *Backoff) base() time.Duration {
	d := time.Duration(float64(b.initial) * math.Pow(b.multiplier, float64(b.attempts)))
	if d <= 0 || d > b.max {
		return b.max
	}
	return d
}

func (b *Backoff) jittered(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*b.jitter*float64(d))
}
