package resilience

import (
	"context"
	"sync"
	"time"
)

type constError string

func (e constError) Error() string { return string(e) }

// ErrOpen is returned by Breaker.Do while the breaker rejects calls.
const ErrOpen = constError("resilience: circuit open")

// BreakerState is the state of a Breaker.
type BreakerState int

// Breaker states.
const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker stops calling a failing dependency after Threshold consecutive
// failures and lets a single probe through once Cooldown has elapsed.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration

	// OnChange, if set, is called with the lock held on every transition.
	OnChange func(from, to BreakerState)

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// NewBreaker returns a closed breaker. Non-positive arguments fall back to
// 5 failures and a 30 second cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{Threshold: threshold, Cooldown: cooldown, now: time.Now}
}

// Do runs fn unless the breaker is open. The error from fn is returned
// unchanged and recorded against the breaker.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return ErrOpen
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// State reports the current state, treating an expired cooldown as half-open.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.clock().Sub(b.openedAt) >= b.Cooldown {
		return HalfOpen
	}
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.clock().Sub(b.openedAt) < b.Cooldown {
			return false
		}
		b.set(HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil {
		b.failures = 0
		if b.state != Closed {
			b.set(Closed)
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.Threshold {
		b.openedAt = b.clock()
		if b.state != Open {
			b.set(Open)
		}
	}
}

func (b *Breaker) clock() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}

func (b *Breaker) set(to BreakerState) {
	from := b.state
	b.state = to
	if b.OnChange != nil {
		b.OnChange(from, to)
	}
}
