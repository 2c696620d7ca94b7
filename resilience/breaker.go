package resilience

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-docaccess/core"
)

// State is the circuit position for one outbound channel.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TransitionEvent is emitted on every circuit transition.
type TransitionEvent struct {
	Channel string
	From    State
	To      State
	Cause   string
	At      time.Time
}

type TransitionListener func(TransitionEvent)

type BreakerConfig struct {
	FailureThreshold int
	FailureWindow    time.Duration
	CoolDown         time.Duration
	Now              func() time.Time
}

const (
	defaultFailureThreshold = 5
	defaultFailureWindow    = time.Minute
	defaultCoolDown         = 30 * time.Second
)

// Breaker is the shared circuit for one channel. All transitions happen
// under the mutex so concurrent failure reports cannot race a probe.
type Breaker struct {
	channel   string
	config    BreakerConfig
	listeners []TransitionListener

	mu            sync.Mutex
	state         State
	failures      int
	windowStart   time.Time
	openedAt      time.Time
	probeInFlight bool
}

func NewBreaker(channel string, cfg BreakerConfig, listeners ...TransitionListener) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = defaultFailureWindow
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = defaultCoolDown
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Breaker{
		channel:   strings.TrimSpace(channel),
		config:    cfg,
		listeners: listeners,
		state:     StateClosed,
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Acquire admits or rejects one call. In Open it fails fast until the
// cool-down elapses, then flips to HalfOpen and admits exactly one probe;
// concurrent callers during the probe keep failing fast.
func (b *Breaker) Acquire() error {
	now := b.config.Now().UTC()
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		reopenAt := b.openedAt.Add(b.config.CoolDown)
		if now.Before(reopenAt) {
			return core.NewCircuitOpenError(b.channel, reopenAt.Sub(now))
		}
		b.transitionLocked(StateHalfOpen, "cool-down elapsed", now)
		b.probeInFlight = true
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return core.NewCircuitOpenError(b.channel, b.config.CoolDown)
		}
		b.probeInFlight = true
		return nil
	default:
		return nil
	}
}

// ReportSuccess closes the circuit after a successful probe and resets the
// failure counters.
func (b *Breaker) ReportSuccess() {
	now := b.config.Now().UTC()
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.probeInFlight = false
		b.failures = 0
		b.windowStart = time.Time{}
		b.transitionLocked(StateClosed, "probe succeeded", now)
	case StateClosed:
		b.failures = 0
		b.windowStart = time.Time{}
	}
}

// ReportFailure counts one failure. Consecutive failures inside the window
// trip the circuit; a failed half-open probe re-opens it immediately.
func (b *Breaker) ReportFailure(cause string) {
	now := b.config.Now().UTC()
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.probeInFlight = false
		b.openedAt = now
		b.transitionLocked(StateOpen, "probe failed: "+strings.TrimSpace(cause), now)
	case StateClosed:
		if b.windowStart.IsZero() || now.Sub(b.windowStart) > b.config.FailureWindow {
			b.windowStart = now
			b.failures = 0
		}
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.openedAt = now
			b.transitionLocked(StateOpen, fmt.Sprintf("failure threshold reached: %s", strings.TrimSpace(cause)), now)
		}
	}
}

func (b *Breaker) transitionLocked(to State, cause string, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	event := TransitionEvent{
		Channel: b.channel,
		From:    from,
		To:      to,
		Cause:   cause,
		At:      now,
	}
	for _, listener := range b.listeners {
		if listener == nil {
			continue
		}
		listener(event)
	}
}
