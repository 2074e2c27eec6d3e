// Package throttle implements the per-symbol notification cooldown. It
// gates outward alerts only and never delays order execution.
package throttle

import (
	"sync"
	"time"

	"github.com/ordinex/signalrelay/internal/domain"
)

// Decision is the throttle verdict for one alert attempt.
type Decision string

const (
	Dispatched Decision = "DISPATCHED"
	Suppressed Decision = "SUPPRESSED"
)

// State is the per-symbol cooldown record.
type State struct {
	LastSentAt time.Time `json:"last_sent_at"`
	LastScore  float64   `json:"last_score"`
}

// Throttle is a per-symbol two-state machine: a symbol with no record (or an
// expired one) is idle, a symbol inside the window is cooling. Suppression
// is strict: a higher score during the window does not resend.
type Throttle struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time
	states   map[string]State
}

func New(cooldown time.Duration) *Throttle {
	return &Throttle{
		cooldown: cooldown,
		now:      time.Now,
		states:   make(map[string]State),
	}
}

// Decide runs one throttle transition for the pair. Dispatched starts the
// cooldown window, Suppressed leaves the existing record untouched.
func (t *Throttle) Decide(pair domain.Pair, score float64) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := pair.String()
	now := t.now()

	if st, ok := t.states[key]; ok && now.Sub(st.LastSentAt) < t.cooldown {
		return Suppressed
	}

	t.states[key] = State{LastSentAt: now, LastScore: score}
	return Dispatched
}

// States returns a snapshot of every symbol currently tracked.
func (t *Throttle) States() map[string]State {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]State, len(t.states))
	for k, v := range t.states {
		out[k] = v
	}
	return out
}
