package connectivity

import (
	"fmt"
	"slices"
	"sync"

	"github.com/mvalente/daybook/internal/bus"
)

// State represents the daemon's view of remote reachability.
type State string

const (
	Offline    State = "OFFLINE"
	Connecting State = "CONNECTING"
	Online     State = "ONLINE"
	Degraded   State = "DEGRADED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Offline:    {Connecting, Online},
	Connecting: {Online, Offline, Degraded},
	Online:     {Offline, Degraded},
	Degraded:   {Online, Offline},
}

// Tracker holds the current connectivity state, enforces transitions, and
// publishes change events on the bus. Online() is the synchronous read used
// on every mutation and drain decision.
type Tracker struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewTracker creates a tracker starting in Offline state.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{
		current: Offline,
		bus:     b,
	}
}

// Current returns the current state.
func (t *Tracker) Current() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Online reports whether the remote side is currently reachable.
func (t *Tracker) Online() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current == Online || t.current == Degraded
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid; a self-transition is a no-op.
func (t *Tracker) Transition(to State) error {
	t.mu.Lock()
	if t.current == to {
		t.mu.Unlock()
		return nil
	}
	allowed := validTransitions[t.current]
	if !slices.Contains(allowed, to) {
		from := t.current
		t.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := t.current
	t.current = to
	t.mu.Unlock()

	if t.bus != nil {
		t.bus.Emit(bus.KindConnectivityChanged, Change{From: from, To: to})
	}
	return nil
}

// SetOnline is the entry point for the platform's online/offline signal.
// It collapses the signal onto the state machine, ignoring redundant flips.
func (t *Tracker) SetOnline(online bool) {
	if online {
		_ = t.Transition(Online)
		return
	}
	_ = t.Transition(Offline)
}

// Change is the payload for connectivity change events.
type Change struct {
	From State
	To   State
}
