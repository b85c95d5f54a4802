package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/energizer-project/slingshot/internal/events"
)

// StateTracker folds session events into the SessionState reported by the
// heartbeat, so the heartbeat never touches the session itself.
type StateTracker struct {
	mu     sync.Mutex
	state  SessionState
	scores map[int]int
	// linkAt is the time of the last applied connected/disconnected event.
	// Bus.Emit delivers concurrently, so an older one may arrive later.
	linkAt time.Time
}

// NewStateTracker creates an empty tracker.
func NewStateTracker() *StateTracker {
	return &StateTracker{scores: make(map[int]int)}
}

// Attach subscribes the tracker to bus.
func (t *StateTracker) Attach(bus *events.Bus) {
	bus.SubscribeAll("telemetry_state", t.handle)
}

func (t *StateTracker) handle(_ context.Context, e events.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch p := e.Payload.(type) {
	case events.ConnectedPayload:
		t.applyLink(e.Time, true)
	case events.DisconnectedPayload:
		t.applyLink(e.Time, false)
	case events.LevelPayload:
		t.state.Level = p.Level
	case events.StatusPayload:
		t.state.Level = p.Level
	case events.ScoreUpdatedPayload:
		t.state.Level = p.Level
		if p.Score > t.scores[p.Level] {
			t.scores[p.Level] = p.Score
		}
		total := 0
		for _, s := range t.scores {
			total += s
		}
		t.state.TotalScore = total
	case events.EpisodeRestartedPayload:
		t.state.Episodes = p.Episode
	}
	return nil
}

func (t *StateTracker) applyLink(at time.Time, connected bool) {
	if at.Before(t.linkAt) {
		return
	}
	t.linkAt = at
	t.state.Connected = connected
}

// State returns the current snapshot.
func (t *StateTracker) State() SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
