package db

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/slingshot/internal/events"
)

// Recorder writes session events into a History.
type Recorder struct {
	history *History
	logger  zerolog.Logger
}

// NewRecorder creates a recorder for h.
func NewRecorder(h *History) *Recorder {
	return &Recorder{
		history: h,
		logger:  log.With().Str("component", "recorder").Logger(),
	}
}

// Attach subscribes the recorder to every event on bus.
func (r *Recorder) Attach(bus *events.Bus) {
	bus.SubscribeAll("db_recorder", r.Handle)
}

// Handle persists one event. Events without a table are ignored.
func (r *Recorder) Handle(ctx context.Context, e events.Event) error {
	switch p := e.Payload.(type) {
	case events.ShotFiredPayload:
		_, err := r.history.RecordShot(ShotRecord{
			Level:     p.Level,
			Kind:      p.Kind,
			Mode:      p.Mode,
			Params:    p.Params,
			Accepted:  p.Accepted,
			PreScore:  p.PreScore,
			PostScore: p.PostScore,
			Reward:    p.Reward,
			Attempts:  p.Attempts,
			FiredAt:   e.Time,
		})
		return err
	case events.ScoreUpdatedPayload:
		return r.history.RecordScore(p.Level, p.Score)
	}

	switch e.Type {
	case events.EventConnected, events.EventDisconnected, events.EventReconnected,
		events.EventEpisodeRestarted, events.EventProcessStarted, events.EventProcessExited:
		detail, err := json.Marshal(e.Payload)
		if err != nil {
			return err
		}
		return r.history.RecordLifecycle(string(e.Type), string(detail))
	}
	return nil
}
