// Package events defines the session events and the bus that carries them to
// persistence, telemetry and the live API stream.
package events

import (
	"time"

	"github.com/energizer-project/slingshot/internal/game"
)

// EventType represents the type of event emitted through the Bus.
type EventType string

const (
	// Connection lifecycle
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"

	// Game progress
	EventLevelLoaded      EventType = "level_loaded"
	EventLevelRestarted   EventType = "level_restarted"
	EventShotFired        EventType = "shot_fired"
	EventStatusObserved   EventType = "status_observed"
	EventScoreUpdated     EventType = "score_updated"
	EventEpisodeRestarted EventType = "episode_restarted"

	// Supervisor
	EventReconnected    EventType = "reconnected"
	EventProcessStarted EventType = "process_started"
	EventProcessExited  EventType = "process_exited"
)

// AllTypes lists every event type, in emission-independent order.
var AllTypes = []EventType{
	EventConnected,
	EventDisconnected,
	EventLevelLoaded,
	EventLevelRestarted,
	EventShotFired,
	EventStatusObserved,
	EventScoreUpdated,
	EventEpisodeRestarted,
	EventReconnected,
	EventProcessStarted,
	EventProcessExited,
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// ConnectedPayload is emitted after a successful configure handshake.
type ConnectedPayload struct {
	Addr       string `json:"addr"`
	TeamID     int    `json:"team_id"`
	TimeLimit  int    `json:"time_limit"`
	LevelCount int    `json:"level_count"`
}

// DisconnectedPayload is emitted when the connection is torn down.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

// LevelPayload is carried by level_loaded and level_restarted.
type LevelPayload struct {
	Level int `json:"level"`
}

// ShotFiredPayload describes one shot and its outcome.
type ShotFiredPayload struct {
	Level     int    `json:"level"`
	Kind      string `json:"kind"`
	Mode      string `json:"mode"`
	Params    []int  `json:"params"`
	Accepted  bool   `json:"accepted"`
	PreScore  int    `json:"pre_score"`
	PostScore int    `json:"post_score"`
	Reward    int    `json:"reward"`
	Attempts  int    `json:"attempts"`
}

// StatusPayload carries a status read from the server.
type StatusPayload struct {
	Level  int         `json:"level"`
	Status game.Status `json:"status"`
}

// ScoreUpdatedPayload carries a freshly queried score.
type ScoreUpdatedPayload struct {
	Level int `json:"level"`
	Score int `json:"score"`
}

// EpisodeRestartedPayload is emitted by the supervisor when an episode ends.
type EpisodeRestartedPayload struct {
	Episode        int  `json:"episode"`
	ProcessRestart bool `json:"process_restart"`
}

// ProcessPayload describes the supervised game-server process.
type ProcessPayload struct {
	PID      int    `json:"pid"`
	ExitCode int    `json:"exit_code,omitempty"`
	Error    string `json:"error,omitempty"`
}
