// Package game models what the client knows about the remote game: the
// coarse status reported by the server, the level range, and the per-level
// score board.
package game

import (
	"errors"
	"fmt"
)

// ErrInvalidStatusCode is returned when the server reports a status code
// outside the known range.
var ErrInvalidStatusCode = errors.New("invalid status code")

// Status is the coarse game state reported by the server.
type Status int

const (
	StatusUnknown Status = iota
	StatusMainMenu
	StatusEpisodeMenu
	StatusLevelSelection
	StatusLoading
	StatusPlaying
	StatusWon
	StatusLost
)

// statusStrings maps Status values to their lowercase JSON representation.
var statusStrings = map[Status]string{
	StatusUnknown:        "unknown",
	StatusMainMenu:       "main_menu",
	StatusEpisodeMenu:    "episode_menu",
	StatusLevelSelection: "level_selection",
	StatusLoading:        "loading",
	StatusPlaying:        "playing",
	StatusWon:            "won",
	StatusLost:           "lost",
}

// ParseStatus converts a wire code into a Status.
func ParseStatus(code int32) (Status, error) {
	if code < int32(StatusUnknown) || code > int32(StatusLost) {
		return StatusUnknown, fmt.Errorf("status code %d: %w", code, ErrInvalidStatusCode)
	}
	return Status(code), nil
}

// String returns the string representation of Status.
func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes Status as a JSON string (e.g. "playing").
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// IsTerminal reports whether the level has ended.
func (s Status) IsTerminal() bool {
	return s == StatusWon || s == StatusLost
}

// IsWon reports whether the level ended in a win.
func (s Status) IsWon() bool {
	return s == StatusWon
}
