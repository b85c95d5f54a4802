package session

import "errors"

var (
	// ErrConfigurationRejected is returned by Connect when the server refuses
	// the configure handshake.
	ErrConfigurationRejected = errors.New("configuration rejected by server")

	// ErrPreconditionUnavailable is returned by Shoot when the view could not
	// be fully zoomed out within the allowed number of attempts.
	ErrPreconditionUnavailable = errors.New("zoom-out precondition unavailable")

	// ErrNotConnected is returned by operations issued without a live
	// connection.
	ErrNotConnected = errors.New("not connected")

	// ErrLevelNotLoaded is returned when the server refuses to load the next
	// level.
	ErrLevelNotLoaded = errors.New("level not loaded")

	// ErrScoreRegressed is returned when the score read after a shot is lower
	// than the one read before it.
	ErrScoreRegressed = errors.New("score decreased across a shot")
)

// RewardRejected is the reward reported for a shot the server refused.
const RewardRejected = -1
