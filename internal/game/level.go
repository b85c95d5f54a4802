package game

import (
	"errors"
	"fmt"
)

// Level range of the reference deployment.
const (
	MinLevel = 1
	MaxLevel = 21
)

// ErrInvalidLevel is returned for a level outside [MinLevel, MaxLevel].
var ErrInvalidLevel = errors.New("invalid level")

// ValidateLevel checks that n is a playable level.
func ValidateLevel(n int) error {
	if n < MinLevel || n > MaxLevel {
		return fmt.Errorf("level %d not in [%d, %d]: %w", n, MinLevel, MaxLevel, ErrInvalidLevel)
	}
	return nil
}
