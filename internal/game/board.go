package game

import (
	"sync"
	"time"
)

// LevelStat is a snapshot of one level slot.
type LevelStat struct {
	Level      int       `json:"level"`
	Score      int       `json:"score"`
	Shots      int       `json:"shots"`
	Meaningful bool      `json:"meaningful"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

type slot struct {
	score      int
	shots      int
	meaningful bool
	updatedAt  time.Time
}

// Board holds the last observed score per level, plus shot bookkeeping.
// Slots are indexed by level; index 0 is level 1. It is safe for concurrent
// readers while a single writer drives the session.
type Board struct {
	mu    sync.RWMutex
	slots [MaxLevel]slot
}

// NewBoard returns a board with every score at zero.
func NewBoard() *Board {
	return &Board{}
}

// SetScore records the observed score of a level.
func (b *Board) SetScore(level, score int) error {
	if err := ValidateLevel(level); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.slots[level-1]
	s.score = score
	s.updatedAt = time.Now()
	return nil
}

// Score returns the cached score of a level (zero for an invalid level).
func (b *Board) Score(level int) int {
	if ValidateLevel(level) != nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.slots[level-1].score
}

// RecordShot counts a shot on a level and marks the level meaningful when
// the shot scored.
func (b *Board) RecordShot(level, reward int) {
	if ValidateLevel(level) != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.slots[level-1]
	s.shots++
	if reward > 0 {
		s.meaningful = true
	}
}

// ResetShots clears the shot bookkeeping of a level, e.g. after a restart.
// The cached score is kept.
func (b *Board) ResetShots(level int) {
	if ValidateLevel(level) != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[level-1].shots = 0
	b.slots[level-1].meaningful = false
}

// Total sums the cached scores of all levels.
func (b *Board) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, s := range b.slots {
		total += s.score
	}
	return total
}

// Snapshot returns a copy of every slot.
func (b *Board) Snapshot() []LevelStat {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]LevelStat, MaxLevel)
	for i, s := range b.slots {
		out[i] = LevelStat{
			Level:      i + 1,
			Score:      s.score,
			Shots:      s.shots,
			Meaningful: s.meaningful,
			UpdatedAt:  s.updatedAt,
		}
	}
	return out
}
