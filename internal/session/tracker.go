package session

import (
	"fmt"

	"github.com/energizer-project/slingshot/internal/game"
	"github.com/energizer-project/slingshot/internal/protocol"
)

// exchanger performs one request/response round trip.
type exchanger interface {
	exchange(req []byte, n int) ([]byte, error)
}

// Tracker is the score cache and level pointer of a session.
type Tracker struct {
	x     exchanger
	level int
	board *game.Board
}

func newTracker(x exchanger, startLevel int) *Tracker {
	if game.ValidateLevel(startLevel) != nil {
		startLevel = game.MinLevel
	}
	return &Tracker{x: x, level: startLevel, board: game.NewBoard()}
}

// Level returns the current level pointer.
func (t *Tracker) Level() int {
	return t.level
}

// Board returns the per-level cache.
func (t *Tracker) Board() *game.Board {
	return t.board
}

// CurrentScore queries the score of the current level and caches it.
func (t *Tracker) CurrentScore() (int, error) {
	data, err := t.x.exchange(protocol.EncodeQuery(protocol.OpGetMyScore), protocol.IntSize)
	if err != nil {
		return 0, fmt.Errorf("failed to query score: %w", err)
	}
	v, err := protocol.DecodeInt32(data)
	if err != nil {
		return 0, fmt.Errorf("failed to decode score: %w", err)
	}
	score := int(v)
	if err := t.board.SetScore(t.level, score); err != nil {
		return 0, err
	}
	return score, nil
}

// LoadLevel asks the server for level n. The level pointer moves only when
// the server accepts.
func (t *Tracker) LoadLevel(n int) (bool, error) {
	if err := game.ValidateLevel(n); err != nil {
		return false, err
	}
	data, err := t.x.exchange(protocol.EncodeLoadLevel(int32(n)), protocol.ResultSize)
	if err != nil {
		return false, fmt.Errorf("failed to load level %d: %w", n, err)
	}
	ok, err := protocol.DecodeResult(data)
	if err != nil {
		return false, fmt.Errorf("failed to load level %d: %w", n, err)
	}
	if ok {
		t.level = n
	}
	return ok, nil
}

// NextLevel loads the level after the current one. It returns false with a
// nil error once the last level is reached.
func (t *Tracker) NextLevel() (bool, error) {
	if t.level >= game.MaxLevel {
		return false, nil
	}
	ok, err := t.LoadLevel(t.level + 1)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("level %d: %w", t.level+1, ErrLevelNotLoaded)
	}
	return true, nil
}
