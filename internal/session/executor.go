package session

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/energizer-project/slingshot/internal/metrics"
	"github.com/energizer-project/slingshot/internal/protocol"
)

// ShotResult describes one executed shot.
type ShotResult struct {
	Level        int  `json:"level"`
	Accepted     bool `json:"accepted"`
	Reward       int  `json:"reward"`
	PreScore     int  `json:"pre_score"`
	PostScore    int  `json:"post_score"`
	Attempts     int  `json:"attempts"`
	ZoomAttempts int  `json:"zoom_attempts"`
}

// ShotExecutor zooms out, fires the shot and turns the score difference into
// a reward.
type ShotExecutor struct {
	x             exchanger
	tracker       *Tracker
	maxZoomTrials int
	shotRetries   int
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// Shoot runs the full shot sequence. A refused shot is not an error: it
// yields Accepted=false and Reward=RewardRejected.
func (e *ShotExecutor) Shoot(shot protocol.Shot, mode protocol.ShotMode) (ShotResult, error) {
	res := ShotResult{Level: e.tracker.Level(), Reward: RewardRejected}

	zooms, err := e.zoomOut()
	res.ZoomAttempts = zooms
	if err != nil {
		return res, err
	}

	pre, err := e.tracker.CurrentScore()
	if err != nil {
		return res, err
	}
	res.PreScore = pre

	req := protocol.EncodeShot(shot, mode)
	for res.Attempts <= e.shotRetries {
		res.Attempts++
		data, err := e.x.exchange(req, protocol.ResultSize)
		if err != nil {
			return res, fmt.Errorf("failed to send %s shot: %w", shot.Kind(), err)
		}
		ok, err := protocol.DecodeResult(data)
		if err != nil {
			return res, fmt.Errorf("failed to decode shot result: %w", err)
		}
		if ok {
			res.Accepted = true
			break
		}
		e.logger.Warn().
			Int("level", res.Level).
			Str("mode", mode.String()).
			Int("attempt", res.Attempts).
			Msg("shot rejected by server")
	}

	if !res.Accepted {
		e.metrics.ObserveShot(mode.String(), RewardRejected)
		return res, nil
	}

	post, err := e.tracker.CurrentScore()
	if err != nil {
		return res, err
	}
	res.PostScore = post
	if post < pre {
		return res, fmt.Errorf("level %d: %d -> %d: %w", res.Level, pre, post, ErrScoreRegressed)
	}
	res.Reward = post - pre

	e.tracker.Board().RecordShot(res.Level, res.Reward)
	e.metrics.ObserveShot(mode.String(), res.Reward)
	return res, nil
}

// zoomOut retries the full zoom-out up to maxZoomTrials times and returns the
// number of attempts made.
func (e *ShotExecutor) zoomOut() (int, error) {
	req := protocol.EncodeQuery(protocol.OpFullZoomOut)
	for attempt := 1; attempt <= e.maxZoomTrials; attempt++ {
		data, err := e.x.exchange(req, protocol.ResultSize)
		if err != nil {
			return attempt, fmt.Errorf("failed to zoom out: %w", err)
		}
		ok, err := protocol.DecodeResult(data)
		if err != nil {
			return attempt, fmt.Errorf("failed to decode zoom result: %w", err)
		}
		if ok {
			return attempt, nil
		}
		e.metrics.ZoomRetry()
		e.logger.Warn().Int("attempt", attempt).Int("max", e.maxZoomTrials).Msg("zoom out failed")
	}
	return e.maxZoomTrials, fmt.Errorf("after %d attempts: %w", e.maxZoomTrials, ErrPreconditionUnavailable)
}
