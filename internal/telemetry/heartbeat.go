package telemetry

import (
	"context"
	"time"

	"github.com/energizer-project/slingshot/internal/util"
)

// SessionState is the session summary carried by each heartbeat.
type SessionState struct {
	Connected  bool `json:"connected"`
	Level      int  `json:"level"`
	TotalScore int  `json:"total_score"`
	Episodes   int  `json:"episodes"`
}

// HeartbeatPayload is published on the heartbeat topic.
type HeartbeatPayload struct {
	Session SessionState  `json:"session"`
	Host    util.HostLoad `json:"host"`
}

// Heartbeat periodically publishes session and host state.
type Heartbeat struct {
	handler  *MQTTHandler
	interval time.Duration
	state    func() SessionState
	sample   func() (util.HostLoad, error)
}

// NewHeartbeat creates a heartbeat publishing through h every interval.
func NewHeartbeat(h *MQTTHandler, interval time.Duration, state func() SessionState) *Heartbeat {
	return &Heartbeat{
		handler:  h,
		interval: interval,
		state:    state,
		sample:   func() (util.HostLoad, error) { return util.SampleHostLoad(".") },
	}
}

// Run publishes immediately and then on every tick until ctx is done.
func (hb *Heartbeat) Run(ctx context.Context) {
	if hb.interval <= 0 {
		return
	}
	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()

	hb.beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb.beat()
		}
	}
}

func (hb *Heartbeat) beat() {
	payload := HeartbeatPayload{Session: hb.state()}
	load, err := hb.sample()
	if err != nil {
		hb.handler.logger.Debug().Err(err).Msg("host sample failed")
	}
	payload.Host = load

	if err := hb.handler.publish(hb.handler.topic(TopicHeartbeat), "heartbeat", payload); err != nil {
		hb.handler.logger.Warn().Err(err).Msg("heartbeat publish failed")
	}
}
