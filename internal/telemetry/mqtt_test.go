package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/energizer-project/slingshot/internal/config"
	"github.com/energizer-project/slingshot/internal/events"
	"github.com/energizer-project/slingshot/internal/util"
)

type capture struct {
	mu   sync.Mutex
	msgs map[string][]map[string]interface{}
}

func (c *capture) send(topic string, data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.msgs == nil {
		c.msgs = make(map[string][]map[string]interface{})
	}
	c.msgs[topic] = append(c.msgs[topic], m)
	return nil
}

func (c *capture) count(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs[topic])
}

func TestHandlerRoutesEvents(t *testing.T) {
	c := &capture{}
	h := newHandler("lab/agent1/", map[string]interface{}{"hostname": "box"}, c.send)
	bus := events.NewBus()
	h.Attach(bus)

	ctx := context.Background()
	bus.EmitSync(ctx, events.Event{Type: events.EventShotFired, Payload: events.ShotFiredPayload{Level: 3, Reward: 500}})
	bus.EmitSync(ctx, events.Event{Type: events.EventScoreUpdated, Payload: events.ScoreUpdatedPayload{Level: 3, Score: 500}})
	bus.EmitSync(ctx, events.Event{Type: events.EventConnected, Payload: events.ConnectedPayload{Addr: "x"}})
	bus.EmitSync(ctx, events.Event{Type: events.EventLevelLoaded, Payload: events.LevelPayload{Level: 4}})

	for topic, want := range map[string]int{
		"lab/agent1/shots":     1,
		"lab/agent1/scores":    1,
		"lab/agent1/lifecycle": 1,
		"lab/agent1/status":    1,
	} {
		if got := c.count(topic); got != want {
			t.Errorf("%s: got %d messages, want %d", topic, got, want)
		}
	}
	if h.Sent() != 4 {
		t.Errorf("Sent() = %d, want 4", h.Sent())
	}

	msg := c.msgs["lab/agent1/shots"][0]
	if msg["hostname"] != "box" || msg["event"] != "shot_fired" {
		t.Errorf("message = %v", msg)
	}
	payload := msg["payload"].(map[string]interface{})
	if payload["reward"].(float64) != 500 {
		t.Errorf("payload = %v", payload)
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		cfg  config.MQTTConfig
		want string
	}{
		{config.MQTTConfig{BrokerURL: "localhost", Port: 1883}, "tcp://localhost:1883"},
		{config.MQTTConfig{BrokerURL: "mq.example", Port: 8883, UseTLS: true}, "ssl://mq.example:8883"},
		{config.MQTTConfig{BrokerURL: "ws://mq.example:9001", Port: 1}, "ws://mq.example:9001"},
	}
	for _, tt := range tests {
		if got := brokerURL(tt.cfg); got != tt.want {
			t.Errorf("brokerURL(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestNewMQTTHandlerDisabled(t *testing.T) {
	if _, err := NewMQTTHandler(config.MQTTConfig{}, "test"); err == nil {
		t.Fatal("NewMQTTHandler() accepted disabled config")
	}
}

func TestHeartbeat(t *testing.T) {
	c := &capture{}
	h := newHandler("hb", nil, c.send)
	hb := NewHeartbeat(h, 10*time.Millisecond, func() SessionState {
		return SessionState{Connected: true, Level: 5, TotalScore: 42000}
	})
	hb.sample = func() (util.HostLoad, error) { return util.HostLoad{CPUPercent: 12.5}, nil }

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	hb.Run(ctx)

	if n := c.count("hb/heartbeat"); n < 2 {
		t.Fatalf("got %d heartbeats, want at least 2", n)
	}
	payload := c.msgs["hb/heartbeat"][0]["payload"].(map[string]interface{})
	session := payload["session"].(map[string]interface{})
	if session["level"].(float64) != 5 || session["connected"] != true {
		t.Errorf("session = %v", session)
	}
}

func TestStateTracker(t *testing.T) {
	bus := events.NewBus()
	st := NewStateTracker()
	st.Attach(bus)

	ctx := context.Background()
	steps := []events.Event{
		{Type: events.EventConnected, Payload: events.ConnectedPayload{Addr: "x"}},
		{Type: events.EventLevelLoaded, Payload: events.LevelPayload{Level: 2}},
		{Type: events.EventScoreUpdated, Payload: events.ScoreUpdatedPayload{Level: 2, Score: 3000}},
		{Type: events.EventScoreUpdated, Payload: events.ScoreUpdatedPayload{Level: 2, Score: 1000}},
		{Type: events.EventScoreUpdated, Payload: events.ScoreUpdatedPayload{Level: 3, Score: 500}},
		{Type: events.EventEpisodeRestarted, Payload: events.EpisodeRestartedPayload{Episode: 4}},
	}
	for _, e := range steps {
		bus.EmitSync(ctx, e)
	}

	got := st.State()
	want := SessionState{Connected: true, Level: 3, TotalScore: 3500, Episodes: 4}
	if got != want {
		t.Errorf("State() = %+v, want %+v", got, want)
	}

	bus.EmitSync(ctx, events.Event{Type: events.EventDisconnected, Payload: events.DisconnectedPayload{Reason: "timeout"}})
	if st.State().Connected {
		t.Error("tracker still connected after disconnect")
	}
}

func TestStateTrackerIgnoresStaleLinkEvents(t *testing.T) {
	st := NewStateTracker()
	ctx := context.Background()
	base := time.Now()

	// A reconnect emits disconnected then connected; deliver them reversed.
	st.handle(ctx, events.Event{Type: events.EventConnected, Time: base.Add(time.Millisecond), Payload: events.ConnectedPayload{Addr: "x"}})
	st.handle(ctx, events.Event{Type: events.EventDisconnected, Time: base, Payload: events.DisconnectedPayload{Reason: "recover"}})
	if !st.State().Connected {
		t.Error("stale disconnect overrode a newer connect")
	}

	st.handle(ctx, events.Event{Type: events.EventDisconnected, Time: base.Add(2 * time.Millisecond), Payload: events.DisconnectedPayload{Reason: "timeout"}})
	if st.State().Connected {
		t.Error("newer disconnect was ignored")
	}
}
