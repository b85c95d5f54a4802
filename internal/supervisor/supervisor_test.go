package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/energizer-project/slingshot/internal/events"
	"github.com/energizer-project/slingshot/internal/metrics"
	"github.com/energizer-project/slingshot/internal/session"
)

type fakeSession struct {
	mu          sync.Mutex
	failures    int
	err         error
	connects    int
	disconnects int
	connected   bool
}

func (f *fakeSession) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	f.connected = true
	return nil
}

func (f *fakeSession) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	return nil
}

func (f *fakeSession) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

type fakeProcess struct {
	starts, stops int
	running       bool
}

func (p *fakeProcess) Start(context.Context) error { p.starts++; p.running = true; return nil }
func (p *fakeProcess) Stop() error                 { p.stops++; p.running = false; return nil }
func (p *fakeProcess) IsRunning() bool             { return p.running }
func (p *fakeProcess) PID() int                    { return 4242 }

func collect(bus *events.Bus) func() []events.EventType {
	var mu sync.Mutex
	var seen []events.EventType
	bus.SubscribeAll("test", func(_ context.Context, e events.Event) error {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
		return nil
	})
	return func() []events.EventType {
		bus.Flush()
		mu.Lock()
		defer mu.Unlock()
		return append([]events.EventType(nil), seen...)
	}
}

func TestStartRetriesConnect(t *testing.T) {
	sess := &fakeSession{failures: 2, err: fmt.Errorf("dial: %w", errors.New("refused"))}
	proc := &fakeProcess{}
	bus := events.NewBus()
	seen := collect(bus)

	sup := New(sess, Options{Process: proc, Retries: 3, RetryInterval: time.Millisecond, Bus: bus})
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if sess.connects != 3 || !sess.Connected() {
		t.Errorf("connects = %d, connected = %v", sess.connects, sess.Connected())
	}
	if proc.starts != 1 {
		t.Errorf("process starts = %d, want 1", proc.starts)
	}
	if got := seen(); len(got) != 1 || got[0] != events.EventProcessStarted {
		t.Errorf("events = %v", got)
	}
}

func TestStartGivesUp(t *testing.T) {
	sess := &fakeSession{failures: 5, err: errors.New("refused")}
	sup := New(sess, Options{Retries: 2})

	if err := sup.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded with a dead server")
	}
	if sess.connects != 2 {
		t.Errorf("connects = %d, want 2", sess.connects)
	}
}

func TestStartStopsOnRejectedTeam(t *testing.T) {
	sess := &fakeSession{failures: 5, err: session.ErrConfigurationRejected}
	sup := New(sess, Options{Retries: 5})

	err := sup.Start(context.Background())
	if !errors.Is(err, session.ErrConfigurationRejected) {
		t.Fatalf("Start() error = %v, want ErrConfigurationRejected", err)
	}
	if sess.connects != 1 {
		t.Errorf("connects = %d, want 1", sess.connects)
	}
}

func TestStartHonoursContext(t *testing.T) {
	sess := &fakeSession{failures: 5, err: errors.New("refused")}
	sup := New(sess, Options{Retries: 5, RetryInterval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := sup.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Start() error = %v, want deadline exceeded", err)
	}
}

func TestRecover(t *testing.T) {
	sess := &fakeSession{}
	proc := &fakeProcess{}
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))
	bus := events.NewBus()
	seen := collect(bus)

	sup := New(sess, Options{Process: proc, Retries: 1, Bus: bus, Metrics: m})
	sup.Start(context.Background())

	if err := sup.Recover(context.Background(), false); err != nil {
		t.Fatalf("Recover() failed: %v", err)
	}
	if proc.stops != 0 || sess.disconnects != 1 || sess.connects != 2 {
		t.Errorf("stops=%d disconnects=%d connects=%d", proc.stops, sess.disconnects, sess.connects)
	}

	if err := sup.Recover(context.Background(), true); err != nil {
		t.Fatalf("Recover(restart) failed: %v", err)
	}
	if proc.stops != 1 || proc.starts != 2 {
		t.Errorf("stops=%d starts=%d", proc.stops, proc.starts)
	}
	expected := `
# HELP slingshot_reconnects_total Reconnections performed by the supervisor
# TYPE slingshot_reconnects_total counter
slingshot_reconnects_total 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "slingshot_reconnects_total"); err != nil {
		t.Errorf("reconnect counter: %v", err)
	}

	reconnects := 0
	for _, e := range seen() {
		if e == events.EventReconnected {
			reconnects++
		}
	}
	if reconnects != 2 {
		t.Errorf("reconnected events = %d, want 2", reconnects)
	}
}

func TestEndEpisodeRestartCadence(t *testing.T) {
	sess := &fakeSession{}
	proc := &fakeProcess{}
	sup := New(sess, Options{Process: proc, Retries: 1, RestartEvery: 3})
	sup.Start(context.Background())

	var restarts []int
	for i := 1; i <= 7; i++ {
		restarted, err := sup.EndEpisode(context.Background())
		if err != nil {
			t.Fatalf("EndEpisode() failed: %v", err)
		}
		if restarted {
			restarts = append(restarts, i)
		}
	}
	if len(restarts) != 2 || restarts[0] != 3 || restarts[1] != 6 {
		t.Errorf("restarts at episodes %v, want [3 6]", restarts)
	}
	if sup.Episodes() != 7 || proc.starts != 3 {
		t.Errorf("episodes = %d, starts = %d", sup.Episodes(), proc.starts)
	}
}

func TestStop(t *testing.T) {
	sess := &fakeSession{}
	proc := &fakeProcess{}
	sup := New(sess, Options{Process: proc})
	sup.Start(context.Background())

	if err := sup.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if sess.Connected() || proc.running {
		t.Error("session or process still up after Stop()")
	}
}
