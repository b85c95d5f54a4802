package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/energizer-project/slingshot/internal/config"
	"github.com/energizer-project/slingshot/internal/db"
	"github.com/energizer-project/slingshot/internal/events"
	"github.com/energizer-project/slingshot/internal/metrics"
	"github.com/energizer-project/slingshot/internal/protocol"
	"github.com/energizer-project/slingshot/internal/session"
	"github.com/energizer-project/slingshot/internal/simulator"
	"github.com/energizer-project/slingshot/internal/supervisor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	sim     *simulator.Server
	sess    *session.Session
	bus     *events.Bus
	history *db.History
	handler http.Handler
	api     *Server
}

func newFixture(t *testing.T, opts simulator.Options) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sim := simulator.New(opts)
	if err := sim.Start(ctx, "127.0.0.1:0"); err != nil {
		cancel()
		t.Fatalf("simulator Start() failed: %v", err)
	}

	reg := prometheus.NewRegistry()
	bus := events.NewBus()
	sess := session.New(session.Options{
		Addr:           sim.Addr(),
		TeamID:         424242,
		ConnectTimeout: time.Second,
		CallTimeout:    300 * time.Millisecond,
		StartLevel:     1,
		Bus:            bus,
		Metrics:        metrics.New(metrics.WithRegistry(reg)),
	})
	if err := sess.Connect(context.Background()); err != nil {
		cancel()
		t.Fatalf("Connect() failed: %v", err)
	}

	history, err := db.OpenHistory(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("OpenHistory() failed: %v", err)
	}
	db.NewRecorder(history).Attach(bus)

	cfg := config.DefaultConfig().API
	cfg.RateLimitRPS = 0
	srv := NewServer(cfg, sess, Deps{History: history, Bus: bus, Gatherer: reg, Version: "test"})

	t.Cleanup(func() {
		srv.Stop()
		sess.Disconnect()
		bus.Stop()
		history.Close()
		cancel()
		sim.Close()
	})
	return &fixture{sim: sim, sess: sess, bus: bus, history: history, handler: srv.Handler(), api: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestPing(t *testing.T) {
	f := newFixture(t, simulator.DefaultOptions())
	w, body := f.do(t, http.MethodGet, "/api/public/ping", nil)
	if w.Code != http.StatusOK || body["version"] != "test" {
		t.Fatalf("ping: %d %v", w.Code, body)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestSessionAndStatus(t *testing.T) {
	f := newFixture(t, simulator.DefaultOptions())

	w, body := f.do(t, http.MethodGet, "/api/session", nil)
	if w.Code != http.StatusOK || body["connected"] != true || body["level"].(float64) != 1 {
		t.Fatalf("session: %d %v", w.Code, body)
	}

	w, body = f.do(t, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK || body["status"] != "level_selection" {
		t.Fatalf("status: %d %v", w.Code, body)
	}
}

func TestLoadLevel(t *testing.T) {
	f := newFixture(t, simulator.DefaultOptions())

	w, body := f.do(t, http.MethodPost, "/api/level/load/7", nil)
	if w.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("load: %d %v", w.Code, body)
	}
	if f.sess.CurrentLevel() != 7 || f.sim.Level() != 7 {
		t.Errorf("level = %d / sim %d, want 7", f.sess.CurrentLevel(), f.sim.Level())
	}

	before := f.sim.Calls(protocol.OpLoadLevel)
	w, _ = f.do(t, http.MethodPost, "/api/level/load/22", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("level 22: status %d, want 400", w.Code)
	}
	if f.sim.Calls(protocol.OpLoadLevel) != before {
		t.Error("invalid level reached the server")
	}

	w, _ = f.do(t, http.MethodPost, "/api/level/load/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("level abc: status %d, want 400", w.Code)
	}
}

func TestShotAndHistory(t *testing.T) {
	opts := simulator.DefaultOptions()
	opts.ShotGains = []int{1500}
	f := newFixture(t, opts)

	f.do(t, http.MethodPost, "/api/level/load/3", nil)
	w, body := f.do(t, http.MethodPost, "/api/shot", ShotRequest{
		Type: "polar", FX: 190, FY: 310, Radius: 80, Angle: 30, ReleaseMS: 1000,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("shot: %d %v", w.Code, body)
	}
	if body["accepted"] != true || body["reward"].(float64) != 1500 {
		t.Errorf("shot result = %v", body)
	}

	f.bus.Flush()
	w, body = f.do(t, http.MethodGet, "/api/history/shots?level=3", nil)
	if w.Code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("history: %d %v", w.Code, body)
	}
	w, body = f.do(t, http.MethodGet, "/api/history/scores", nil)
	if w.Code != http.StatusOK || body["total_best"].(float64) != 1500 {
		t.Errorf("history scores: %d %v", w.Code, body)
	}

	w, body = f.do(t, http.MethodGet, "/api/levels", nil)
	if w.Code != http.StatusOK || body["total_score"].(float64) != 1500 {
		t.Errorf("levels: %d %v", w.Code, body)
	}
}

func TestShotBadRequest(t *testing.T) {
	f := newFixture(t, simulator.DefaultOptions())

	tests := []interface{}{
		map[string]interface{}{"type": "spiral"},
		map[string]interface{}{"type": "polar", "mode": "slow"},
		map[string]interface{}{},
	}
	for _, body := range tests {
		w, _ := f.do(t, http.MethodPost, "/api/shot", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%v: status %d, want 400", body, w.Code)
		}
	}
}

func TestZoomPreconditionConflict(t *testing.T) {
	opts := simulator.DefaultOptions()
	opts.ZoomOutAlwaysFails = true
	f := newFixture(t, opts)

	w, _ := f.do(t, http.MethodPost, "/api/shot", ShotRequest{Type: "cartesian", DX: -30, DY: 30})
	if w.Code != http.StatusConflict {
		t.Errorf("status %d, want 409", w.Code)
	}
}

func TestTimeoutMapsToGatewayTimeout(t *testing.T) {
	f := newFixture(t, simulator.DefaultOptions())
	f.sim.Update(func(o *simulator.Options) {
		o.Stall = map[byte]bool{protocol.OpGetState: true}
	})

	w, _ := f.do(t, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status %d, want 504", w.Code)
	}

	w, _ = f.do(t, http.MethodGet, "/api/score", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("after timeout: status %d, want 503", w.Code)
	}
}

func TestMalformedStatusMapsToBadGateway(t *testing.T) {
	f := newFixture(t, simulator.DefaultOptions())
	f.sim.SetRawStatus(9)

	w, _ := f.do(t, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status %d, want 502", w.Code)
	}
}

func TestScreenshotPNG(t *testing.T) {
	opts := simulator.DefaultOptions()
	opts.Width, opts.Height = 8, 4
	f := newFixture(t, opts)

	w, _ := f.do(t, http.MethodGet, "/api/screenshot", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("screenshot: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("png.Decode() failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Errorf("bounds = %v", b)
	}

	w, _ = f.do(t, http.MethodGet, "/api/screenshot?format=raw", nil)
	if w.Body.Len() != 8*4*3 || w.Header().Get("X-Frame-Width") != "8" {
		t.Errorf("raw frame: %d bytes, width header %q", w.Body.Len(), w.Header().Get("X-Frame-Width"))
	}
}

func TestRecoverWithoutSupervisor(t *testing.T) {
	f := newFixture(t, simulator.DefaultOptions())
	w, _ := f.do(t, http.MethodPost, "/api/recover", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status %d, want 501", w.Code)
	}
}

func TestDashboardFallback(t *testing.T) {
	f := newFixture(t, simulator.DefaultOptions())

	for _, path := range []string{"/", "/levels/3"} {
		w, _ := f.do(t, http.MethodGet, path, nil)
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/api/events") {
			t.Errorf("GET %s: %d", path, w.Code)
		}
	}

	w, body := f.do(t, http.MethodGet, "/api/nope", nil)
	if w.Code != http.StatusNotFound || body["error"] == nil {
		t.Errorf("unknown API route: %d %v", w.Code, body)
	}
}

func TestStartLifecycleSerializesWithRoutes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := simulator.New(simulator.DefaultOptions())
	if err := sim.Start(ctx, "127.0.0.1:0"); err != nil {
		t.Fatalf("simulator Start() failed: %v", err)
	}
	defer sim.Close()

	sess := session.New(session.Options{
		Addr:           sim.Addr(),
		TeamID:         424242,
		ConnectTimeout: time.Second,
		CallTimeout:    time.Second,
		StartLevel:     1,
		LoadOnConnect:  true,
	})
	sup := supervisor.New(sess, supervisor.Options{Retries: 1})
	defer sup.Stop()

	cfg := config.DefaultConfig().API
	cfg.RateLimitRPS = 0
	srv := NewServer(cfg, sess, Deps{Lifecycle: sup})
	handler := srv.Handler()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
		}
	}()

	if err := srv.StartLifecycle(ctx); err != nil {
		t.Fatalf("StartLifecycle() failed: %v", err)
	}
	<-done

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status after start: %d %s", w.Code, w.Body.String())
	}
}

func TestStartLifecycleWithoutSupervisor(t *testing.T) {
	f := newFixture(t, simulator.DefaultOptions())
	if err := f.api.StartLifecycle(context.Background()); err == nil {
		t.Error("StartLifecycle() succeeded without a supervisor")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, simulator.DefaultOptions())
	f.do(t, http.MethodGet, "/api/status", nil)

	w, _ := f.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "slingshot_exchanges_total") {
		t.Errorf("metrics: %d\n%s", w.Code, w.Body.String())
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, simulator.DefaultOptions())
	f.bus.Flush()
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.api.stream.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	f.do(t, http.MethodPost, "/api/level/load/4", nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() failed: %v", err)
	}
	var e struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("bad event json: %v", err)
	}
	if e.Type != string(events.EventLevelLoaded) || e.Payload["level"].(float64) != 4 {
		t.Errorf("event = %s", fmt.Sprint(e))
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst of 2 rejected")
	}
	if rl.Allow("a") {
		t.Error("third request allowed without refill")
	}
	if !rl.Allow("b") {
		t.Error("second client throttled")
	}
	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Error("token not refilled after 1s")
	}
}

func TestShotRequestFocus(t *testing.T) {
	req := ShotRequest{Type: "cartesian", DX: -40, DY: 20}.withFocus(3)
	if req.FX != 170 || req.FY != 336 {
		t.Errorf("focus = %d,%d, want 170,336", req.FX, req.FY)
	}
	req = ShotRequest{Type: "cartesian", FX: 1, FY: 2}.withFocus(3)
	if req.FX != 1 || req.FY != 2 {
		t.Errorf("explicit focus overwritten: %d,%d", req.FX, req.FY)
	}

	shot, mode, err := ShotRequest{Type: "polar", Mode: "fast", Radius: 80, Angle: 12.5, ReleaseMS: 500}.Shot()
	if err != nil {
		t.Fatalf("Shot() failed: %v", err)
	}
	if mode != protocol.ModeFast || shot.Kind() != "polar" {
		t.Errorf("shot = %v %v", shot, mode)
	}
	if p := protocol.ShotParamsOf(shot); p[3] != 1250 || p[4] != 500 {
		t.Errorf("params = %v", p)
	}
}
