package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/energizer-project/slingshot/internal/db"
	"github.com/energizer-project/slingshot/internal/game"
	"github.com/energizer-project/slingshot/internal/protocol"
	"github.com/energizer-project/slingshot/internal/session"
	"github.com/energizer-project/slingshot/internal/simulator"
)

func newConsole(t *testing.T, opts simulator.Options) (*CLI, *bytes.Buffer, *simulator.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sim := simulator.New(opts)
	if err := sim.Start(ctx, "127.0.0.1:0"); err != nil {
		cancel()
		t.Fatalf("simulator Start() failed: %v", err)
	}
	sess := session.New(session.Options{
		Addr:           sim.Addr(),
		TeamID:         1,
		ConnectTimeout: time.Second,
		CallTimeout:    time.Second,
		StartLevel:     1,
	})
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	t.Cleanup(func() {
		sess.Disconnect()
		cancel()
		sim.Close()
	})

	var out bytes.Buffer
	return NewCLI(sess, &out, protocol.ModeSafe), &out, sim
}

func TestRunScript(t *testing.T) {
	opts := simulator.DefaultOptions()
	opts.ShotGains = []int{2500}
	c, out, sim := newConsole(t, opts)

	script := strings.Join([]string{
		"l 5",
		"c -40 20 1000 0",
		"p 80 30 fast",
		"s",
		"b",
		"q",
		"s",
	}, "\n")
	if err := c.Run(context.Background(), strings.NewReader(script)); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"reward 2500 (score 0 -> 2500)",
		"reward 2500 (score 2500 -> 5000)",
		"level 5 score 5000",
		"TOTAL",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if sim.Calls(protocol.OpCartShootSafe) != 1 || sim.Calls(protocol.OpPolarShootFast) != 1 {
		t.Errorf("shots: cart safe %d, polar fast %d",
			sim.Calls(protocol.OpCartShootSafe), sim.Calls(protocol.OpPolarShootFast))
	}
	if strings.Count(text, "level 5 score") != 1 {
		t.Error("commands after quit were executed")
	}
}

func TestExecuteErrors(t *testing.T) {
	c, out, sim := newConsole(t, simulator.DefaultOptions())

	tests := []struct {
		line string
		want string
	}{
		{"l", "usage: load"},
		{"l x", "invalid level"},
		{"l 22", "invalid level"},
		{"c 1", "usage: cshoot"},
		{"p a b", "invalid number"},
	}
	for _, tt := range tests {
		err := c.Execute(tt.line)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Execute(%q) error = %v, want %q", tt.line, err, tt.want)
		}
	}
	if sim.Calls(protocol.OpLoadLevel) != 0 {
		t.Error("invalid load reached the server")
	}

	if err := c.Execute("dance"); err != nil {
		t.Errorf("unknown command returned %v", err)
	}
	if !strings.Contains(out.String(), "Unknown command: 'dance'") {
		t.Errorf("output = %q", out.String())
	}
}

func TestExecuteQueries(t *testing.T) {
	c, out, sim := newConsole(t, simulator.DefaultOptions())
	sim.SetStatus(game.StatusPlaying)

	for _, line := range []string{"st", "e", "level", "best", "ss", "i", "o", "n"} {
		if err := c.Execute(line); err != nil {
			t.Fatalf("Execute(%q) failed: %v", line, err)
		}
	}
	text := out.String()
	for _, want := range []string{"playing", "false", "server level 1", "frame 840x480", "level 2"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRenderHistory(t *testing.T) {
	var out bytes.Buffer
	RenderHistory(&out, []db.LevelScore{{Level: 1, BestScore: 30000, Shots: 4}}, 30000)
	RenderShots(&out, []db.ShotRecord{{ID: 7, Level: 1, Kind: "polar", Mode: "safe", Params: []int{1, 2}, Reward: 900}})

	text := out.String()
	for _, want := range []string{"30000", "POLAR", "900"} {
		if !strings.Contains(strings.ToUpper(text), want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}
