package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/energizer-project/slingshot/internal/game"
	"github.com/energizer-project/slingshot/internal/network"
	"github.com/energizer-project/slingshot/internal/protocol"
)

func result(t *testing.T, reply []byte) bool {
	t.Helper()
	ok, err := protocol.DecodeResult(reply)
	if err != nil {
		t.Fatalf("DecodeResult() failed: %v", err)
	}
	return ok
}

func TestApplyLoadAndShoot(t *testing.T) {
	opts := DefaultOptions()
	opts.ShotGains = []int{3000, 500}
	opts.WinAfterShots = 2
	s := New(opts)

	reply, _ := s.Apply(protocol.OpLoadLevel, []int32{7})
	if !result(t, reply) {
		t.Fatal("load level 7 rejected")
	}
	if s.Level() != 7 {
		t.Errorf("Level() = %d, want 7", s.Level())
	}
	if reply, _ := s.Apply(protocol.OpLoadLevel, []int32{22}); result(t, reply) {
		t.Error("load level 22 accepted")
	}

	for i := 0; i < 2; i++ {
		if reply, _ := s.Apply(protocol.OpPolarShootSafe, make([]int32, protocol.ShotParams)); !result(t, reply) {
			t.Fatalf("shot %d rejected", i)
		}
	}
	reply, _ = s.Apply(protocol.OpGetMyScore, nil)
	if v, _ := protocol.DecodeInt32(reply); v != 3500 {
		t.Errorf("score = %d, want 3500", v)
	}
	reply, _ = s.Apply(protocol.OpGetState, nil)
	if v, _ := protocol.DecodeInt32(reply); game.Status(v) != game.StatusWon {
		t.Errorf("status = %d, want won", v)
	}
	if reply, _ := s.Apply(protocol.OpIsLevelOver, nil); !result(t, reply) {
		t.Error("level not over after win")
	}

	reply, _ = s.Apply(protocol.OpGetBestScores, nil)
	best, err := protocol.DecodeScores(reply)
	if err != nil {
		t.Fatalf("DecodeScores() failed: %v", err)
	}
	if best[6] != 3500 {
		t.Errorf("best[7] = %d, want 3500", best[6])
	}
}

func TestApplyZoomFailures(t *testing.T) {
	opts := DefaultOptions()
	opts.ZoomOutFailures = 2
	s := New(opts)

	want := []bool{false, false, true}
	for i, w := range want {
		if reply, _ := s.Apply(protocol.OpFullZoomOut, nil); result(t, reply) != w {
			t.Errorf("zoom out #%d = %v, want %v", i+1, !w, w)
		}
	}
	if s.Calls(protocol.OpFullZoomOut) != 3 {
		t.Errorf("Calls() = %d, want 3", s.Calls(protocol.OpFullZoomOut))
	}
}

func TestApplyStall(t *testing.T) {
	opts := DefaultOptions()
	opts.Stall = map[byte]bool{protocol.OpGetState: true}
	s := New(opts)
	if _, stall := s.Apply(protocol.OpGetState, nil); !stall {
		t.Error("get_state not stalled")
	}
}

func TestScreenshotSize(t *testing.T) {
	opts := DefaultOptions()
	opts.Width, opts.Height = 4, 3
	s := New(opts)
	reply, _ := s.Apply(protocol.OpScreenshot, nil)
	if len(reply) != protocol.ScreenshotHeaderSize+4*3*3 {
		t.Errorf("reply len = %d", len(reply))
	}
}

func TestUpdateWhileServingScreenshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := DefaultOptions()
	opts.Width, opts.Height = 40, 30
	s := New(opts)
	if err := s.Start(ctx, "127.0.0.1:0"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer s.Close()

	conn, err := network.Dial(ctx, s.Addr(), network.DialOptions{ConnectTimeout: time.Second, CallTimeout: time.Second})
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.Update(func(o *Options) { o.Fragments = 1 + i%4 })
		}
	}()

	for i := 0; i < 20; i++ {
		hdr, pixels, err := conn.ExchangeScreenshot()
		if err != nil {
			t.Fatalf("ExchangeScreenshot() failed: %v", err)
		}
		if hdr.Width != 40 || len(pixels) != 40*30*3 {
			t.Fatalf("frame %dx%d with %d bytes", hdr.Width, hdr.Height, len(pixels))
		}
	}
	wg.Wait()
}
