package protocol

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ShotMode selects the opcode variant of a shoot request. It changes how the
// server executes the shot, never the parameter layout.
type ShotMode int

const (
	ModeSafe ShotMode = iota
	ModeFast
)

var shotModeNames = map[ShotMode]string{
	ModeSafe: "safe",
	ModeFast: "fast",
}

func (m ShotMode) String() string {
	if name, ok := shotModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseShotMode accepts "safe" or "fast" (case-insensitive).
func ParseShotMode(s string) (ShotMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "safe", "":
		return ModeSafe, nil
	case "fast":
		return ModeFast, nil
	}
	return ModeSafe, fmt.Errorf("unknown shot mode %q", s)
}

// Shot is a slingshot drag described either in cartesian or polar form.
// Implementations are CartesianShot and PolarShot.
type Shot interface {
	Kind() string
	opcode(mode ShotMode) byte
	params() [ShotParams]int32
}

// CartesianShot drags from the focus point (FX, FY) by the offset (DX, DY).
type CartesianShot struct {
	FX, FY  int
	DX, DY  int
	Release time.Duration
	TapGap  time.Duration
}

func (CartesianShot) Kind() string { return "cartesian" }

func (s CartesianShot) opcode(mode ShotMode) byte {
	if mode == ModeFast {
		return OpCartShootFast
	}
	return OpCartShootSafe
}

func (s CartesianShot) params() [ShotParams]int32 {
	return [ShotParams]int32{
		int32(s.FX), int32(s.FY),
		int32(s.DX), int32(s.DY),
		millis(s.Release), millis(s.TapGap),
	}
}

// PolarShot drags from the focus point by Radius pixels at Angle degrees.
type PolarShot struct {
	FX, FY  int
	Radius  float64
	Angle   float64
	Release time.Duration
	TapGap  time.Duration
}

func (PolarShot) Kind() string { return "polar" }

func (s PolarShot) opcode(mode ShotMode) byte {
	if mode == ModeFast {
		return OpPolarShootFast
	}
	return OpPolarShootSafe
}

// Angle travels as centi-degrees.
func (s PolarShot) params() [ShotParams]int32 {
	return [ShotParams]int32{
		int32(s.FX), int32(s.FY),
		int32(math.Round(s.Radius)), int32(math.Round(s.Angle * 100)),
		millis(s.Release), millis(s.TapGap),
	}
}

func millis(d time.Duration) int32 {
	return int32(d / time.Millisecond)
}

// ShotFromParams rebuilds a shot from a decoded request. The simulator uses it
// to report what it received.
func ShotFromParams(op byte, p []int32) (Shot, ShotMode, error) {
	if len(p) != ShotParams {
		return nil, ModeSafe, fmt.Errorf("shot needs %d params, got %d: %w", ShotParams, len(p), ErrMalformedResponse)
	}
	release := time.Duration(p[4]) * time.Millisecond
	gap := time.Duration(p[5]) * time.Millisecond
	switch op {
	case OpCartShootSafe, OpCartShootFast:
		mode := ModeSafe
		if op == OpCartShootFast {
			mode = ModeFast
		}
		return CartesianShot{FX: int(p[0]), FY: int(p[1]), DX: int(p[2]), DY: int(p[3]), Release: release, TapGap: gap}, mode, nil
	case OpPolarShootSafe, OpPolarShootFast:
		mode := ModeSafe
		if op == OpPolarShootFast {
			mode = ModeFast
		}
		return PolarShot{FX: int(p[0]), FY: int(p[1]), Radius: float64(p[2]), Angle: float64(p[3]) / 100, Release: release, TapGap: gap}, mode, nil
	}
	return nil, ModeSafe, fmt.Errorf("opcode %d is not a shot: %w", op, ErrUnknownOpcode)
}

// ShotParamsOf returns the six wire parameters of a shot.
func ShotParamsOf(s Shot) []int {
	p := s.params()
	out := make([]int, len(p))
	for i, v := range p {
		out[i] = int(v)
	}
	return out
}
