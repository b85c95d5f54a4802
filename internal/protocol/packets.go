// Package protocol implements the binary wire format spoken between slingshot
// and the AIBird game automation server. Every request is a 1-byte opcode
// followed by fixed-width big-endian parameters. Every response is a fixed
// width value, except the screenshot which carries an 8-byte header followed
// by the raw RGB payload.
package protocol

import "errors"

// Opcodes sent as the first byte of every request.
const (
	OpConfigure       byte = 1
	OpScreenshot      byte = 11
	OpGetState        byte = 12
	OpGetBestScores   byte = 13
	OpGetCurrentLevel byte = 14
	OpGetMyScore      byte = 23
	OpCartShootSafe   byte = 31
	OpPolarShootSafe  byte = 32
	OpFullZoomOut     byte = 34
	OpFullZoomIn      byte = 35
	OpClickInCenter   byte = 36
	OpCartShootFast   byte = 41
	OpPolarShootFast  byte = 42
	OpLoadLevel       byte = 51
	OpRestartLevel    byte = 52
	OpIsLevelOver     byte = 60
)

// Field widths of the canonical wire variant.
const (
	IntSize              = 4
	ConfigureSize        = 3 // round-ok, time limit, level count (1 byte each)
	ScreenshotHeaderSize = 2 * IntSize
	ResultSize           = IntSize

	// BytesPerPixel is the width of one RGB pixel in the screenshot payload.
	BytesPerPixel = 3

	// MaxScreenshotSize caps the payload a header may declare.
	MaxScreenshotSize = 64 << 20

	// LevelSlots is the number of per-level entries in a best-scores reply.
	LevelSlots = 21

	// ShotParams is the number of int32 fields following a shoot opcode.
	ShotParams = 6
)

// Result flag values.
const (
	ResultFailure int32 = 0
	ResultSuccess int32 = 1
)

// ErrMalformedResponse is returned when a reply has the wrong length or
// carries a value outside the range the wire format allows.
var ErrMalformedResponse = errors.New("malformed response")

// ErrUnknownOpcode is returned for opcodes missing from the layout table.
var ErrUnknownOpcode = errors.New("unknown opcode")

// responseWidths is the fixed layout table: opcode -> reply width in bytes.
// The screenshot entry is the header width; the payload length follows from it.
var responseWidths = map[byte]int{
	OpConfigure:       ConfigureSize,
	OpScreenshot:      ScreenshotHeaderSize,
	OpGetState:        IntSize,
	OpGetBestScores:   IntSize * LevelSlots,
	OpGetCurrentLevel: IntSize,
	OpGetMyScore:      IntSize,
	OpCartShootSafe:   ResultSize,
	OpPolarShootSafe:  ResultSize,
	OpFullZoomOut:     ResultSize,
	OpFullZoomIn:      ResultSize,
	OpClickInCenter:   ResultSize,
	OpCartShootFast:   ResultSize,
	OpPolarShootFast:  ResultSize,
	OpLoadLevel:       ResultSize,
	OpRestartLevel:    ResultSize,
	OpIsLevelOver:     ResultSize,
}

// requestParams is the number of int32 parameters following each opcode.
var requestParams = map[byte]int{
	OpConfigure:       1,
	OpScreenshot:      0,
	OpGetState:        0,
	OpGetBestScores:   0,
	OpGetCurrentLevel: 0,
	OpGetMyScore:      0,
	OpCartShootSafe:   ShotParams,
	OpPolarShootSafe:  ShotParams,
	OpFullZoomOut:     0,
	OpFullZoomIn:      0,
	OpClickInCenter:   0,
	OpCartShootFast:   ShotParams,
	OpPolarShootFast:  ShotParams,
	OpLoadLevel:       1,
	OpRestartLevel:    0,
	OpIsLevelOver:     0,
}

var opNames = map[byte]string{
	OpConfigure:       "configure",
	OpScreenshot:      "screenshot",
	OpGetState:        "get_state",
	OpGetBestScores:   "get_best_scores",
	OpGetCurrentLevel: "get_current_level",
	OpGetMyScore:      "get_my_score",
	OpCartShootSafe:   "cart_shoot_safe",
	OpPolarShootSafe:  "polar_shoot_safe",
	OpFullZoomOut:     "zoom_out",
	OpFullZoomIn:      "zoom_in",
	OpClickInCenter:   "click_in_center",
	OpCartShootFast:   "cart_shoot_fast",
	OpPolarShootFast:  "polar_shoot_fast",
	OpLoadLevel:       "load_level",
	OpRestartLevel:    "restart_level",
	OpIsLevelOver:     "is_level_over",
}

// ResponseWidth returns the fixed reply width for an opcode.
func ResponseWidth(op byte) (int, bool) {
	n, ok := responseWidths[op]
	return n, ok
}

// RequestParams returns how many int32 parameters follow an opcode.
func RequestParams(op byte) (int, bool) {
	n, ok := requestParams[op]
	return n, ok
}

// OpName returns a short label for an opcode, used in logs and metrics.
func OpName(op byte) string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "unknown"
}
