package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Handshake is the decoded reply to a configure request.
type Handshake struct {
	RoundOK    bool `json:"round_ok"`
	TimeLimit  int  `json:"time_limit"`
	LevelCount int  `json:"level_count"`
}

// ScreenshotHeader declares the dimensions of the RGB payload that follows it.
type ScreenshotHeader struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Size returns the payload length in bytes.
func (h ScreenshotHeader) Size() int {
	return h.Width * h.Height * BytesPerPixel
}

func checkWidth(what string, data []byte, want int) error {
	if len(data) != want {
		return fmt.Errorf("%s: got %d bytes, want %d: %w", what, len(data), want, ErrMalformedResponse)
	}
	return nil
}

// DecodeConfigure parses a configure reply.
// Format: [round_ok:1][time_limit:1][level_count:1]
func DecodeConfigure(data []byte) (Handshake, error) {
	if err := checkWidth("configure", data, ConfigureSize); err != nil {
		return Handshake{}, err
	}
	if data[0] > 1 {
		return Handshake{}, fmt.Errorf("configure: round flag %d: %w", data[0], ErrMalformedResponse)
	}
	return Handshake{
		RoundOK:    data[0] == 1,
		TimeLimit:  int(data[1]),
		LevelCount: int(data[2]),
	}, nil
}

// DecodeInt32 parses a single big-endian int32 reply.
func DecodeInt32(data []byte) (int32, error) {
	if err := checkWidth("int32", data, IntSize); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(data)), nil
}

// DecodeResult parses a result flag. Only 0 and 1 are valid.
func DecodeResult(data []byte) (bool, error) {
	v, err := DecodeInt32(data)
	if err != nil {
		return false, err
	}
	switch v {
	case ResultSuccess:
		return true, nil
	case ResultFailure:
		return false, nil
	}
	return false, fmt.Errorf("result flag %d: %w", v, ErrMalformedResponse)
}

// DecodeScreenshotHeader parses the screenshot header and validates the
// declared payload size against MaxScreenshotSize.
// Format: [width:4][height:4]
func DecodeScreenshotHeader(data []byte) (ScreenshotHeader, error) {
	if err := checkWidth("screenshot header", data, ScreenshotHeaderSize); err != nil {
		return ScreenshotHeader{}, err
	}
	w := int32(binary.BigEndian.Uint32(data[:IntSize]))
	h := int32(binary.BigEndian.Uint32(data[IntSize:]))
	if w <= 0 || h <= 0 {
		return ScreenshotHeader{}, fmt.Errorf("screenshot %dx%d: %w", w, h, ErrMalformedResponse)
	}
	if int64(w)*int64(h)*BytesPerPixel > MaxScreenshotSize {
		return ScreenshotHeader{}, fmt.Errorf("screenshot %dx%d exceeds %d bytes: %w", w, h, MaxScreenshotSize, ErrMalformedResponse)
	}
	return ScreenshotHeader{Width: int(w), Height: int(h)}, nil
}

// DecodeScores parses a best-scores reply, one int32 per level slot.
func DecodeScores(data []byte) ([]int, error) {
	if err := checkWidth("scores", data, IntSize*LevelSlots); err != nil {
		return nil, err
	}
	scores := make([]int, LevelSlots)
	for i := range scores {
		scores[i] = int(int32(binary.BigEndian.Uint32(data[i*IntSize:])))
	}
	return scores, nil
}

// ReadPayload reads exactly n bytes from r, looping over however many
// fragments the stream delivers them in. It returns the number of reads that
// carried data. It never reads past n.
func ReadPayload(r io.Reader, n int) ([]byte, int, error) {
	buf := make([]byte, n)
	read, fragments := 0, 0
	for read < n {
		m, err := r.Read(buf[read:])
		if m > 0 {
			read += m
			fragments++
		}
		if err != nil {
			if read == n {
				break
			}
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fragments, fmt.Errorf("failed to read payload (%d of %d bytes): %w", read, n, err)
		}
	}
	return buf, fragments, nil
}

// ReadRequest reads one request from r: the opcode and its int32 parameters.
func ReadRequest(r io.Reader) (byte, []int32, error) {
	var op [1]byte
	if _, err := io.ReadFull(r, op[:]); err != nil {
		return 0, nil, fmt.Errorf("failed to read opcode: %w", err)
	}
	n, ok := RequestParams(op[0])
	if !ok {
		return op[0], nil, fmt.Errorf("opcode %d: %w", op[0], ErrUnknownOpcode)
	}
	if n == 0 {
		return op[0], nil, nil
	}
	raw := make([]byte, n*IntSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return op[0], nil, fmt.Errorf("failed to read %s params: %w", OpName(op[0]), err)
	}
	params := make([]int32, n)
	for i := range params {
		params[i] = int32(binary.BigEndian.Uint32(raw[i*IntSize:]))
	}
	return op[0], params, nil
}

// ---- Reply encoders (server side) ----

// EncodeInt32 encodes a single int32 reply.
func EncodeInt32(v int32) []byte {
	out := make([]byte, IntSize)
	binary.BigEndian.PutUint32(out, uint32(v))
	return out
}

// EncodeResult encodes a result flag.
func EncodeResult(ok bool) []byte {
	if ok {
		return EncodeInt32(ResultSuccess)
	}
	return EncodeInt32(ResultFailure)
}

// EncodeHandshake encodes a configure reply.
func EncodeHandshake(h Handshake) []byte {
	var ok byte
	if h.RoundOK {
		ok = 1
	}
	return []byte{ok, byte(h.TimeLimit), byte(h.LevelCount)}
}

// EncodeScreenshotHeader encodes the width/height header.
func EncodeScreenshotHeader(h ScreenshotHeader) []byte {
	out := make([]byte, ScreenshotHeaderSize)
	binary.BigEndian.PutUint32(out[:IntSize], uint32(int32(h.Width)))
	binary.BigEndian.PutUint32(out[IntSize:], uint32(int32(h.Height)))
	return out
}

// EncodeScores encodes a best-scores reply. Missing slots are sent as zero.
func EncodeScores(scores []int) []byte {
	out := make([]byte, IntSize*LevelSlots)
	for i := 0; i < LevelSlots && i < len(scores); i++ {
		binary.BigEndian.PutUint32(out[i*IntSize:], uint32(int32(scores[i])))
	}
	return out
}
