package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// RequestBuilder assembles a request in network byte order.
type RequestBuilder struct {
	buf bytes.Buffer
}

// NewRequestBuilder starts a request with the given opcode.
func NewRequestBuilder(op byte) *RequestBuilder {
	b := &RequestBuilder{}
	b.buf.WriteByte(op)
	return b
}

// WriteInt32 appends a big-endian int32.
func (b *RequestBuilder) WriteInt32(v int32) *RequestBuilder {
	var tmp [IntSize]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	b.buf.Write(tmp[:])
	return b
}

// Build returns the encoded request.
func (b *RequestBuilder) Build() []byte {
	return b.buf.Bytes()
}

// Len returns the current size of the request.
func (b *RequestBuilder) Len() int {
	return b.buf.Len()
}

// String returns a hex dump for debugging.
func (b *RequestBuilder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("Request[%d bytes]: %x", len(data), data)
}

// ---- Request encoders ----

// EncodeConfigure builds the handshake request.
// Format: [1][team_id:4]
func EncodeConfigure(teamID int32) []byte {
	return NewRequestBuilder(OpConfigure).WriteInt32(teamID).Build()
}

// EncodeLoadLevel builds a load-level request.
// Format: [51][level:4]
func EncodeLoadLevel(level int32) []byte {
	return NewRequestBuilder(OpLoadLevel).WriteInt32(level).Build()
}

// EncodeShot builds a cartesian or polar shoot request. The mode only selects
// the opcode; the parameter layout is identical for both modes.
// Format: [op][fx:4][fy:4][p1:4][p2:4][release_ms:4][tap_gap_ms:4]
func EncodeShot(shot Shot, mode ShotMode) []byte {
	b := NewRequestBuilder(shot.opcode(mode))
	for _, v := range shot.params() {
		b.WriteInt32(v)
	}
	return b.Build()
}

// EncodeQuery builds a request that carries no parameters
// (screenshot, state, scores, level, zoom, click, restart, is-level-over).
func EncodeQuery(op byte) []byte {
	return []byte{op}
}
