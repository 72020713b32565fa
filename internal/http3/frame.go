package http3

import (
	"errors"

	"github.com/ewancrowle/porter3/internal/quicwire"
)

// Frame types this core emits and recognises (RFC 9114 §7.2). Settings,
// goaway and push-related frames are out of scope — a single
// request/response per connection never negotiates settings.
const (
	FrameTypeData    = 0x00
	FrameTypeHeaders = 0x01
)

// ErrFrameTruncated is returned when a frame's declared length runs
// past the end of the buffer.
var ErrFrameTruncated = errors.New("http3: truncated frame")

// Frame is one parsed HTTP/3 frame.
type Frame struct {
	Type    uint64
	Payload []byte
}

// BuildHeadersFrame wraps a QPACK field-section payload in a HEADERS
// frame: varint(type=0x01) || varint(length) || payload.
func BuildHeadersFrame(payload []byte) []byte {
	buf := quicwire.AppendVarInt(nil, FrameTypeHeaders)
	buf = quicwire.AppendVarInt(buf, uint64(len(payload)))
	return append(buf, payload...)
}

// BuildDataFrame wraps a body in a DATA frame: varint(type=0x00) ||
// varint(length) || body.
func BuildDataFrame(body []byte) []byte {
	buf := quicwire.AppendVarInt(nil, FrameTypeData)
	buf = quicwire.AppendVarInt(buf, uint64(len(body)))
	return append(buf, body...)
}

// ParseFrame decodes one frame from the front of data, returning the
// frame and the number of bytes consumed.
func ParseFrame(data []byte) (*Frame, int, error) {
	typ, n1, err := quicwire.ReadVarInt(data)
	if err != nil {
		return nil, 0, err
	}
	length, n2, err := quicwire.ReadVarInt(data[n1:])
	if err != nil {
		return nil, 0, err
	}
	start := n1 + n2
	end := start + int(length)
	if end > len(data) {
		return nil, 0, ErrFrameTruncated
	}
	return &Frame{Type: typ, Payload: data[start:end]}, end, nil
}
