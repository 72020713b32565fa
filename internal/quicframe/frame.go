// Package quicframe implements the QUIC frame subset this core needs:
// PADDING, PING, ACK (emit-only), CRYPTO and the STREAM subset used to
// carry HTTP/3 on stream 0.
//
// Grounded in the teacher's internal/quic/parser.go (CryptoAssembler),
// generalized from the scalar high-water-mark offset tracking the
// teacher used for SNI-peeking into the buffered-gap reassembly form
// spec.md §9 requires for correctness.
package quicframe

import (
	"errors"

	"github.com/ewancrowle/porter3/internal/quicwire"
)

// Frame types (RFC 9000 Section 19).
const (
	TypePadding byte = 0x00
	TypePing    byte = 0x01
	TypeAck     byte = 0x02
	TypeAckECN  byte = 0x03
	TypeCrypto  byte = 0x06
	// TypeStream covers the 0x08-0x0f STREAM frame family; the low three
	// bits encode the OFF/LEN/FIN flags (RFC 9000 Section 19.8).
	TypeStreamBase byte = 0x08
	TypeStreamMax  byte = 0x0f
)

// ErrUnknownFrame is returned when a frame-type byte is not one of the
// types this core understands. Per spec.md §4.E the connection may
// close on this.
var ErrUnknownFrame = errors.New("quicframe: unknown frame type")

// ErrTruncated is returned when a frame's declared fields run past the
// end of the buffer.
var ErrTruncated = errors.New("quicframe: truncated frame")

// Frame is a single decoded frame.
type Frame struct {
	Type byte

	// CRYPTO
	CryptoOffset uint64
	CryptoData   []byte

	// STREAM
	StreamID     uint64
	StreamOffset uint64
	StreamData   []byte
	StreamFin    bool

	// PING sets AckEliciting; so does CRYPTO and STREAM.
	AckEliciting bool
}

// ParseFrames decodes every frame in a plaintext packet payload.
func ParseFrames(payload []byte) ([]Frame, error) {
	var frames []Frame
	curr := 0
	for curr < len(payload) {
		f, n, err := parseOne(payload[curr:])
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
		curr += n
	}
	return frames, nil
}

func parseOne(data []byte) (Frame, int, error) {
	typ := data[0]
	switch {
	case typ == TypePadding:
		return Frame{Type: TypePadding}, 1, nil
	case typ == TypePing:
		return Frame{Type: TypePing, AckEliciting: true}, 1, nil
	case typ == TypeAck || typ == TypeAckECN:
		return parseAck(data)
	case typ == TypeCrypto:
		return parseCrypto(data)
	case typ >= TypeStreamBase && typ <= TypeStreamMax:
		return parseStream(data)
	default:
		return Frame{}, 0, ErrUnknownFrame
	}
}

// parseAck skips over a received ACK frame's wire format without
// acting on it: this core is emit-only for ACKs (spec.md §4.E and §1
// Non-goals exclude loss detection), but it still must correctly
// consume the frame's bytes to continue parsing whatever follows it in
// the packet.
func parseAck(data []byte) (Frame, int, error) {
	curr := 1
	_, n, err := quicwire.ReadVarInt(data[curr:]) // largest acknowledged
	if err != nil {
		return Frame{}, 0, ErrTruncated
	}
	curr += n

	_, n, err = quicwire.ReadVarInt(data[curr:]) // ACK delay
	if err != nil {
		return Frame{}, 0, ErrTruncated
	}
	curr += n

	rangeCount, n, err := quicwire.ReadVarInt(data[curr:])
	if err != nil {
		return Frame{}, 0, ErrTruncated
	}
	curr += n

	_, n, err = quicwire.ReadVarInt(data[curr:]) // first ACK range
	if err != nil {
		return Frame{}, 0, ErrTruncated
	}
	curr += n

	for i := uint64(0); i < rangeCount; i++ {
		_, n, err := quicwire.ReadVarInt(data[curr:]) // gap
		if err != nil {
			return Frame{}, 0, ErrTruncated
		}
		curr += n
		_, n, err = quicwire.ReadVarInt(data[curr:]) // ACK range length
		if err != nil {
			return Frame{}, 0, ErrTruncated
		}
		curr += n
	}

	if data[0] == TypeAckECN {
		for i := 0; i < 3; i++ { // ECT0, ECT1, ECN-CE counts
			_, n, err := quicwire.ReadVarInt(data[curr:])
			if err != nil {
				return Frame{}, 0, ErrTruncated
			}
			curr += n
		}
	}

	return Frame{Type: data[0]}, curr, nil
}

func parseCrypto(data []byte) (Frame, int, error) {
	curr := 1
	offset, n, err := quicwire.ReadVarInt(data[curr:])
	if err != nil {
		return Frame{}, 0, ErrTruncated
	}
	curr += n

	length, n, err := quicwire.ReadVarInt(data[curr:])
	if err != nil {
		return Frame{}, 0, ErrTruncated
	}
	curr += n

	if len(data) < curr+int(length) {
		return Frame{}, 0, ErrTruncated
	}

	f := Frame{
		Type:         TypeCrypto,
		CryptoOffset: offset,
		CryptoData:   data[curr : curr+int(length)],
		AckEliciting: true,
	}
	return f, curr + int(length), nil
}

func parseStream(data []byte) (Frame, int, error) {
	typ := data[0]
	hasOffset := typ&0x04 != 0
	hasLen := typ&0x02 != 0
	fin := typ&0x01 != 0

	curr := 1
	streamID, n, err := quicwire.ReadVarInt(data[curr:])
	if err != nil {
		return Frame{}, 0, ErrTruncated
	}
	curr += n

	var offset uint64
	if hasOffset {
		offset, n, err = quicwire.ReadVarInt(data[curr:])
		if err != nil {
			return Frame{}, 0, ErrTruncated
		}
		curr += n
	}

	var length int
	if hasLen {
		l, n, err := quicwire.ReadVarInt(data[curr:])
		if err != nil {
			return Frame{}, 0, ErrTruncated
		}
		curr += n
		length = int(l)
	} else {
		length = len(data) - curr
	}

	if len(data) < curr+length {
		return Frame{}, 0, ErrTruncated
	}

	f := Frame{
		Type:         typ,
		StreamID:     streamID,
		StreamOffset: offset,
		StreamData:   data[curr : curr+length],
		StreamFin:    fin,
		AckEliciting: true,
	}
	return f, curr + length, nil
}

// AppendCryptoFrame appends a CRYPTO frame carrying data at offset.
func AppendCryptoFrame(dst []byte, offset uint64, data []byte) []byte {
	dst = append(dst, TypeCrypto)
	dst = quicwire.AppendVarInt(dst, offset)
	dst = quicwire.AppendVarInt(dst, uint64(len(data)))
	dst = append(dst, data...)
	return dst
}

// AppendStreamFrame appends a STREAM frame for streamID carrying data
// at offset, with explicit length and fin bit set as requested.
func AppendStreamFrame(dst []byte, streamID, offset uint64, data []byte, fin bool) []byte {
	typ := TypeStreamBase | 0x04 /* OFF */ | 0x02 /* LEN */
	if fin {
		typ |= 0x01
	}
	dst = append(dst, typ)
	dst = quicwire.AppendVarInt(dst, streamID)
	dst = quicwire.AppendVarInt(dst, offset)
	dst = quicwire.AppendVarInt(dst, uint64(len(data)))
	dst = append(dst, data...)
	return dst
}

// AppendAckFrame appends an emit-only ACK frame: largest acknowledged,
// ack delay 0, a single ACK range of width 0 (spec.md §4.E: "construct
// with largest-ack, ack-delay=0, no ranges").
func AppendAckFrame(dst []byte, largestAcked uint64) []byte {
	dst = append(dst, TypeAck)
	dst = quicwire.AppendVarInt(dst, largestAcked)
	dst = quicwire.AppendVarInt(dst, 0) // ACK Delay
	dst = quicwire.AppendVarInt(dst, 0) // ACK Range Count
	dst = quicwire.AppendVarInt(dst, 0) // First ACK Range
	return dst
}

// AppendPing appends a PING frame.
func AppendPing(dst []byte) []byte {
	return append(dst, TypePing)
}

// AppendPadding appends n PADDING frames (each is a single zero byte).
func AppendPadding(dst []byte, n int) []byte {
	for i := 0; i < n; i++ {
		dst = append(dst, TypePadding)
	}
	return dst
}
