// Package quicpacket implements QUIC long- and short-header packet
// parsing and construction: header protection removal/application and
// AEAD payload protection with the header bytes (including the
// unprotected packet number) as associated data.
//
// Grounded in the teacher's internal/quic/decrypt.go (ParsePacket,
// DecryptInitialPacket), generalized from "parse-and-decrypt an Initial
// packet only" to parsing and building every long-header type plus the
// 1-RTT short header, across all epochs.
package quicpacket

import (
	"errors"

	"github.com/ewancrowle/porter3/internal/quiccrypto"
)

// QUICVersion1 is the wire version this core speaks (RFC 9000).
const QUICVersion1 = 0x00000001

// LongHeaderType identifies the four long-header packet types (RFC 9000
// Section 17.2).
type LongHeaderType byte

const (
	TypeInitial   LongHeaderType = 0x00
	TypeZeroRTT   LongHeaderType = 0x01
	TypeHandshake LongHeaderType = 0x02
	TypeRetry     LongHeaderType = 0x03
)

var (
	ErrTruncated         = errors.New("quicpacket: packet shorter than indicated")
	ErrUnknownVersion    = errors.New("quicpacket: unsupported QUIC version")
	ErrVersionNegotiation = errors.New("quicpacket: version negotiation packet")
	ErrInvalidFirstByte  = errors.New("quicpacket: invalid first byte")
)

// AEADOverhead is the authentication tag length for both AEAD suites
// this core supports.
const AEADOverhead = 16

// aeadNonceLen is the standard AEAD IV/nonce length used by both suites.
const aeadNonceLen = 12

// applyHeaderProtection derives the mask from sample and applies it to
// firstByteMask (0x0f for long headers, 0x1f for short) and the packet
// number bytes found at data[pnOffset:pnOffset+pnLen]. It mutates data
// in place. The same function protects and unprotects: XOR is its own
// inverse (spec.md Testable Properties: "header protection is an
// involution").
func applyHeaderProtection(hp *quiccrypto.HeaderProtector, data []byte, pnOffset, pnLen int, firstByteMask byte) error {
	sampleStart := pnOffset + quiccrypto.SampleOffset
	if len(data) < sampleStart+quiccrypto.SampleLen {
		return ErrTruncated
	}
	mask, err := hp.Mask(data[sampleStart : sampleStart+quiccrypto.SampleLen])
	if err != nil {
		return err
	}

	data[0] ^= mask[0] & firstByteMask
	for i := 0; i < pnLen; i++ {
		data[pnOffset+i] ^= mask[i+1]
	}
	return nil
}

// decodePacketNumber reads a pnLen-byte big-endian packet number.
func decodePacketNumber(b []byte) uint64 {
	var pn uint64
	for _, v := range b {
		pn = (pn << 8) | uint64(v)
	}
	return pn
}

// encodePacketNumber writes pn into a pnLen-byte big-endian field.
func encodePacketNumber(pn uint64, pnLen int) []byte {
	out := make([]byte, pnLen)
	for i := 0; i < pnLen; i++ {
		out[pnLen-1-i] = byte(pn >> (8 * i))
	}
	return out
}

// pnLengthFor returns the number of bytes needed to encode pn in the
// independent 1-4 byte packet-number form (RFC 9000 Section 17.1),
// choosing the narrowest width — this core always has a contiguous
// acked range of one (single-flight handshake, no loss recovery), so
// the narrowest encoding that fits pn itself is always sufficient.
func pnLengthFor(pn uint64) int {
	switch {
	case pn < 1<<8:
		return 1
	case pn < 1<<16:
		return 2
	case pn < 1<<24:
		return 3
	default:
		return 4
	}
}
