package quicpacket

import (
	"encoding/binary"

	"github.com/ewancrowle/porter3/internal/quiccrypto"
	"github.com/ewancrowle/porter3/internal/quicwire"
)

// LongHeaderPacket is a parsed and decrypted long-header packet
// (Initial, 0-RTT or Handshake; Retry is out of scope per spec.md
// Non-goals on retry-induced rekeying).
type LongHeaderPacket struct {
	Type         LongHeaderType
	Version      uint32
	DCID         []byte
	SCID         []byte
	Token        []byte // Initial only
	PacketNumber uint64
	Payload      []byte // decrypted plaintext frames
	HeaderLen    int    // bytes of header before the packet number field
	PNLen        int
	FullLength   int // total bytes this packet occupies in the datagram, for coalescing
}

// LongHeaderPrefix is the invariant portion of a long header that
// ParseLongHeaderPrefix reads — everything the wire carries in the
// clear, up to and including the Length varint — without touching
// header protection. It exists so the
// caller can look up/derive the Initial keys for this DCID before
// header protection is removed (spec.md §4.D step 7).
type LongHeaderPrefix struct {
	Type      LongHeaderType
	Version   uint32
	DCID      []byte
	SCID      []byte
	Token     []byte
	PNOffset  int // offset of the (still-protected) packet number field
	Length    int // Length field value: pn_length + ciphertext_length
	HeaderLen int // == PNOffset
}

// ParseLongHeaderPrefix parses the clear-text prefix of a long-header
// packet. It does not interpret the Length field's bytes as anything
// but an opaque varint read — per spec.md's header-protection-ordering
// pitfall, the Length field itself is never protected (only the first
// byte and PN are), so reading it here is safe and required to find
// the PN offset.
func ParseLongHeaderPrefix(data []byte) (*LongHeaderPrefix, error) {
	if len(data) < 5 {
		return nil, ErrTruncated
	}
	firstByte := data[0]
	if firstByte&0x80 == 0 {
		return nil, ErrInvalidFirstByte
	}
	if firstByte&0x40 == 0 {
		return nil, ErrInvalidFirstByte
	}

	version := binary.BigEndian.Uint32(data[1:5])
	if version == 0 {
		return nil, ErrVersionNegotiation
	}
	if version != QUICVersion1 {
		return nil, ErrUnknownVersion
	}

	p := &LongHeaderPrefix{
		Type:    LongHeaderType((firstByte & 0x30) >> 4),
		Version: version,
	}

	curr := 5
	if len(data) < curr+1 {
		return nil, ErrTruncated
	}
	dcidLen := int(data[curr])
	curr++
	if len(data) < curr+dcidLen {
		return nil, ErrTruncated
	}
	p.DCID = data[curr : curr+dcidLen]
	curr += dcidLen

	if len(data) < curr+1 {
		return nil, ErrTruncated
	}
	scidLen := int(data[curr])
	curr++
	if len(data) < curr+scidLen {
		return nil, ErrTruncated
	}
	p.SCID = data[curr : curr+scidLen]
	curr += scidLen

	if p.Type == TypeInitial {
		tokenLen, n, err := quicwire.ReadVarInt(data[curr:])
		if err != nil {
			return nil, ErrTruncated
		}
		curr += n
		if len(data) < curr+int(tokenLen) {
			return nil, ErrTruncated
		}
		p.Token = data[curr : curr+int(tokenLen)]
		curr += int(tokenLen)
	}

	length, n, err := quicwire.ReadVarInt(data[curr:])
	if err != nil {
		return nil, ErrTruncated
	}
	curr += n

	p.PNOffset = curr
	p.Length = int(length)
	p.HeaderLen = curr
	return p, nil
}

// RemoveHeaderProtectionAndDecrypt finishes parsing a long-header
// packet whose clear-text prefix has already been read by
// ParseLongHeaderPrefix: it removes header protection with hp, reads
// the now-clear packet number, and decrypts the payload with aead.
//
// datagram must start at byte 0 of this (possibly coalesced) packet.
// The order here is load-bearing: the Length field is already known
// from the prefix parse (it was never protected), but the packet
// number bytes are protected and must not be trusted until after this
// call (spec.md §4.D / §9 header-protection-ordering pitfall).
func RemoveHeaderProtectionAndDecrypt(datagram []byte, prefix *LongHeaderPrefix, hp *quiccrypto.HeaderProtector, aead *quiccrypto.AEAD) (*LongHeaderPacket, error) {
	pnOffset := prefix.PNOffset
	fullLength := pnOffset + prefix.Length
	if len(datagram) < fullLength {
		return nil, ErrTruncated
	}

	// Work on a copy of the header+PN region so concurrent coalesced
	// packets in the same datagram are unaffected.
	buf := make([]byte, fullLength)
	copy(buf, datagram[:fullLength])

	// The sample position always assumes a 4-byte packet number (RFC
	// 9001 Section 5.4.2), independent of the packet's actual PN
	// length, which isn't known until after the first byte is
	// unprotected below.
	sampleStart := pnOffset + quiccrypto.SampleOffset
	if len(buf) < sampleStart+quiccrypto.SampleLen {
		return nil, ErrTruncated
	}
	mask, err := hp.Mask(buf[sampleStart : sampleStart+quiccrypto.SampleLen])
	if err != nil {
		return nil, err
	}

	buf[0] ^= mask[0] & 0x0f
	pnLen := int(buf[0]&0x03) + 1
	for i := 0; i < pnLen; i++ {
		buf[pnOffset+i] ^= mask[i+1]
	}

	pn := decodePacketNumber(buf[pnOffset : pnOffset+pnLen])

	aad := make([]byte, pnOffset+pnLen)
	copy(aad, buf[:pnOffset+pnLen])

	ciphertext := datagram[pnOffset+pnLen : fullLength]
	plaintext, err := aead.Open(nil, ciphertext, pn, aad)
	if err != nil {
		return nil, err
	}

	return &LongHeaderPacket{
		Type:         prefix.Type,
		Version:      prefix.Version,
		DCID:         prefix.DCID,
		SCID:         prefix.SCID,
		Token:        prefix.Token,
		PacketNumber: pn,
		Payload:      plaintext,
		HeaderLen:    prefix.HeaderLen,
		PNLen:        pnLen,
		FullLength:   fullLength,
	}, nil
}

// BuildLongHeaderPacket constructs and protects a long-header packet
// carrying plaintext (the encoded frames). pn is this epoch's next
// outgoing packet number.
func BuildLongHeaderPacket(typ LongHeaderType, dcid, scid, token []byte, pn uint64, plaintext []byte, hp *quiccrypto.HeaderProtector, aead *quiccrypto.AEAD) []byte {
	pnLen := pnLengthFor(pn)

	header := make([]byte, 0, 32+len(dcid)+len(scid)+len(token))
	firstByte := byte(0xc0) | byte(typ)<<4 | byte(pnLen-1)
	header = append(header, firstByte)
	header = binary.BigEndian.AppendUint32(header, QUICVersion1)
	header = append(header, byte(len(dcid)))
	header = append(header, dcid...)
	header = append(header, byte(len(scid)))
	header = append(header, scid...)
	if typ == TypeInitial {
		header = quicwire.AppendVarInt(header, uint64(len(token)))
		header = append(header, token...)
	}

	// Length = pn_length + ciphertext_length (spec.md Data Model invariant).
	ciphertextLen := len(plaintext) + AEADOverhead
	lengthField := uint64(pnLen + ciphertextLen)
	header = quicwire.AppendVarInt(header, lengthField)

	pnOffset := len(header)
	header = append(header, encodePacketNumber(pn, pnLen)...)

	aad := header // header bytes up to and including the unprotected PN
	packet := aead.Seal(append([]byte{}, aad...), plaintext, pn, aad)

	if err := applyHeaderProtection(hp, packet, pnOffset, pnLen, 0x0f); err != nil {
		// Only failure mode is a too-short sample, impossible here since
		// we just appended AEADOverhead>=16 bytes of ciphertext.
		panic("quicpacket: header protection failed on freshly built packet: " + err.Error())
	}

	return packet
}
