package quicpacket

import "github.com/ewancrowle/porter3/internal/quiccrypto"

// ShortHeaderPacket is a parsed and decrypted 1-RTT packet.
type ShortHeaderPacket struct {
	DCID         []byte
	KeyPhase     bool
	PacketNumber uint64
	Payload      []byte
	FullLength   int
}

// ParseAndDecryptShortHeader parses a 1-RTT packet. dcidLen is the
// connection's negotiated DCID length (spec.md §4.D: "DCID is
// variable-length and taken at a fixed length agreed per connection;
// typical: 8 bytes") since the short header carries no length prefix
// for it.
func ParseAndDecryptShortHeader(datagram []byte, dcidLen int, hp *quiccrypto.HeaderProtector, aead *quiccrypto.AEAD) (*ShortHeaderPacket, error) {
	if len(datagram) < 1 {
		return nil, ErrTruncated
	}
	if datagram[0]&0x80 != 0 {
		return nil, ErrInvalidFirstByte
	}
	if datagram[0]&0x40 == 0 {
		return nil, ErrInvalidFirstByte
	}

	pnOffset := 1 + dcidLen
	if len(datagram) < pnOffset {
		return nil, ErrTruncated
	}
	dcid := datagram[1:pnOffset]

	buf := make([]byte, len(datagram))
	copy(buf, datagram)

	sampleStart := pnOffset + quiccrypto.SampleOffset
	if len(buf) < sampleStart+quiccrypto.SampleLen {
		return nil, ErrTruncated
	}
	mask, err := hp.Mask(buf[sampleStart : sampleStart+quiccrypto.SampleLen])
	if err != nil {
		return nil, err
	}

	buf[0] ^= mask[0] & 0x1f
	pnLen := int(buf[0]&0x03) + 1
	for i := 0; i < pnLen; i++ {
		buf[pnOffset+i] ^= mask[i+1]
	}
	keyPhase := buf[0]&0x04 != 0
	pn := decodePacketNumber(buf[pnOffset : pnOffset+pnLen])

	aad := make([]byte, pnOffset+pnLen)
	copy(aad, buf[:pnOffset+pnLen])

	ciphertext := datagram[pnOffset+pnLen:]
	plaintext, err := aead.Open(nil, ciphertext, pn, aad)
	if err != nil {
		return nil, err
	}

	return &ShortHeaderPacket{
		DCID:         dcid,
		KeyPhase:     keyPhase,
		PacketNumber: pn,
		Payload:      plaintext,
		FullLength:   len(datagram),
	}, nil
}

// BuildShortHeaderPacket constructs and protects a 1-RTT packet.
func BuildShortHeaderPacket(dcid []byte, pn uint64, plaintext []byte, hp *quiccrypto.HeaderProtector, aead *quiccrypto.AEAD) []byte {
	pnLen := pnLengthFor(pn)

	header := make([]byte, 0, 1+len(dcid)+pnLen)
	firstByte := byte(0x40) | byte(pnLen-1) // form=0, fixed=1, spin=0, key phase=0
	header = append(header, firstByte)
	header = append(header, dcid...)
	pnOffset := len(header)
	header = append(header, encodePacketNumber(pn, pnLen)...)

	aad := header
	packet := aead.Seal(append([]byte{}, aad...), plaintext, pn, aad)

	if err := applyHeaderProtection(hp, packet, pnOffset, pnLen, 0x1f); err != nil {
		panic("quicpacket: header protection failed on freshly built short header packet: " + err.Error())
	}

	return packet
}
