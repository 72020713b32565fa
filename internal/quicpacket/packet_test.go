package quicpacket

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/ewancrowle/porter3/internal/quiccrypto"
)

func testKeyset(seed byte) *quiccrypto.Keyset {
	return &quiccrypto.Keyset{
		Suite: quiccrypto.SuiteAES128GCM,
		Key:   bytes.Repeat([]byte{seed}, 16),
		IV:    bytes.Repeat([]byte{seed + 1}, 12),
		HP:    bytes.Repeat([]byte{seed + 2}, 16),
	}
}

func TestLongHeaderBuildThenParseRoundTrip(t *testing.T) {
	ks := testKeyset(0x10)
	hp := quiccrypto.NewHeaderProtector(ks)
	aead, err := quiccrypto.NewAEAD(ks)
	if err != nil {
		t.Fatal(err)
	}

	dcid, _ := hex.DecodeString("8394c8f03e515708")
	scid, _ := hex.DecodeString("f0f0f0f0")
	plaintext := []byte{0x01, 0x00, 0x04, 'p', 'i', 'n', 'g'} // fake CRYPTO-ish payload

	packet := BuildLongHeaderPacket(TypeInitial, dcid, scid, nil, 0, plaintext, hp, aead)

	prefix, err := ParseLongHeaderPrefix(packet)
	if err != nil {
		t.Fatalf("ParseLongHeaderPrefix: %v", err)
	}
	if prefix.Type != TypeInitial {
		t.Errorf("type = %v, want Initial", prefix.Type)
	}
	if !bytes.Equal(prefix.DCID, dcid) {
		t.Errorf("dcid = %x, want %x", prefix.DCID, dcid)
	}

	parsed, err := RemoveHeaderProtectionAndDecrypt(packet, prefix, hp, aead)
	if err != nil {
		t.Fatalf("RemoveHeaderProtectionAndDecrypt: %v", err)
	}
	if parsed.PacketNumber != 0 {
		t.Errorf("pn = %d, want 0", parsed.PacketNumber)
	}
	if !bytes.Equal(parsed.Payload, plaintext) {
		t.Errorf("payload = %x, want %x", parsed.Payload, plaintext)
	}
	if parsed.FullLength != len(packet) {
		t.Errorf("full length = %d, want %d", parsed.FullLength, len(packet))
	}
}

func TestLongHeaderLengthFieldInvariant(t *testing.T) {
	ks := testKeyset(0x20)
	hp := quiccrypto.NewHeaderProtector(ks)
	aead, err := quiccrypto.NewAEAD(ks)
	if err != nil {
		t.Fatal(err)
	}

	dcid := []byte{1, 2, 3, 4}
	plaintext := bytes.Repeat([]byte{0xff}, 37)

	packet := BuildLongHeaderPacket(TypeHandshake, dcid, nil, nil, 300, plaintext, hp, aead)
	prefix, err := ParseLongHeaderPrefix(packet)
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := RemoveHeaderProtectionAndDecrypt(packet, prefix, hp, aead)
	if err != nil {
		t.Fatal(err)
	}

	wantLength := parsed.PNLen + len(plaintext) + AEADOverhead
	if prefix.Length != wantLength {
		t.Errorf("length field = %d, want pn_len(%d)+plaintext(%d)+tag(%d) = %d",
			prefix.Length, parsed.PNLen, len(plaintext), AEADOverhead, wantLength)
	}
}

func TestLongHeaderRejectsUnknownVersion(t *testing.T) {
	data := []byte{0xc0, 0xff, 0x00, 0x00, 0x21, 0x00, 0x00}
	_, err := ParseLongHeaderPrefix(data)
	if err != ErrUnknownVersion {
		t.Errorf("err = %v, want ErrUnknownVersion", err)
	}
}

func TestLongHeaderDetectsVersionNegotiation(t *testing.T) {
	data := []byte{0xc0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	_, err := ParseLongHeaderPrefix(data)
	if err != ErrVersionNegotiation {
		t.Errorf("err = %v, want ErrVersionNegotiation", err)
	}
}

func TestLongHeaderAuthFailureOnFlippedTagByte(t *testing.T) {
	ks := testKeyset(0x30)
	hp := quiccrypto.NewHeaderProtector(ks)
	aead, err := quiccrypto.NewAEAD(ks)
	if err != nil {
		t.Fatal(err)
	}

	dcid := []byte{9, 9, 9, 9, 9, 9, 9, 9}
	packet := BuildLongHeaderPacket(TypeInitial, dcid, nil, nil, 1, []byte("hello"), hp, aead)
	packet[len(packet)-1] ^= 0xff

	prefix, err := ParseLongHeaderPrefix(packet)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := RemoveHeaderProtectionAndDecrypt(packet, prefix, hp, aead); err != quiccrypto.ErrAeadAuthFailed {
		t.Errorf("err = %v, want ErrAeadAuthFailed", err)
	}
}

func TestShortHeaderBuildThenParseRoundTrip(t *testing.T) {
	ks := testKeyset(0x40)
	hp := quiccrypto.NewHeaderProtector(ks)
	aead, err := quiccrypto.NewAEAD(ks)
	if err != nil {
		t.Fatal(err)
	}

	dcid := bytes.Repeat([]byte{0xaa}, 8)
	plaintext := []byte("HTTP/3 response bytes")

	packet := BuildShortHeaderPacket(dcid, 0, plaintext, hp, aead)
	parsed, err := ParseAndDecryptShortHeader(packet, len(dcid), hp, aead)
	if err != nil {
		t.Fatalf("ParseAndDecryptShortHeader: %v", err)
	}
	if !bytes.Equal(parsed.Payload, plaintext) {
		t.Errorf("payload = %q, want %q", parsed.Payload, plaintext)
	}
	if !bytes.Equal(parsed.DCID, dcid) {
		t.Errorf("dcid = %x, want %x", parsed.DCID, dcid)
	}
}

func TestPacketNumberSpaceIndependence(t *testing.T) {
	// Initial PN=0 and Handshake PN=0 coalesced in one datagram: both
	// decrypt correctly with their own keysets, neither rejected for PN
	// reuse (spec.md scenario 6).
	initialKS := testKeyset(0x50)
	handshakeKS := testKeyset(0x60)

	initialHP := quiccrypto.NewHeaderProtector(initialKS)
	initialAEAD, _ := quiccrypto.NewAEAD(initialKS)
	handshakeHP := quiccrypto.NewHeaderProtector(handshakeKS)
	handshakeAEAD, _ := quiccrypto.NewAEAD(handshakeKS)

	dcid := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	initialPkt := BuildLongHeaderPacket(TypeInitial, dcid, nil, nil, 0, []byte("initial-crypto"), initialHP, initialAEAD)
	handshakePkt := BuildLongHeaderPacket(TypeHandshake, dcid, nil, nil, 0, []byte("handshake-crypto"), handshakeHP, handshakeAEAD)

	coalesced := append(append([]byte{}, initialPkt...), handshakePkt...)

	prefix1, err := ParseLongHeaderPrefix(coalesced)
	if err != nil {
		t.Fatal(err)
	}
	pkt1, err := RemoveHeaderProtectionAndDecrypt(coalesced, prefix1, initialHP, initialAEAD)
	if err != nil {
		t.Fatalf("initial decrypt: %v", err)
	}

	rest := coalesced[pkt1.FullLength:]
	prefix2, err := ParseLongHeaderPrefix(rest)
	if err != nil {
		t.Fatal(err)
	}
	pkt2, err := RemoveHeaderProtectionAndDecrypt(rest, prefix2, handshakeHP, handshakeAEAD)
	if err != nil {
		t.Fatalf("handshake decrypt: %v", err)
	}

	if pkt1.PacketNumber != 0 || pkt2.PacketNumber != 0 {
		t.Fatalf("expected both PNs to be 0 independently, got %d and %d", pkt1.PacketNumber, pkt2.PacketNumber)
	}
	if string(pkt1.Payload) != "initial-crypto" || string(pkt2.Payload) != "handshake-crypto" {
		t.Fatalf("payload mismatch: %q / %q", pkt1.Payload, pkt2.Payload)
	}
}
