// Package quiccrypto implements the QUIC packet-protection primitives:
// HKDF-Expand-Label, the Initial/Handshake/1-RTT/0-RTT key schedule, the
// AES-128-GCM and ChaCha20-Poly1305 AEAD suites, and header protection.
//
// Grounded in the teacher's internal/quic/decrypt.go (deriveInitialKeys,
// deriveSecret, setupKeys), generalized from "client Initial keys only"
// to every epoch, direction and cipher suite the TLS driver can select.
package quiccrypto

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
)

// quicV1Salt is the RFC 9001 Section 5.2 Initial salt for QUIC v1.
var quicV1Salt = []byte{
	0x38, 0x76, 0x2c, 0xf7, 0xf5, 0x59, 0x34, 0xb3, 0x4d, 0x17, 0x9a, 0xe6,
	0xa4, 0xc8, 0x0c, 0xad, 0xcc, 0xbb, 0x7f, 0x0a,
}

// HKDFExpandLabel implements the TLS 1.3 HKDF-Expand-Label construction
// (RFC 8446 Section 7.1) with an empty context, as used by QUIC to
// derive key schedule secrets and per-epoch keys (RFC 9001 Section 5.1).
func HKDFExpandLabel(secret []byte, label string, length int) []byte {
	fullLabel := "tls13 " + label
	info := make([]byte, 0, 2+1+len(fullLabel)+1)
	info = binary.BigEndian.AppendUint16(info, uint16(length))
	info = append(info, byte(len(fullLabel)))
	info = append(info, fullLabel...)
	info = append(info, 0) // empty context

	out := make([]byte, length)
	r := hkdf.Expand(sha256.New, secret, info)
	if _, err := io.ReadFull(r, out); err != nil {
		// Expand only fails when the requested length exceeds
		// 255*HashLen, which never happens for QUIC key sizes.
		panic("quiccrypto: hkdf expand failed: " + err.Error())
	}
	return out
}

// InitialSecrets derives the client and server Initial secrets (RFC
// 9001 Section 5.2) from the original destination connection ID.
func InitialSecrets(originalDCID []byte) (clientInitial, serverInitial []byte) {
	initialSecret := hkdf.Extract(sha256.New, originalDCID, quicV1Salt)
	clientInitial = HKDFExpandLabel(initialSecret, "client in", sha256.Size)
	serverInitial = HKDFExpandLabel(initialSecret, "server in", sha256.Size)
	return clientInitial, serverInitial
}
