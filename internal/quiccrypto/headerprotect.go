package quiccrypto

import (
	"crypto/aes"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20"
)

var errShortSample = errors.New("quiccrypto: header protection sample must be 16 bytes")

// SampleOffset is the number of bytes past the start of the packet
// number field at which the header-protection sample begins, assuming
// (per RFC 9001 Section 5.4.2) a 4-byte packet number.
const SampleOffset = 4

// SampleLen is the number of ciphertext bytes sampled for header
// protection.
const SampleLen = 16

// HeaderProtector produces the 5-byte mask used to protect/unprotect a
// packet's first byte and packet-number bytes.
type HeaderProtector struct {
	suite Suite
	hpKey []byte
	block []byte // scratch for AES suites
}

// NewHeaderProtector builds a protector for the given keyset.
func NewHeaderProtector(ks *Keyset) *HeaderProtector {
	return &HeaderProtector{suite: ks.Suite, hpKey: ks.HP}
}

// Mask computes the 5-byte header-protection mask for sample (16 bytes
// of packet ciphertext taken SampleOffset bytes past the start of the
// packet-number field).
//
// For AES suites the mask is the AES-ECB encryption of sample with the
// hp key (RFC 9001 Section 5.4.3) — a single-block Block.Encrypt call
// is ECB for exactly one block, the same approach the teacher uses in
// internal/quic/decrypt.go. For ChaCha20 the first four sample bytes
// are the block counter and the remaining twelve are the nonce (RFC
// 9001 Section 5.4.4).
func (h *HeaderProtector) Mask(sample []byte) ([]byte, error) {
	if len(sample) != SampleLen {
		return nil, errShortSample
	}

	if h.suite == SuiteChaCha20Poly1305 {
		counter := binary.LittleEndian.Uint32(sample[:4])
		nonce := sample[4:16]
		c, err := chacha20.NewUnauthenticatedCipher(h.hpKey, nonce)
		if err != nil {
			return nil, err
		}
		c.SetCounter(counter)
		mask := make([]byte, 5)
		c.XORKeyStream(mask, mask)
		return mask, nil
	}

	block, err := aes.NewCipher(h.hpKey)
	if err != nil {
		return nil, err
	}
	out := make([]byte, aes.BlockSize)
	block.Encrypt(out, sample)
	return out[:5], nil
}
