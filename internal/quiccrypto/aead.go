package quiccrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrAeadAuthFailed is returned when AEAD decryption fails integrity
// verification. Per spec.md Section 7 the caller must drop the packet
// silently rather than report anything to the peer.
var ErrAeadAuthFailed = errors.New("quiccrypto: AEAD authentication failed")

// AEAD wraps a cipher.AEAD configured for one keyset, applying the
// QUIC nonce construction (RFC 9001 Section 5.3): left-pad the packet
// number to len(iv) and XOR with the static IV.
type AEAD struct {
	aead cipher.AEAD
	iv   []byte
}

// NewAEAD constructs the cipher.AEAD for a keyset's suite.
func NewAEAD(ks *Keyset) (*AEAD, error) {
	var aead cipher.AEAD
	var err error

	switch ks.Suite {
	case SuiteChaCha20Poly1305:
		aead, err = chacha20poly1305.New(ks.Key)
	default:
		var block cipher.Block
		block, err = aes.NewCipher(ks.Key)
		if err != nil {
			return nil, err
		}
		aead, err = cipher.NewGCM(block)
	}
	if err != nil {
		return nil, err
	}
	return &AEAD{aead: aead, iv: ks.IV}, nil
}

func (a *AEAD) nonce(pn uint64) []byte {
	nonce := make([]byte, len(a.iv))
	for i := 0; i < 8; i++ {
		nonce[len(nonce)-1-i] = byte(pn >> (8 * i))
	}
	for i := range nonce {
		nonce[i] ^= a.iv[i]
	}
	return nonce
}

// Seal encrypts plaintext with packet number pn and associated data
// aad, returning ciphertext||tag.
func (a *AEAD) Seal(dst, plaintext []byte, pn uint64, aad []byte) []byte {
	return a.aead.Seal(dst, a.nonce(pn), plaintext, aad)
}

// Open decrypts ciphertext (including its trailing tag) with packet
// number pn and associated data aad. It returns ErrAeadAuthFailed on
// any authentication failure, never a more specific cause, matching
// spec.md's "silently dropped" policy.
func (a *AEAD) Open(dst, ciphertext []byte, pn uint64, aad []byte) ([]byte, error) {
	out, err := a.aead.Open(dst, a.nonce(pn), ciphertext, aad)
	if err != nil {
		return nil, ErrAeadAuthFailed
	}
	return out, nil
}

// Overhead returns the AEAD tag length (16 bytes for both suites this
// core supports).
func (a *AEAD) Overhead() int {
	return a.aead.Overhead()
}
