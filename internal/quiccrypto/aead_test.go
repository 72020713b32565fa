package quiccrypto

import (
	"bytes"
	"testing"
)

func TestAEADRoundTrip(t *testing.T) {
	for _, suite := range []Suite{SuiteAES128GCM, SuiteChaCha20Poly1305} {
		keyLen, ivLen, _ := KeySizeFor(suite)
		ks := &Keyset{Suite: suite, Key: bytes.Repeat([]byte{0x42}, keyLen), IV: bytes.Repeat([]byte{0x24}, ivLen)}
		a, err := NewAEAD(ks)
		if err != nil {
			t.Fatalf("suite %v: NewAEAD: %v", suite, err)
		}

		plaintext := []byte("HEADERS+DATA over 1-RTT")
		aad := []byte("unprotected header bytes")

		ciphertext := a.Seal(nil, plaintext, 7, aad)
		if len(ciphertext) != len(plaintext)+a.Overhead() {
			t.Errorf("suite %v: ciphertext length = %d, want %d", suite, len(ciphertext), len(plaintext)+a.Overhead())
		}

		got, err := a.Open(nil, ciphertext, 7, aad)
		if err != nil {
			t.Fatalf("suite %v: Open: %v", suite, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("suite %v: round trip mismatch: got %q want %q", suite, got, plaintext)
		}
	}
}

func TestAEADAuthFailureOnFlippedTagByte(t *testing.T) {
	ks := &Keyset{Suite: SuiteAES128GCM, Key: bytes.Repeat([]byte{0x1}, 16), IV: bytes.Repeat([]byte{0x2}, 12)}
	a, err := NewAEAD(ks)
	if err != nil {
		t.Fatal(err)
	}

	ciphertext := a.Seal(nil, []byte("plaintext"), 0, []byte("aad"))
	ciphertext[len(ciphertext)-1] ^= 0xff

	if _, err := a.Open(nil, ciphertext, 0, []byte("aad")); err != ErrAeadAuthFailed {
		t.Fatalf("expected ErrAeadAuthFailed, got %v", err)
	}
}

func TestAEADWrongPacketNumberFailsAuth(t *testing.T) {
	ks := &Keyset{Suite: SuiteAES128GCM, Key: bytes.Repeat([]byte{0x1}, 16), IV: bytes.Repeat([]byte{0x2}, 12)}
	a, err := NewAEAD(ks)
	if err != nil {
		t.Fatal(err)
	}

	ciphertext := a.Seal(nil, []byte("plaintext"), 5, []byte("aad"))
	if _, err := a.Open(nil, ciphertext, 6, []byte("aad")); err != ErrAeadAuthFailed {
		t.Fatalf("expected ErrAeadAuthFailed for wrong PN nonce, got %v", err)
	}
}
