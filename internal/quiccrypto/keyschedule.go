package quiccrypto

// Suite identifies the AEAD/header-protection cipher suite negotiated by
// the TLS driver. QUIC v1 pins Initial packets to AES-128-GCM
// regardless of the suite the handshake eventually selects (RFC 9001
// Section 5.2); Handshake and 1-RTT epochs use whatever suite TLS
// negotiated.
type Suite int

const (
	SuiteAES128GCM Suite = iota
	SuiteChaCha20Poly1305
)

// KeySizeFor returns the AEAD key, IV and header-protection key sizes
// for suite, as used by DeriveKeys.
func KeySizeFor(suite Suite) (keyLen, ivLen, hpLen int) {
	switch suite {
	case SuiteChaCha20Poly1305:
		return 32, 12, 32
	default: // SuiteAES128GCM
		return 16, 12, 16
	}
}

// Keyset holds the per-epoch, per-direction packet-protection material
// derived from a traffic secret (spec.md Data Model: "Packet-Protection
// Keyset").
type Keyset struct {
	Suite Suite
	Key   []byte
	IV    []byte
	HP    []byte
}

// DeriveKeys derives {key, iv, hp} from a traffic secret using the QUIC
// labels "quic key", "quic iv", "quic hp" (RFC 9001 Section 5.1).
func DeriveKeys(secret []byte, suite Suite) *Keyset {
	keyLen, ivLen, hpLen := KeySizeFor(suite)
	return &Keyset{
		Suite: suite,
		Key:   HKDFExpandLabel(secret, "quic key", keyLen),
		IV:    HKDFExpandLabel(secret, "quic iv", ivLen),
		HP:    HKDFExpandLabel(secret, "quic hp", hpLen),
	}
}

// Zero overwrites the key material in place so it does not linger in
// memory after the connection that owned it is torn down (spec.md
// Section 5: "Cryptographic key material is zeroed on connection
// teardown").
func (k *Keyset) Zero() {
	if k == nil {
		return
	}
	for _, b := range [][]byte{k.Key, k.IV, k.HP} {
		for i := range b {
			b[i] = 0
		}
	}
}

// EpochKeys bundles the send/receive keysets for one packet-number-space
// epoch. Direction is relative to the connection's perspective: for a
// server, Send uses the server secret and Recv uses the client secret.
type EpochKeys struct {
	Send *Keyset
	Recv *Keyset
}

// DeriveInitialEpochKeys derives the Initial epoch keys for both
// directions from the connection's original destination CID (spec.md
// Data Model: "Initial keys are derived the moment the original DCID is
// observed").
func DeriveInitialEpochKeys(originalDCID []byte, serverPerspective bool) *EpochKeys {
	clientSecret, serverSecret := InitialSecrets(originalDCID)
	clientKeys := DeriveKeys(clientSecret, SuiteAES128GCM)
	serverKeys := DeriveKeys(serverSecret, SuiteAES128GCM)

	if serverPerspective {
		return &EpochKeys{Send: serverKeys, Recv: clientKeys}
	}
	return &EpochKeys{Send: clientKeys, Recv: serverKeys}
}

// DeriveEpochKeysFromSecrets derives one epoch's send/recv keysets from
// the TLS driver's exported client/server traffic secrets (used for the
// Handshake and Application epochs, and for 0-RTT from the resumption
// PSK-derived secret).
func DeriveEpochKeysFromSecrets(clientSecret, serverSecret []byte, suite Suite, serverPerspective bool) *EpochKeys {
	clientKeys := DeriveKeys(clientSecret, suite)
	serverKeys := DeriveKeys(serverSecret, suite)
	if serverPerspective {
		return &EpochKeys{Send: serverKeys, Recv: clientKeys}
	}
	return &EpochKeys{Send: clientKeys, Recv: serverKeys}
}
