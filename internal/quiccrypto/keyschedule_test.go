package quiccrypto

import (
	"encoding/hex"
	"testing"
)

// Test vectors from RFC 9001 Appendix A.1, the same fixture the teacher
// used in internal/quic/parser_test.go.
func TestDeriveInitialEpochKeys(t *testing.T) {
	dcid, _ := hex.DecodeString("8394c8f03e515708")
	ek := DeriveInitialEpochKeys(dcid, false /* client perspective */)

	client := ek.Send
	if len(client.Key) != 16 {
		t.Errorf("expected 16 byte key, got %d", len(client.Key))
	}
	if len(client.IV) != 12 {
		t.Errorf("expected 12 byte IV, got %d", len(client.IV))
	}
	if len(client.HP) != 16 {
		t.Errorf("expected 16 byte HP key, got %d", len(client.HP))
	}

	wantKey := "1f369613dd76d5467730efcbe3b1a22d"
	wantIV := "fa044b2f42a3fd3b46fb255c"
	wantHP := "9f50449e04a0e810283a1e9933adedd2"

	if hex.EncodeToString(client.Key) != wantKey {
		t.Errorf("client key = %x, want %s", client.Key, wantKey)
	}
	if hex.EncodeToString(client.IV) != wantIV {
		t.Errorf("client iv = %x, want %s", client.IV, wantIV)
	}
	if hex.EncodeToString(client.HP) != wantHP {
		t.Errorf("client hp = %x, want %s", client.HP, wantHP)
	}
}

func TestDeriveInitialEpochKeysPerspectiveSwap(t *testing.T) {
	dcid, _ := hex.DecodeString("8394c8f03e515708")

	serverView := DeriveInitialEpochKeys(dcid, true)
	clientView := DeriveInitialEpochKeys(dcid, false)

	// What the server sends, the client receives, and vice versa.
	if hex.EncodeToString(serverView.Send.Key) != hex.EncodeToString(clientView.Recv.Key) {
		t.Error("server send keys should equal client recv keys")
	}
	if hex.EncodeToString(serverView.Recv.Key) != hex.EncodeToString(clientView.Send.Key) {
		t.Error("server recv keys should equal client send keys")
	}
}

func TestKeysetZero(t *testing.T) {
	ks := DeriveKeys(make([]byte, 32), SuiteAES128GCM)
	ks.Zero()
	for _, b := range [][]byte{ks.Key, ks.IV, ks.HP} {
		for _, v := range b {
			if v != 0 {
				t.Fatal("expected all key material to be zeroed")
			}
		}
	}
}

func TestChaChaKeySizes(t *testing.T) {
	keyLen, ivLen, hpLen := KeySizeFor(SuiteChaCha20Poly1305)
	if keyLen != 32 || ivLen != 12 || hpLen != 32 {
		t.Errorf("unexpected ChaCha20-Poly1305 sizes: key=%d iv=%d hp=%d", keyLen, ivLen, hpLen)
	}
}
