package tlsdriver

import (
	"crypto/tls"
	"testing"

	"github.com/ewancrowle/porter3/internal/quiccrypto"
)

func TestSuiteSelection(t *testing.T) {
	if got := Suite(tls.TLS_CHACHA20_POLY1305_SHA256); got != quiccrypto.SuiteChaCha20Poly1305 {
		t.Errorf("ChaCha20-Poly1305 suite id mapped to %v, want SuiteChaCha20Poly1305", got)
	}
	if got := Suite(tls.TLS_AES_128_GCM_SHA256); got != quiccrypto.SuiteAES128GCM {
		t.Errorf("AES-128-GCM suite id mapped to %v, want SuiteAES128GCM", got)
	}
	if got := Suite(tls.TLS_AES_256_GCM_SHA384); got != quiccrypto.SuiteAES128GCM {
		t.Errorf("unsupported suite should fall back to AES-128-GCM default, got %v", got)
	}
}

func TestNewServerDriverRejectsMissingCertFiles(t *testing.T) {
	if _, err := NewServerDriver("/nonexistent/cert.pem", "/nonexistent/key.pem", true, 1024, nil); err == nil {
		t.Fatal("expected error for missing certificate files")
	}
}

func TestEpochTLSLevelMapping(t *testing.T) {
	cases := map[Epoch]tls.QUICEncryptionLevel{
		EpochInitial:     tls.QUICEncryptionLevelInitial,
		EpochHandshake:   tls.QUICEncryptionLevelHandshake,
		EpochApplication: tls.QUICEncryptionLevelApplication,
		EpochEarly:       tls.QUICEncryptionLevelEarly,
	}
	for epoch, want := range cases {
		if got := epoch.tlsLevel(); got != want {
			t.Errorf("epoch %v tlsLevel() = %v, want %v", epoch, got, want)
		}
	}
}
