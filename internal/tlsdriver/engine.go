package tlsdriver

import "github.com/ewancrowle/porter3/internal/quiccrypto"

// Engine is the capability set spec.md §9 describes: a value exposing
// handle/export_secret/accept_early_data, with two variants — the real
// Driver in driver.go, and a mock for tests that never touches crypto/tls.
// No inheritance is needed; the connection state machine (component G)
// depends only on this interface.
type Engine interface {
	Handle(epoch Epoch, input []byte) (*Output, Status, error)
	EpochSecrets(epoch Epoch) (clientSecret, serverSecret []byte, ok bool)
	HandshakeComplete() bool
	AcceptEarlyData(pskIdentity []byte) bool
	// NegotiatedSuite reports the AEAD this handshake selected (spec.md
	// §4.C: "selected per TLS cipher suite"), so callers deriving
	// Handshake/Application/0-RTT keys never have to assume a fixed
	// suite.
	NegotiatedSuite() quiccrypto.Suite
	// ServerName reports the SNI the client's ClientHello carried, once
	// the handshake has processed it, or "" before then. This is the
	// routing key spec.md §6 names the on_request seam for.
	ServerName() string
	Close() error
}

var _ Engine = (*Driver)(nil)
