// Package tlsdriver drives the TLS 1.3 handshake that QUIC carries in
// CRYPTO frames, using the standard library's crypto/tls QUIC
// transport hooks (tls.QUICServer / tls.QUICConn, added in Go 1.21
// specifically so QUIC implementations don't have to vendor their own
// TLS 1.3 state machine).
//
// This mirrors the shape of quic-go's internal/handshake.cryptoSetup,
// which wraps the equivalent qtls.QUICConn API (see the reference file
// grafana-k6's vendored quic-go crypto_setup.go in the retrieval pack):
// an event pump that turns QUICWriteData events into per-epoch output
// bytes and QUICSetReadSecret/QUICSetWriteSecret events into the key
// schedule's traffic secrets.
package tlsdriver

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"

	"github.com/ewancrowle/porter3/internal/quiccrypto"
)

// Epoch mirrors spec.md's packet-number-space epochs, in the order the
// TLS driver exposes handshake output for them.
type Epoch int

const (
	EpochInitial Epoch = iota
	EpochHandshake
	EpochApplication
	EpochEarly
)

func (e Epoch) tlsLevel() tls.QUICEncryptionLevel {
	switch e {
	case EpochHandshake:
		return tls.QUICEncryptionLevelHandshake
	case EpochApplication:
		return tls.QUICEncryptionLevelApplication
	case EpochEarly:
		return tls.QUICEncryptionLevelEarly
	default:
		return tls.QUICEncryptionLevelInitial
	}
}

// Status is the driver's coarse handshake status, per spec.md §4.F.
type Status int

const (
	StatusNeedMore Status = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
)

// Output bundles the CRYPTO-frame payloads produced for each epoch by
// one Handle call.
type Output struct {
	Initial   []byte
	Handshake []byte
	OneRTT    []byte
}

// secretPair is what one QUIC epoch's traffic secrets look like from
// the server's perspective: Read decrypts what the client sent, Write
// encrypts what the server sends.
type secretPair struct {
	read, write []byte
}

// Driver is the opaque TLS engine capability set spec.md §4.F and §9
// describe: handle/export_secret/accept_early_data, modeled as a Go
// value rather than an interface hierarchy since there is exactly one
// real implementation and one test double (MockEngine, in mock.go).
type Driver struct {
	mu   sync.Mutex
	conn *tls.QUICConn
	cfg  *tls.Config

	enable0RTT    bool
	maxEarlyData  uint32
	secrets       map[tls.QUICEncryptionLevel]secretPair
	handshakeDone bool
	earlyRejected bool
	ticketIssued  bool

	// acceptEarly is consulted by the event pump when the client
	// attempts 0-RTT; it is wired to the session/token cache (component
	// H) by the caller, not baked into the TLS engine, because 0-RTT
	// acceptance also depends on address-validation policy that lives
	// outside TLS (spec.md §4.K).
	acceptEarly func(pskIdentity []byte) bool
}

var ErrNoCertificate = errors.New("tlsdriver: certificate and key must be loaded before serving")

// NewServerDriver loads the certificate chain and private key from PEM
// files (spec.md §6: "Two PEM files at startup... read once") and
// constructs a server-perspective TLS 1.3 QUIC driver.
func NewServerDriver(certPath, keyPath string, enable0RTT bool, maxEarlyData uint32, acceptEarly func(pskIdentity []byte) bool) (*Driver, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}

	tlsConf := &tls.Config{
		Certificates:           []tls.Certificate{cert},
		MinVersion:             tls.VersionTLS13,
		MaxVersion:             tls.VersionTLS13,
		NextProtos:             []string{"h3"},
		SessionTicketsDisabled: !enable0RTT,
	}

	d := &Driver{
		cfg:          tlsConf,
		enable0RTT:   enable0RTT,
		maxEarlyData: maxEarlyData,
		secrets:      make(map[tls.QUICEncryptionLevel]secretPair),
		acceptEarly:  acceptEarly,
	}
	d.conn = tls.QUICServer(&tls.QUICConfig{TLSConfig: tlsConf})
	return d, nil
}

// Start begins the handshake state machine. Must be called once before
// the first Handle call.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Start(ctx)
}

// Handle feeds CRYPTO-frame bytes received at epoch into the TLS
// engine and drains every event it produces, translating QUICWriteData
// events into per-epoch output and key-schedule events into stored
// secrets (spec.md §4.F: "handle(input, epoch) -> {out_initial,
// out_handshake, out_1rtt, status}").
func (d *Driver) Handle(epoch Epoch, input []byte) (*Output, Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(input) > 0 {
		if err := d.conn.HandleData(epoch.tlsLevel(), input); err != nil {
			return nil, StatusFailed, err
		}
	}

	out := &Output{}
	for {
		ev := d.conn.NextEvent()
		switch ev.Kind {
		case tls.QUICNoEvent:
			status := StatusInProgress
			if d.handshakeDone {
				status = StatusCompleted
			}
			return out, status, nil

		case tls.QUICWriteData:
			switch ev.Level {
			case tls.QUICEncryptionLevelInitial:
				out.Initial = append(out.Initial, ev.Data...)
			case tls.QUICEncryptionLevelHandshake:
				out.Handshake = append(out.Handshake, ev.Data...)
			case tls.QUICEncryptionLevelApplication:
				out.OneRTT = append(out.OneRTT, ev.Data...)
			}

		case tls.QUICSetReadSecret:
			d.storeSecret(ev.Level, ev.Data, true)

		case tls.QUICSetWriteSecret:
			d.storeSecret(ev.Level, ev.Data, false)

		case tls.QUICRejectedEarlyData:
			d.earlyRejected = true

		case tls.QUICHandshakeDone:
			d.handshakeDone = true
			if d.enable0RTT && !d.ticketIssued {
				_ = d.conn.SendSessionTicket(tls.QUICSessionTicketOptions{EarlyData: true})
				d.ticketIssued = true
			}

		default:
			// Transport-parameter events are not used by this core;
			// spec.md's HTTP/3 layer doesn't negotiate QUIC transport
			// parameters beyond the defaults.
		}
	}
}

func (d *Driver) storeSecret(level tls.QUICEncryptionLevel, data []byte, isRead bool) {
	pair := d.secrets[level]
	if isRead {
		pair.read = append([]byte{}, data...)
	} else {
		pair.write = append([]byte{}, data...)
	}
	d.secrets[level] = pair
}

// EpochSecrets returns the client/server traffic secrets the driver has
// exported for epoch so far, in the orientation quiccrypto's key
// schedule expects (clientSecret decrypts what the client sent).
func (d *Driver) EpochSecrets(epoch Epoch) (clientSecret, serverSecret []byte, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pair, present := d.secrets[epoch.tlsLevel()]
	if !present || pair.read == nil || pair.write == nil {
		return nil, nil, false
	}
	// Server perspective: Read decrypts the client, Write encrypts ours.
	return pair.read, pair.write, true
}

// HandshakeComplete reports whether the driver has observed
// QUICHandshakeDone.
func (d *Driver) HandshakeComplete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handshakeDone
}

// AcceptEarlyData implements spec.md's accept_early_data capability: it
// defers entirely to the caller-supplied policy over the PSK identity,
// because acceptance also depends on address validation (component H)
// that the TLS engine itself has no visibility into.
func (d *Driver) AcceptEarlyData(pskIdentity []byte) bool {
	if d.acceptEarly == nil {
		return false
	}
	return d.acceptEarly(pskIdentity)
}

// Suite translates the negotiated cipher suite into this core's AEAD
// suite selector (spec.md §4.C: AES-128-GCM default, ChaCha20-Poly1305
// per negotiated suite).
func Suite(tlsCipherSuite uint16) quiccrypto.Suite {
	switch tlsCipherSuite {
	case tls.TLS_CHACHA20_POLY1305_SHA256:
		return quiccrypto.SuiteChaCha20Poly1305
	default:
		return quiccrypto.SuiteAES128GCM
	}
}

// ConnectionState exposes the negotiated cipher suite once available.
func (d *Driver) ConnectionState() tls.ConnectionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.ConnectionState()
}

// NegotiatedSuite implements Engine by translating the TLS-negotiated
// cipher suite through Suite. Before the suite is chosen this returns
// Suite's default (AES-128-GCM), matching the standard's own default.
func (d *Driver) NegotiatedSuite() quiccrypto.Suite {
	return Suite(d.ConnectionState().CipherSuite)
}

// ServerName returns the SNI negotiated for this connection, or "" if
// the ClientHello hasn't been processed yet.
func (d *Driver) ServerName() string {
	return d.ConnectionState().ServerName
}

// Close releases the underlying TLS connection.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Close()
}
