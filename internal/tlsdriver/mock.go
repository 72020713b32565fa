package tlsdriver

import (
	"bytes"

	"github.com/ewancrowle/porter3/internal/quiccrypto"
)

// MockEngine is the in-memory TLS-engine double spec.md §9 calls for
// ("Variants: real TLS library, in-memory mock for tests"). Once input
// has been handled at an epoch, each Handle call for that epoch returns
// the output scripted for it; by default only Initial is scripted, with
// a canned ServerHello-shaped payload, so Handshake output appears only
// if a test scripts it. That is enough to drive the connection state
// machine's transitions without a real TLS stack.
type MockEngine struct {
	Scripted      map[Epoch][]byte // output to emit once input is seen at this epoch
	ClientSecret  []byte
	ServerSecret  []byte
	CompleteAfter Epoch // handshake completes once input at this epoch is handled; the zero value (EpochInitial) never completes
	AcceptEarly   bool

	SNI string // scripted ServerName, since the mock parses no real ClientHello

	handled map[Epoch]bool
	done    bool
	closed  bool
}

func NewMockEngine() *MockEngine {
	return &MockEngine{
		Scripted:     map[Epoch][]byte{EpochInitial: []byte("mock-serverhello")},
		ClientSecret: bytes.Repeat([]byte{0x11}, 32),
		ServerSecret: bytes.Repeat([]byte{0x22}, 32),
		handled:      make(map[Epoch]bool),
	}
}

func (m *MockEngine) Handle(epoch Epoch, input []byte) (*Output, Status, error) {
	if len(input) > 0 {
		m.handled[epoch] = true
	}
	out := &Output{}
	if data, ok := m.Scripted[epoch]; ok && m.handled[epoch] {
		switch epoch {
		case EpochInitial:
			out.Initial = data
		case EpochHandshake:
			out.Handshake = data
		case EpochApplication:
			out.OneRTT = data
		}
	}
	if m.CompleteAfter != 0 && m.handled[m.CompleteAfter] {
		m.done = true
	}
	status := StatusInProgress
	if m.done {
		status = StatusCompleted
	}
	return out, status, nil
}

func (m *MockEngine) EpochSecrets(epoch Epoch) (clientSecret, serverSecret []byte, ok bool) {
	if !m.done && epoch == EpochApplication {
		return nil, nil, false
	}
	return m.ClientSecret, m.ServerSecret, true
}

func (m *MockEngine) HandshakeComplete() bool { return m.done }

// NegotiatedSuite is fixed at AES-128-GCM: the mock never negotiates
// anything, so there is no suite to report beyond the default.
func (m *MockEngine) NegotiatedSuite() quiccrypto.Suite { return quiccrypto.SuiteAES128GCM }

// ServerName returns the scripted SNI, set directly by tests.
func (m *MockEngine) ServerName() string { return m.SNI }

func (m *MockEngine) AcceptEarlyData(pskIdentity []byte) bool { return m.AcceptEarly }

func (m *MockEngine) Close() error {
	m.closed = true
	return nil
}

var _ Engine = (*MockEngine)(nil)
