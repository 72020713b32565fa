package quicconn

import (
	"net"
	"sync"
	"time"

	"github.com/ewancrowle/porter3/internal/quiccache"
	"github.com/ewancrowle/porter3/internal/quiccrypto"
	"github.com/ewancrowle/porter3/internal/quicframe"
	"github.com/ewancrowle/porter3/internal/tlsdriver"
)

// Connection is the per-DCID state spec.md's Data Model describes.
type Connection struct {
	mu sync.Mutex

	OriginalDCID []byte // immutable after the first packet
	PeerSCID     []byte // current DCID the client wants packets addressed to
	LocalCID     []byte // this connection's own SCID, chosen at creation

	state          State
	handshakeStart time.Time
	lastActivity   time.Time

	Engine tlsdriver.Engine

	pnSpaces     map[Epoch]*PNSpace
	reassemblers map[Epoch]*quicframe.CryptoReassembler
	keys         map[Epoch]*quiccrypto.EpochKeys

	Ticket        *quiccache.Ticket // session ticket issued to this connection's client, if any
	EarlyDataUsed int               // bytes of 0-RTT payload admitted so far, for max-early-data enforcement

	// pendingEarlyResponse holds an HTTP/3 response produced while
	// answering a 0-RTT request, parked here until 1-RTT send keys are
	// available so it can go out in the same flight as the Handshake
	// packets (spec.md §4.K step 4: "once keys are ready ... may be
	// coalesced with the Handshake flight").
	pendingEarlyResponse []byte

	ClientAddr *net.UDPAddr

	requestInFlight bool // spec.md invariant: at most one in-flight HTTP/3 request
}

// New creates a connection in the initial state, keyed by the server's
// chosen DCID (localCID). originalDCID is the client's first Initial
// DCID and must never change afterward.
func New(originalDCID, peerSCID, localCID []byte, clientAddr *net.UDPAddr, engine tlsdriver.Engine, now time.Time) *Connection {
	return &Connection{
		OriginalDCID:   append([]byte{}, originalDCID...),
		PeerSCID:       append([]byte{}, peerSCID...),
		LocalCID:       append([]byte{}, localCID...),
		state:          StateInitial,
		handshakeStart: now,
		lastActivity:   now,
		Engine:         engine,
		pnSpaces: map[Epoch]*PNSpace{
			EpochInitial:     NewPNSpace(),
			EpochHandshake:   NewPNSpace(),
			EpochApplication: NewPNSpace(),
			EpochEarly:       NewPNSpace(),
		},
		reassemblers: map[Epoch]*quicframe.CryptoReassembler{
			EpochInitial:   quicframe.NewCryptoReassembler(),
			EpochHandshake: quicframe.NewCryptoReassembler(),
		},
		keys:       make(map[Epoch]*quiccrypto.EpochKeys),
		ClientAddr: clientAddr,
	}
}

// State returns the connection's current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Touch records datagram activity for idle-timeout purposes.
func (c *Connection) Touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = now
}

// transition moves the connection to to, enforcing the edges spec.md
// §4.G allows; Close/Timeout bypass the table since they're valid from
// any state.
func (c *Connection) transition(to State) error {
	if !canTransition(c.state, to) {
		return ErrInvalidTransition
	}
	c.state = to
	return nil
}

// EnterZeroRTT transitions initial -> zero_rtt after a valid 0-RTT
// token and ticket allow early decryption (spec.md §4.G).
func (c *Connection) EnterZeroRTT() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transition(StateZeroRTT)
}

// EnterHandshake transitions initial|zero_rtt -> handshake once the
// server has sent (or is about to send) its first ServerHello response,
// or once the Handshake epoch opens from 0-RTT.
func (c *Connection) EnterHandshake() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transition(StateHandshake)
}

// EnterEstablished transitions handshake -> established once the TLS
// driver reports completion and 1-RTT keys are installed.
func (c *Connection) EnterEstablished() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transition(StateEstablished)
}

// Close transitions to closed from any state and releases key material
// (spec.md §5: "cryptographic key material is zeroed on connection
// teardown").
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
	c.zeroKeysLocked()
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
}

// Timeout transitions to timed_out from any state (spec.md §4.G: "any
// -> (handshake timeout) -> timed_out").
func (c *Connection) Timeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateTimedOut
	c.zeroKeysLocked()
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
}

func (c *Connection) zeroKeysLocked() {
	for _, ek := range c.keys {
		ek.Send.Zero()
		ek.Recv.Zero()
	}
}

// IsExpired reports whether this connection should be scavenged: either
// the handshake has not completed within handshakeTimeout of its start,
// or (once established) the connection has been idle longer than
// idleTimeout.
func (c *Connection) IsExpired(now time.Time, handshakeTimeout, idleTimeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed, StateTimedOut:
		return true
	case StateEstablished:
		return now.Sub(c.lastActivity) > idleTimeout
	default:
		return now.Sub(c.handshakeStart) > handshakeTimeout
	}
}

// SetKeys installs the packet-protection keyset for an epoch (spec.md
// Data Model: "Initial keys are derived the moment the original DCID is
// observed; Handshake keys when the TLS driver exports handshake
// secrets; 1-RTT keys when it exports application traffic secrets").
func (c *Connection) SetKeys(epoch Epoch, ek *quiccrypto.EpochKeys) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[epoch] = ek
}

// Keys returns the installed keyset for an epoch, if any.
func (c *Connection) Keys(epoch Epoch) (*quiccrypto.EpochKeys, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ek, ok := c.keys[epoch]
	return ek, ok
}

// PNSpace returns the packet-number space for an epoch.
func (c *Connection) PNSpace(epoch Epoch) *PNSpace {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pnSpaces[epoch]
}

// Reassembler returns the CRYPTO reassembly buffer for an epoch, or nil
// for epochs that don't carry CRYPTO data (Application, Early).
func (c *Connection) Reassembler(epoch Epoch) *quicframe.CryptoReassembler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reassemblers[epoch]
}

// TryStartRequest enforces spec.md's invariant that each connection
// processes at most one in-flight HTTP/3 request until completion. It
// returns false if a request is already in flight.
func (c *Connection) TryStartRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requestInFlight {
		return false
	}
	c.requestInFlight = true
	return true
}

// FinishRequest clears the in-flight flag once a response has been
// sent.
func (c *Connection) FinishRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestInFlight = false
}

// SetPendingEarlyResponse parks an HTTP/3 response frame to be flushed
// once 1-RTT keys are ready.
func (c *Connection) SetPendingEarlyResponse(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingEarlyResponse = data
}

// TakePendingEarlyResponse returns and clears the parked early
// response, if any.
func (c *Connection) TakePendingEarlyResponse() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingEarlyResponse == nil {
		return nil, false
	}
	data := c.pendingEarlyResponse
	c.pendingEarlyResponse = nil
	return data, true
}

// UpdatePeerAddress records connection migration to a new source
// address. PMTU discovery and active migration validation are out of
// scope (spec.md §1 Non-goals); this simply tracks where to send
// responses next, mirroring the teacher's session.srcAddr update in
// internal/relay/engine.go.
func (c *Connection) UpdatePeerAddress(addr *net.UDPAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClientAddr = addr
}
