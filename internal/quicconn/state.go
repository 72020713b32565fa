// Package quicconn implements the per-connection state machine of
// spec.md §4.G: connection state, per-epoch packet-number spaces,
// CRYPTO reassembly offsets, and handshake/idle timeouts.
//
// Grounded in the teacher's internal/relay/engine.go "session" struct
// (DCID-keyed table with lastSeen-based scavenging), generalized from a
// blind-relay session to a terminating QUIC connection that owns TLS
// state and packet-number spaces.
package quicconn

import "errors"

// State is one of spec.md's six connection states.
type State int

const (
	StateInitial State = iota
	StateZeroRTT
	StateHandshake
	StateEstablished
	StateClosed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateZeroRTT:
		return "zero_rtt"
	case StateHandshake:
		return "handshake"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned by the strict transition helpers
// when called from a state spec.md §4.G does not allow.
var ErrInvalidTransition = errors.New("quicconn: invalid state transition")

// transitions encodes the allowed edges from spec.md §4.G, used only by
// the strict helpers (EnterHandshake, EnterEstablished, ...); Close and
// Timeout are allowed from any state per the "any -> (...)" rows.
var transitions = map[State]map[State]bool{
	StateInitial: {
		StateHandshake: true,
		StateZeroRTT:   true,
	},
	StateZeroRTT: {
		StateHandshake: true,
	},
	StateHandshake: {
		StateEstablished: true,
	},
	StateEstablished: {},
}

func canTransition(from, to State) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}
