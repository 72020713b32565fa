// Package quic0rtt implements the early-data path of spec.md §4.K:
// validating a 0-RTT attempt's address-validation token, resolving the
// PSK identity it implies, deriving 0-RTT packet-protection keys from
// the resumption secret, and handing the decrypted early HTTP/3
// request back to the caller for a bounded response.
//
// New package wiring internal/quiccache (token/session lookup),
// internal/quiccrypto (0-RTT key derivation) and internal/http3
// (decoding the early request), grounded in the teacher's
// internal/quic/decrypt.go DecryptInitialPacket for the
// derive-keys-then-open shape, generalized from Initial to 0-RTT.
package quic0rtt

import (
	"errors"
	"net"
	"time"

	"github.com/ewancrowle/porter3/internal/http3"
	"github.com/ewancrowle/porter3/internal/quiccache"
	"github.com/ewancrowle/porter3/internal/quiccrypto"
	"github.com/ewancrowle/porter3/internal/quicframe"
	"github.com/ewancrowle/porter3/internal/quicpacket"
)

// Errors returned by Accept. Every one of them means "fall back to the
// normal Initial path without penalty" (spec.md §4.K step 5) — callers
// should treat them all alike and never surface them to the client.
var (
	ErrNoToken           = errors.New("quic0rtt: packet carries no address-validation token")
	ErrTokenInvalid      = errors.New("quic0rtt: token failed address/window validation")
	ErrUnknownPSKIdentity = errors.New("quic0rtt: token does not resolve to a known PSK identity")
	ErrTicketExpired     = errors.New("quic0rtt: resumption ticket has expired")
	ErrEarlyDataTooLarge = errors.New("quic0rtt: early data exceeds the ticket's max_early_data_size")
)

// Result is a successfully accepted and decrypted 0-RTT attempt.
type Result struct {
	Ticket  *quiccache.Ticket
	Keys    *quiccrypto.EpochKeys
	Request *http3.Request
}

// Accept runs spec.md §4.K steps 1-4 against a 0-RTT long-header
// packet. initialToken is the token carried by the Initial packet this
// 0-RTT packet was coalesced with (0-RTT packets carry no token field
// of their own, RFC 9000 §17.2.3).
func Accept(
	prefix *quicpacket.LongHeaderPrefix,
	datagram []byte,
	srcAddr *net.UDPAddr,
	initialToken []byte,
	tokens *quiccache.TokenCache,
	sessions *quiccache.SessionCache,
	now time.Time,
) (*Result, error) {
	if len(initialToken) == 0 {
		return nil, ErrNoToken
	}
	if !tokens.Validate(initialToken, srcAddr, now) {
		return nil, ErrTokenInvalid
	}
	pskIdentity, ok := tokens.PSKIdentity(initialToken)
	if !ok {
		return nil, ErrUnknownPSKIdentity
	}

	ticket, ok := sessions.Get(pskIdentity)
	if !ok {
		return nil, ErrUnknownPSKIdentity
	}
	if ticket.Expired(now) {
		return nil, ErrTicketExpired
	}

	keys := deriveZeroRTTKeys(ticket)
	hp := quiccrypto.NewHeaderProtector(keys.Recv)
	aead, err := quiccrypto.NewAEAD(keys.Recv)
	if err != nil {
		return nil, err
	}

	pkt, err := quicpacket.RemoveHeaderProtectionAndDecrypt(datagram, prefix, hp, aead)
	if err != nil {
		return nil, err
	}

	frames, err := quicframe.ParseFrames(pkt.Payload)
	if err != nil {
		return nil, err
	}

	var requestBytes []byte
	var total int
	for _, f := range frames {
		if f.Type < quicframe.TypeStreamBase || f.Type > quicframe.TypeStreamMax {
			continue
		}
		if f.StreamID != 0 {
			continue // only stream 0 carries HTTP/3 in this core
		}
		requestBytes = append(requestBytes, f.StreamData...)
		total += len(f.StreamData)
	}
	if uint32(total) > ticket.MaxEarlyDataSize {
		return nil, ErrEarlyDataTooLarge
	}

	req, err := http3.ParseRequest(requestBytes)
	if err != nil {
		return nil, err
	}

	return &Result{Ticket: ticket, Keys: keys, Request: req}, nil
}

// deriveZeroRTTKeys derives the 0-RTT epoch keyset from the ticket's
// resumption secret (spec.md §4.C: "0-RTT secrets are derived from the
// PSK (resumption master secret) bound to the ticket"). Only the client
// direction is meaningful for 0-RTT — the server never sends 0-RTT
// packets of its own (RFC 9001 §4.1) — but EpochKeys keeps both sides
// for symmetry with the other epochs; Send is unused here.
func deriveZeroRTTKeys(ticket *quiccache.Ticket) *quiccrypto.EpochKeys {
	clientSecret := quiccrypto.HKDFExpandLabel(ticket.ResumptionSecret, "client in", 32)
	serverSecret := quiccrypto.HKDFExpandLabel(ticket.ResumptionSecret, "server in", 32)
	return quiccrypto.DeriveEpochKeysFromSecrets(clientSecret, serverSecret, ticket.Suite, true)
}
