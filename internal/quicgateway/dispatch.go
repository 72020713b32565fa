package quicgateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/ewancrowle/porter3/internal/http3"
	"github.com/ewancrowle/porter3/internal/quic0rtt"
	"github.com/ewancrowle/porter3/internal/quiccache"
	"github.com/ewancrowle/porter3/internal/quiccrypto"
	"github.com/ewancrowle/porter3/internal/quicconn"
	"github.com/ewancrowle/porter3/internal/quicframe"
	"github.com/ewancrowle/porter3/internal/quicpacket"
	"github.com/ewancrowle/porter3/internal/strategy"
	"github.com/ewancrowle/porter3/internal/tlsdriver"
)

var (
	errNoKeysForEpoch  = errors.New("quicgateway: no packet-protection keys installed for epoch")
	errUnknownConnection = errors.New("quicgateway: no connection for DCID")
)

// processDatagram walks every coalesced packet in a UDP datagram,
// decrypting and dispatching each in turn (spec.md §4.J steps 1-4).
// Directly generalizes the teacher's Relay.processUDPDatagram.
func (g *Gateway) processDatagram(srcAddr *net.UDPAddr, data []byte) {
	curr := 0
	var initialToken []byte

	for curr < len(data) {
		if data[curr]&0x80 != 0 {
			n, token, err := g.handleLongHeaderPacket(srcAddr, data[curr:], initialToken)
			if err != nil {
				if g.cfg.UDP.LogRequests {
					log.Printf("quicgateway: %s -> drop (long header: %v)", srcAddr, err)
				}
				return
			}
			if token != nil {
				initialToken = token
			}
			curr += n
			continue
		}

		// Short header packets are not reliably followed by further
		// coalesced packets (RFC 9000 §12.2 only allows long headers to
		// precede another packet in a datagram), mirroring the
		// teacher's same short-circuit in processUDPDatagram.
		if _, err := g.handleShortHeaderPacket(srcAddr, data[curr:]); err != nil {
			if g.cfg.UDP.LogRequests {
				log.Printf("quicgateway: %s -> drop (short header: %v)", srcAddr, err)
			}
		}
		return
	}
}

// handleLongHeaderPacket decrypts and dispatches one long-header
// packet, returning the bytes it occupied in the datagram and, for
// Initial packets, the token field (needed by a coalesced 0-RTT packet
// later in the same datagram).
func (g *Gateway) handleLongHeaderPacket(srcAddr *net.UDPAddr, data []byte, initialToken []byte) (int, []byte, error) {
	prefix, err := quicpacket.ParseLongHeaderPrefix(data)
	if err != nil {
		return 0, nil, err
	}
	fullLen := prefix.PNOffset + prefix.Length
	if fullLen > len(data) {
		return 0, nil, quicpacket.ErrTruncated
	}

	now := time.Now()

	switch prefix.Type {
	case quicpacket.TypeInitial:
		conn, err := g.connectionForInitial(prefix, srcAddr, now)
		if err != nil {
			return fullLen, prefix.Token, err
		}
		if err := g.decryptAndDispatch(conn, quicconn.EpochInitial, data, prefix, now); err != nil {
			return fullLen, prefix.Token, err
		}
		g.driveHandshake(conn, quicconn.EpochInitial, nil)
		return fullLen, prefix.Token, nil

	case quicpacket.TypeHandshake:
		conn, ok := g.lookupConnection(prefix.DCID)
		if !ok {
			return fullLen, nil, errUnknownConnection
		}
		if err := g.decryptAndDispatch(conn, quicconn.EpochHandshake, data, prefix, now); err != nil {
			return fullLen, nil, err
		}
		g.driveHandshake(conn, quicconn.EpochHandshake, nil)
		return fullLen, nil, nil

	case quicpacket.TypeZeroRTT:
		conn, ok := g.lookupConnection(prefix.DCID)
		if !ok {
			return fullLen, nil, errUnknownConnection
		}
		g.handleZeroRTT(conn, prefix, data, srcAddr, initialToken, now)
		return fullLen, nil, nil

	default: // Retry: out of scope per spec.md Non-goals on retry-induced rekeying.
		return fullLen, nil, nil
	}
}

// handleShortHeaderPacket decrypts and dispatches a 1-RTT packet. By
// the time a client sends 1-RTT packets it has seen the server's
// LocalCID in the first flight and addresses every short-header packet
// to it, at the fixed localCIDLen width this core never rotates away
// from (spec.md §1 Non-goals).
func (g *Gateway) handleShortHeaderPacket(srcAddr *net.UDPAddr, data []byte) (int, error) {
	if len(data) < 1+localCIDLen {
		return 0, quicpacket.ErrTruncated
	}
	dcid := data[1 : 1+localCIDLen]

	conn, ok := g.lookupConnection(dcid)
	if !ok {
		return 0, errUnknownConnection
	}

	ek, ok := conn.Keys(quicconn.EpochApplication)
	if !ok {
		return 0, errNoKeysForEpoch
	}
	hp := quiccrypto.NewHeaderProtector(ek.Recv)
	aead, err := quiccrypto.NewAEAD(ek.Recv)
	if err != nil {
		return 0, err
	}

	pkt, err := quicpacket.ParseAndDecryptShortHeader(data, localCIDLen, hp, aead)
	if err != nil {
		return 0, err
	}
	if !conn.PNSpace(quicconn.EpochApplication).RecordReceived(pkt.PacketNumber) {
		return pkt.FullLength, nil // duplicate, already processed
	}

	conn.Touch(time.Now())
	conn.UpdatePeerAddress(srcAddr)

	if err := g.dispatchFrames(conn, quicconn.EpochApplication, pkt.Payload); err != nil {
		return pkt.FullLength, err
	}
	return pkt.FullLength, nil
}

// lookupConnection resolves dcid against the canonical LocalCID index
// first, then falls back to the OriginalDCID index for packets from a
// client that hasn't yet switched to addressing the server by LocalCID
// (the first Initial flight, and any 0-RTT packet coalesced with it).
func (g *Gateway) lookupConnection(dcid []byte) (*quicconn.Connection, bool) {
	if v, ok := g.connections.Load(string(dcid)); ok {
		return v.(*quicconn.Connection), true
	}
	if v, ok := g.initialIndex.Load(string(dcid)); ok {
		return v.(*quicconn.Connection), true
	}
	return nil, false
}

func (g *Gateway) connectionForInitial(prefix *quicpacket.LongHeaderPrefix, srcAddr *net.UDPAddr, now time.Time) (*quicconn.Connection, error) {
	if conn, ok := g.lookupConnection(prefix.DCID); ok {
		conn.Touch(now)
		return conn, nil
	}

	conn, err := g.newConnection(prefix.DCID, prefix.SCID, srcAddr)
	if err != nil {
		return nil, err
	}
	conn.SetKeys(quicconn.EpochInitial, quiccrypto.DeriveInitialEpochKeys(conn.OriginalDCID, true))
	return conn, nil
}

// decryptAndDispatch removes header protection, decrypts the payload
// with epoch's receive keys, and dispatches the resulting frames.
func (g *Gateway) decryptAndDispatch(conn *quicconn.Connection, epoch quicconn.Epoch, data []byte, prefix *quicpacket.LongHeaderPrefix, now time.Time) error {
	ek, ok := conn.Keys(epoch)
	if !ok {
		return errNoKeysForEpoch
	}
	hp := quiccrypto.NewHeaderProtector(ek.Recv)
	aead, err := quiccrypto.NewAEAD(ek.Recv)
	if err != nil {
		return err
	}

	pkt, err := quicpacket.RemoveHeaderProtectionAndDecrypt(data, prefix, hp, aead)
	if err != nil {
		return err
	}
	if !conn.PNSpace(epoch).RecordReceived(pkt.PacketNumber) {
		return nil // duplicate, already processed
	}
	conn.Touch(now)

	return g.dispatchFrames(conn, epoch, pkt.Payload)
}

// dispatchFrames feeds CRYPTO bytes to the TLS driver (via the epoch's
// reassembler) and STREAM bytes on stream 0 to the HTTP/3 layer.
func (g *Gateway) dispatchFrames(conn *quicconn.Connection, epoch quicconn.Epoch, payload []byte) error {
	frames, err := quicframe.ParseFrames(payload)
	if err != nil {
		return err
	}

	for _, f := range frames {
		switch {
		case f.Type == quicframe.TypeCrypto:
			reassembler := conn.Reassembler(epoch)
			if reassembler == nil {
				continue
			}
			ready := reassembler.Push(f.CryptoOffset, f.CryptoData)
			if len(ready) > 0 {
				g.driveHandshake(conn, epoch, ready)
			}

		case f.Type >= quicframe.TypeStreamBase && f.Type <= quicframe.TypeStreamMax:
			if f.StreamID != 0 {
				continue // single stream-0 request per connection (spec.md Non-goals)
			}
			g.handleHTTP3Request(conn, f.StreamData)
		}
	}
	return nil
}

// driveHandshake feeds newly-contiguous CRYPTO bytes (or a nil kick, to
// drain output produced by a previous epoch's Handle call) into the TLS
// driver, emits whatever handshake output it produces, and installs any
// newly exported traffic secrets.
func (g *Gateway) driveHandshake(conn *quicconn.Connection, epoch quicconn.Epoch, input []byte) {
	out, status, err := conn.Engine.Handle(tlsdriver.Epoch(epoch), input)
	if err != nil {
		if g.cfg.UDP.LogRequests {
			log.Printf("quicgateway: TLS driver error on %s: %v", conn.ClientAddr, err)
		}
		conn.Close()
		g.deleteConnection(conn)
		return
	}

	if len(out.Initial) > 0 {
		_ = g.sendLongHeaderFrame(conn, quicconn.EpochInitial, quicpacket.TypeInitial,
			quicframe.AppendCryptoFrame(nil, 0, out.Initial))
	}

	if clientSecret, serverSecret, ok := conn.Engine.EpochSecrets(tlsdriver.Epoch(quicconn.EpochHandshake)); ok {
		if _, already := conn.Keys(quicconn.EpochHandshake); !already {
			conn.SetKeys(quicconn.EpochHandshake, quiccrypto.DeriveEpochKeysFromSecrets(clientSecret, serverSecret, conn.Engine.NegotiatedSuite(), true))
			_ = conn.EnterHandshake()
		}
	}
	if len(out.Handshake) > 0 {
		_ = g.sendLongHeaderFrame(conn, quicconn.EpochHandshake, quicpacket.TypeHandshake,
			quicframe.AppendCryptoFrame(nil, conn.Reassembler(quicconn.EpochHandshake).Delivered(), out.Handshake))
	}

	if clientSecret, serverSecret, ok := conn.Engine.EpochSecrets(tlsdriver.Epoch(quicconn.EpochApplication)); ok {
		if _, already := conn.Keys(quicconn.EpochApplication); !already {
			conn.SetKeys(quicconn.EpochApplication, quiccrypto.DeriveEpochKeysFromSecrets(clientSecret, serverSecret, conn.Engine.NegotiatedSuite(), true))
			g.flushPendingEarlyResponse(conn)
		}
	}

	if status == tlsdriver.StatusCompleted {
		_ = conn.EnterEstablished()
		g.issueSessionTicket(conn)
	}
}

// flushPendingEarlyResponse sends a 0-RTT response that was parked
// awaiting 1-RTT send keys (spec.md §4.K step 4).
func (g *Gateway) flushPendingEarlyResponse(conn *quicconn.Connection) {
	data, ok := conn.TakePendingEarlyResponse()
	if !ok {
		return
	}
	_ = g.sendHTTP3Response(conn, data)
}

// handleZeroRTT runs the early-data path and, on success, either
// answers immediately (if 1-RTT keys already exist, e.g. a retried
// datagram) or parks the response for driveHandshake to flush.
func (g *Gateway) handleZeroRTT(conn *quicconn.Connection, prefix *quicpacket.LongHeaderPrefix, datagram []byte, srcAddr *net.UDPAddr, initialToken []byte, now time.Time) {
	result, err := quic0rtt.Accept(prefix, datagram, srcAddr, initialToken, g.tokens, g.sessions, now)
	if err != nil {
		g.stats.recordZeroRTT(false)
		if g.cfg.UDP.LogRequests {
			log.Printf("quicgateway: 0-RTT rejected for %s: %v (falling back)", srcAddr, err)
		}
		return
	}
	g.stats.recordZeroRTT(true)

	conn.SetKeys(quicconn.EpochEarly, result.Keys)
	conn.Ticket = result.Ticket
	_ = conn.EnterZeroRTT()

	if !conn.TryStartRequest() {
		return
	}
	status, contentType, body := g.answer(conn, result.Request)
	conn.FinishRequest()
	response := http3.BuildResponse(status, contentType, body)

	if _, ok := conn.Keys(quicconn.EpochApplication); ok {
		_ = g.sendHTTP3Response(conn, response)
		return
	}
	conn.SetPendingEarlyResponse(response)
}

// handleHTTP3Request parses a 1-RTT stream-0 HEADERS frame and answers
// it immediately (spec.md §4.I/§4.J step 3-4).
func (g *Gateway) handleHTTP3Request(conn *quicconn.Connection, streamData []byte) {
	req, err := http3.ParseRequest(streamData)
	if err != nil {
		return
	}
	if !conn.TryStartRequest() {
		return
	}
	status, contentType, body := g.answer(conn, req)
	conn.FinishRequest()

	response := http3.BuildResponse(status, contentType, body)
	_ = g.sendHTTP3Response(conn, response)
}

// answer delegates to the configured RequestHandler if one was supplied.
// Otherwise it resolves conn's negotiated SNI against every routing
// strategy registered with the gateway's manager — the same
// strategy.RoutingStrategy.Resolve the admin API's allocate/route
// endpoints use — and reports the resolved backend. Nothing matching
// (no manager, no SNI, or no route for it) falls back to the fixed
// SPEC_FULL.md §4.I response.
func (g *Gateway) answer(conn *quicconn.Connection, req *http3.Request) (status int, contentType string, body []byte) {
	if g.onRequest != nil {
		return g.onRequest(conn, req)
	}
	if target, ok := g.resolveBackend(conn); ok {
		return 200, "application/json", []byte(fmt.Sprintf(`{"status":"ok","route":%q}`, target))
	}
	return 200, "application/json", []byte(`{"status":"ok"}`)
}

// resolveBackend asks conn's negotiated SNI of every strategy type the
// manager might have registered, simple routes before Agones fleet
// allocation since allocation is the far more expensive call. The first
// strategy that recognizes the FQDN wins; spec.md never mandates a
// precedence between strategies, so this core picks the cheaper one
// first.
func (g *Gateway) resolveBackend(conn *quicconn.Connection) (string, bool) {
	if g.manager == nil || conn.Engine == nil {
		return "", false
	}
	sni := conn.Engine.ServerName()
	if sni == "" {
		return "", false
	}
	for _, t := range []strategy.StrategyType{strategy.StrategySimple, strategy.StrategyAgones} {
		s := g.manager.Get(t)
		if s == nil {
			continue
		}
		if target, err := s.Resolve(context.Background(), sni); err == nil {
			return target, true
		}
	}
	return "", false
}

// issueSessionTicket mints a resumption ticket and an address-
// validation token bound to it once the handshake completes, storing
// both in the shared caches (spec.md Data Model: "created at handshake
// completion").
func (g *Gateway) issueSessionTicket(conn *quicconn.Connection) {
	if !g.enable0RTT {
		return
	}
	_, serverAppSecret, ok := conn.Engine.EpochSecrets(tlsdriver.Epoch(quicconn.EpochApplication))
	if !ok {
		return
	}

	pskIdentity := randomIdentity()
	ticket := quiccache.TicketFor(pskIdentity, serverAppSecret, g.maxEarlyData, conn.Engine.NegotiatedSuite())
	g.sessions.Store(ticket)

	token := randomIdentity()
	g.tokens.StoreForResumption(token, conn.ClientAddr, pskIdentity, time.Now())

	if g.redisSync != nil {
		g.redisSync.PublishTicketIssued(pskIdentity, token)
	}
}

// randomIdentity produces a 32-byte identity by concatenating two
// UUIDv4s rather than hand-rolling a byte-count wrapper around
// crypto/rand; each UUID contributes 122 random bits and 6 fixed
// version/variant bits.
func randomIdentity() []byte {
	a, b := uuid.New(), uuid.New()
	out := make([]byte, 0, 32)
	out = append(out, a[:]...)
	out = append(out, b[:]...)
	return out
}
