// Package quicgateway owns the UDP receive/send loop and demultiplexes
// datagrams to connections by DCID (spec.md §4.J).
//
// Directly generalizes the teacher's internal/relay/engine.go Relay
// type: the same blocking ReadFromUDP loop, goroutine-per-datagram
// dispatch, sync.Map session table and cfg.UDP.LogRequests-gated
// logging, but the payload it dispatches to is this core's own packet
// codec and HTTP/3 layer instead of a raw byte forward to a backend.
package quicgateway

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/ewancrowle/porter3/internal/config"
	"github.com/ewancrowle/porter3/internal/http3"
	"github.com/ewancrowle/porter3/internal/quiccache"
	"github.com/ewancrowle/porter3/internal/quicconn"
	"github.com/ewancrowle/porter3/internal/strategy"
	gosync "github.com/ewancrowle/porter3/internal/sync"
	"github.com/ewancrowle/porter3/internal/tlsdriver"
)

// scavengeInterval matches spec.md §4.J: "Cleanup is performed lazily
// at a 10-s cadence."
const scavengeInterval = 10 * time.Second

// localCIDLen is the fixed width of the connection IDs this gateway
// generates for itself (LocalCID). The client addresses every
// Handshake, 0-RTT-keyed-by-response and 1-RTT packet to this value
// once it has seen it in the server's first flight, so it also doubles
// as the short-header DCID width; this core never rotates it mid
// connection (spec.md §1 Non-goals).
const localCIDLen = 8

// RequestHandler answers a terminated HTTP/3 request on conn. When nil,
// the gateway's own default (answer in dispatch.go) resolves conn's SNI
// against manager's registered strategy.RoutingStrategy implementations
// before falling back to the fixed JSON body from spec.md §4.I — the
// on_request seam spec.md §6 describes, wired to strategy's FQDN->backend
// resolution rather than left as an external collaborator's hook only.
type RequestHandler func(conn *quicconn.Connection, req *http3.Request) (status int, contentType string, body []byte)

// Gateway is the QUIC-terminating UDP loop.
type Gateway struct {
	listenAddr *net.UDPAddr
	conn       *net.UDPConn
	cfg        *config.Config

	certPath, keyPath string
	enable0RTT        bool
	maxEarlyData      uint32
	handshakeTimeout  time.Duration
	idleTimeout       time.Duration

	// connections is keyed by string(LocalCID) — the server's chosen
	// SCID, which spec.md §3's Data Model names as the connection's real
	// key ("keyed by the server's chosen DCID"; after the first
	// exchange both peers address packets by the CID the remote peer
	// chose). initialIndex is a second, narrower index keyed by
	// string(OriginalDCID), needed only because the client's first
	// Initial flight (and any coalesced 0-RTT packet riding with it)
	// necessarily still addresses the server by the original,
	// client-chosen DCID, before it has ever heard LocalCID back.
	connections  sync.Map
	initialIndex sync.Map

	sessions *quiccache.SessionCache
	tokens   *quiccache.TokenCache

	manager    *strategy.StrategyManager
	redisSync  *gosync.RedisSync
	onRequest  RequestHandler

	stats Stats
}

// Stats is the admin API's view into gateway internals (SPEC_FULL.md
// §4.L "GET /stats").
type Stats struct {
	mu              sync.Mutex
	ZeroRTTAccepted uint64
	ZeroRTTRejected uint64
}

func (s *Stats) recordZeroRTT(accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if accepted {
		s.ZeroRTTAccepted++
	} else {
		s.ZeroRTTRejected++
	}
}

// Snapshot returns a copy of the counters safe to read concurrently.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{ZeroRTTAccepted: s.ZeroRTTAccepted, ZeroRTTRejected: s.ZeroRTTRejected}
}

// New builds a Gateway bound to cfg.QUIC.ListenPort.
func New(cfg *config.Config, manager *strategy.StrategyManager, redisSync *gosync.RedisSync, onRequest RequestHandler) (*Gateway, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", cfg.QUIC.ListenPort))
	if err != nil {
		return nil, err
	}

	return &Gateway{
		listenAddr:       addr,
		cfg:              cfg,
		certPath:         cfg.QUIC.CertPath,
		keyPath:          cfg.QUIC.KeyPath,
		enable0RTT:       cfg.QUIC.Enable0RTT,
		maxEarlyData:     cfg.QUIC.MaxEarlyData,
		handshakeTimeout: time.Duration(cfg.QUIC.HandshakeTimeoutMS) * time.Millisecond,
		idleTimeout:      time.Duration(cfg.QUIC.IdleTimeoutMS) * time.Millisecond,
		sessions:         quiccache.NewSessionCache(cfg.QUIC.MaxConnections),
		tokens:           quiccache.NewTokenCache(30*time.Second, cfg.QUIC.MaxConnections),
		manager:          manager,
		redisSync:        redisSync,
		onRequest:        onRequest,
	}, nil
}

// Start opens the UDP socket and runs the receive loop until ctx is
// cancelled, exactly as the teacher's Relay.Start does.
func (g *Gateway) Start(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", g.listenAddr)
	if err != nil {
		return err
	}
	g.conn = conn
	defer g.conn.Close()

	log.Printf("QUIC gateway listening on %s", g.listenAddr.String())

	go g.scavengeLoop(ctx)

	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			n, srcAddr, err := g.conn.ReadFromUDP(buf)
			if err != nil {
				log.Printf("Error reading from UDP: %v", err)
				continue
			}

			data := make([]byte, n)
			copy(data, buf[:n])

			go g.processDatagram(srcAddr, data)
		}
	}
}

// scavengeLoop periodically evicts handshake-timed-out and idle
// connections (spec.md §4.J: "Cleanup is performed lazily at a 10-s
// cadence").
func (g *Gateway) scavengeLoop(ctx context.Context) {
	ticker := time.NewTicker(scavengeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.scavenge()
		}
	}
}

func (g *Gateway) scavenge() {
	now := time.Now()
	g.connections.Range(func(_, value any) bool {
		conn := value.(*quicconn.Connection)
		if conn.IsExpired(now, g.handshakeTimeout, g.idleTimeout) {
			conn.Timeout()
			g.deleteConnection(conn)
		}
		return true
	})
	g.sessions.EvictExpired(now)
}

// deleteConnection removes conn from both lookup indexes. Scavenging
// and driveHandshake's fatal-error path both need to drop a connection
// entirely, not just its canonical entry, or a stale initialIndex entry
// would keep resolving to a closed connection on a retransmitted
// Initial packet.
func (g *Gateway) deleteConnection(conn *quicconn.Connection) {
	g.connections.Delete(string(conn.LocalCID))
	g.initialIndex.Delete(string(conn.OriginalDCID))
}

// newConnection creates and registers a connection for a freshly seen
// Initial packet's original DCID.
func (g *Gateway) newConnection(originalDCID, peerSCID []byte, srcAddr *net.UDPAddr) (*quicconn.Connection, error) {
	localCID := make([]byte, localCIDLen)
	if _, err := rand.Read(localCID); err != nil {
		return nil, err
	}

	engine, err := tlsdriver.NewServerDriver(g.certPath, g.keyPath, g.enable0RTT, g.maxEarlyData, g.acceptEarlyData)
	if err != nil {
		return nil, err
	}
	if err := engine.Start(context.Background()); err != nil {
		return nil, err
	}

	conn := quicconn.New(originalDCID, peerSCID, localCID, srcAddr, engine, time.Now())
	g.connections.Store(string(localCID), conn)
	g.initialIndex.Store(string(originalDCID), conn)
	return conn, nil
}

// acceptEarlyData is the TLS driver's hook for whether to honor a
// client's 0-RTT PSK offer; actual token/ticket validation happens
// earlier in quic0rtt.Accept, so by the time the TLS driver asks, this
// core has already committed to the attempt.
func (g *Gateway) acceptEarlyData(pskIdentity []byte) bool {
	if !g.enable0RTT {
		return false
	}
	_, ok := g.sessions.Get(pskIdentity)
	return ok
}

// Stats exposes the gateway's live counters for the admin API.
func (g *Gateway) Stats() Stats {
	return g.stats.Snapshot()
}

// ConnectionCountsByState returns a snapshot of how many connections
// are in each state, for SPEC_FULL.md §4.L's /stats endpoint.
func (g *Gateway) ConnectionCountsByState() map[string]int {
	counts := make(map[string]int)
	g.connections.Range(func(_, value any) bool {
		conn := value.(*quicconn.Connection)
		counts[conn.State().String()]++
		return true
	})
	return counts
}

// SessionCacheSize and TokenCacheSize back the admin API's cache-size
// fields.
func (g *Gateway) SessionCacheSize() int { return g.sessions.Len() }
func (g *Gateway) TokenCacheSize() int   { return g.tokens.Len() }
