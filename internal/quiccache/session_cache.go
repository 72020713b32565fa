// Package quiccache implements the two in-memory caches spec.md §4.H
// describes: the session-ticket cache keyed by PSK identity, and the
// address-validation token cache keyed by token bytes.
//
// Grounded in the teacher's internal/relay/engine.go Relay.sessions
// (a sync.Map keyed by DCID with lastSeen-based eviction) for the
// concurrency shape, generalized from a relay session table to a
// ticket/token store, and in internal/sync/redis.go for the optional
// cross-shard mirroring.
package quiccache

import (
	"sync"
	"time"

	"github.com/ewancrowle/porter3/internal/quiccrypto"
)

// Ticket is spec.md's Session Ticket record.
type Ticket struct {
	PSKIdentity      []byte
	Body             []byte
	IssuedAt         time.Time
	LifetimeSeconds  int
	MaxEarlyDataSize uint32

	// ResumptionSecret is the PSK material the 0-RTT key schedule
	// derives from; it is never serialized onto the wire by this cache,
	// only held in memory (spec.md §5: key material zeroed on teardown).
	ResumptionSecret []byte

	// Suite is the AEAD negotiated on the connection that issued this
	// ticket. 0-RTT key derivation must use the same suite the original
	// handshake selected (spec.md §4.C: "selected per TLS cipher
	// suite") — a client resuming against a suite the server no longer
	// offers falls back to a full handshake rather than reusing this
	// ticket.
	Suite quiccrypto.Suite
}

// Expired reports whether t has outlived its lifetime as of now.
func (t *Ticket) Expired(now time.Time) bool {
	return now.Sub(t.IssuedAt) > time.Duration(t.LifetimeSeconds)*time.Second
}

// SessionCache maps PSK identity to ticket (spec.md §4.H). Reads may be
// concurrent; writes are serialized — the same shape as sync.RWMutex
// guarded maps elsewhere in the teacher's codebase
// (internal/strategy/simple.go).
type SessionCache struct {
	mu      sync.RWMutex
	tickets map[string]*Ticket
	order   []string // insertion order, oldest first, for capacity eviction
	maxSize int
}

// NewSessionCache returns a cache that evicts its oldest entry once
// more than maxSize tickets are stored.
func NewSessionCache(maxSize int) *SessionCache {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &SessionCache{tickets: make(map[string]*Ticket), maxSize: maxSize}
}

// Store inserts or replaces a ticket keyed by its PSK identity.
func (c *SessionCache) Store(t *Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := string(t.PSKIdentity)
	if _, exists := c.tickets[key]; !exists {
		c.order = append(c.order, key)
	}
	c.tickets[key] = t

	for len(c.order) > c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.tickets, oldest)
	}
}

// Get looks up a ticket by PSK identity. It does not remove the ticket
// — 0-RTT attempts consume a ticket without deleting it (spec.md Data
// Model: "consumed (not removed) on 0-RTT attempts").
func (c *SessionCache) Get(pskIdentity []byte) (*Ticket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tickets[string(pskIdentity)]
	return t, ok
}

// EvictExpired removes every ticket whose lifetime has elapsed as of
// now.
func (c *SessionCache) EvictExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.order[:0]
	for _, key := range c.order {
		t := c.tickets[key]
		if t.Expired(now) {
			delete(c.tickets, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
}

// Len returns the number of tickets currently stored.
func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tickets)
}
