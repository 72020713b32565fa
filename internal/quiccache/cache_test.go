package quiccache

import (
	"net"
	"testing"
	"time"
)

func TestSessionCacheStoreGet(t *testing.T) {
	c := NewSessionCache(10)
	ticket := &Ticket{PSKIdentity: []byte("psk-1"), Body: []byte("ticket-body"), IssuedAt: time.Now(), LifetimeSeconds: 60}
	c.Store(ticket)

	got, ok := c.Get([]byte("psk-1"))
	if !ok || got != ticket {
		t.Fatalf("expected to find stored ticket")
	}

	// consumed, not removed
	got2, ok := c.Get([]byte("psk-1"))
	if !ok || got2 != ticket {
		t.Fatalf("ticket should remain after being read once")
	}
}

func TestSessionCacheEvictExpired(t *testing.T) {
	c := NewSessionCache(10)
	now := time.Now()
	c.Store(&Ticket{PSKIdentity: []byte("old"), IssuedAt: now.Add(-2 * time.Hour), LifetimeSeconds: 60})
	c.Store(&Ticket{PSKIdentity: []byte("fresh"), IssuedAt: now, LifetimeSeconds: 60})

	c.EvictExpired(now)

	if _, ok := c.Get([]byte("old")); ok {
		t.Error("expired ticket should have been evicted")
	}
	if _, ok := c.Get([]byte("fresh")); !ok {
		t.Error("fresh ticket should remain")
	}
}

func TestSessionCacheCapacityEviction(t *testing.T) {
	c := NewSessionCache(2)
	c.Store(&Ticket{PSKIdentity: []byte("a"), IssuedAt: time.Now(), LifetimeSeconds: 999})
	c.Store(&Ticket{PSKIdentity: []byte("b"), IssuedAt: time.Now(), LifetimeSeconds: 999})
	c.Store(&Ticket{PSKIdentity: []byte("c"), IssuedAt: time.Now(), LifetimeSeconds: 999})

	if c.Len() != 2 {
		t.Fatalf("expected capacity-bounded size 2, got %d", c.Len())
	}
	if _, ok := c.Get([]byte("a")); ok {
		t.Error("oldest entry should have been evicted")
	}
}

func TestTokenCacheValidate(t *testing.T) {
	c := NewTokenCache(5*time.Second, 10)
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 5000}
	now := time.Now()

	c.Store([]byte("token-1"), addr, now)

	if !c.Validate([]byte("token-1"), addr, now.Add(1*time.Second)) {
		t.Error("expected token to validate against matching address within window")
	}

	other := &net.UDPAddr{IP: net.ParseIP("203.0.113.6"), Port: 5000}
	if c.Validate([]byte("token-1"), other, now) {
		t.Error("token should not validate against a different address")
	}

	if c.Validate([]byte("token-1"), addr, now.Add(10*time.Second)) {
		t.Error("token should not validate after the validity window elapses")
	}

	if c.Validate([]byte("unknown-token"), addr, now) {
		t.Error("unknown token should never validate")
	}
}
