package quic0rtt

import (
	"net"
	"testing"
	"time"

	"github.com/ewancrowle/porter3/internal/quiccache"
)

func TestAcceptRejectsMissingToken(t *testing.T) {
	tokens := quiccache.NewTokenCache(5*time.Second, 10)
	sessions := quiccache.NewSessionCache(10)
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 4433}

	_, err := Accept(nil, nil, addr, nil, tokens, sessions, time.Now())
	if err != ErrNoToken {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestAcceptRejectsInvalidToken(t *testing.T) {
	tokens := quiccache.NewTokenCache(5*time.Second, 10)
	sessions := quiccache.NewSessionCache(10)
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 4433}

	_, err := Accept(nil, nil, addr, []byte("never-issued"), tokens, sessions, time.Now())
	if err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestAcceptRejectsTokenWithoutPSKIdentity(t *testing.T) {
	tokens := quiccache.NewTokenCache(5*time.Second, 10)
	sessions := quiccache.NewSessionCache(10)
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 4433}
	now := time.Now()

	tokens.Store([]byte("plain-token"), addr, now)

	_, err := Accept(nil, nil, addr, []byte("plain-token"), tokens, sessions, now)
	if err != ErrUnknownPSKIdentity {
		t.Fatalf("expected ErrUnknownPSKIdentity, got %v", err)
	}
}

func TestAcceptRejectsExpiredTicket(t *testing.T) {
	tokens := quiccache.NewTokenCache(5*time.Second, 10)
	sessions := quiccache.NewSessionCache(10)
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 4433}
	now := time.Now()

	psk := []byte("psk-identity-1")
	tokens.StoreForResumption([]byte("resume-token"), addr, psk, now)
	sessions.Store(&quiccache.Ticket{
		PSKIdentity:      psk,
		IssuedAt:         now.Add(-2 * time.Hour),
		LifetimeSeconds:  60,
		ResumptionSecret: make([]byte, 32),
	})

	_, err := Accept(nil, nil, addr, []byte("resume-token"), tokens, sessions, now)
	if err != ErrTicketExpired {
		t.Fatalf("expected ErrTicketExpired, got %v", err)
	}
}
