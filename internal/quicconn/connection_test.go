package quicconn

import (
	"net"
	"testing"
	"time"

	"github.com/ewancrowle/porter3/internal/tlsdriver"
)

func testConn(now time.Time) *Connection {
	engine := tlsdriver.NewMockEngine()
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.9"), Port: 4433}
	return New([]byte("odcid-1"), []byte("scid-1"), []byte("lcid-1"), addr, engine, now)
}

func TestStateTransitionsHappyPath(t *testing.T) {
	c := testConn(time.Now())

	if got := c.State(); got != StateInitial {
		t.Fatalf("expected initial state, got %s", got)
	}
	if err := c.EnterHandshake(); err != nil {
		t.Fatalf("initial -> handshake should be allowed: %v", err)
	}
	if err := c.EnterEstablished(); err != nil {
		t.Fatalf("handshake -> established should be allowed: %v", err)
	}
	if got := c.State(); got != StateEstablished {
		t.Fatalf("expected established, got %s", got)
	}
}

func TestStateTransitionsZeroRTTPath(t *testing.T) {
	c := testConn(time.Now())

	if err := c.EnterZeroRTT(); err != nil {
		t.Fatalf("initial -> zero_rtt should be allowed: %v", err)
	}
	if err := c.EnterHandshake(); err != nil {
		t.Fatalf("zero_rtt -> handshake should be allowed: %v", err)
	}
	if err := c.EnterEstablished(); err != nil {
		t.Fatalf("handshake -> established should be allowed: %v", err)
	}
}

func TestStateTransitionRejectsInvalidEdge(t *testing.T) {
	c := testConn(time.Now())

	if err := c.EnterEstablished(); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition skipping handshake, got %v", err)
	}
}

func TestCloseAndTimeoutAreAlwaysValid(t *testing.T) {
	c := testConn(time.Now())
	c.Close()
	if got := c.State(); got != StateClosed {
		t.Fatalf("expected closed, got %s", got)
	}

	c2 := testConn(time.Now())
	_ = c2.EnterHandshake()
	c2.Timeout()
	if got := c2.State(); got != StateTimedOut {
		t.Fatalf("expected timed_out, got %s", got)
	}
}

func TestPNSpacesAreIndependent(t *testing.T) {
	c := testConn(time.Now())

	initial := c.PNSpace(EpochInitial)
	handshake := c.PNSpace(EpochHandshake)

	pn0 := initial.NextOutgoing()
	pn1 := handshake.NextOutgoing()
	if pn0 != 0 || pn1 != 0 {
		t.Fatalf("each space should start at PN 0 independently, got %d and %d", pn0, pn1)
	}

	if !initial.RecordReceived(5) {
		t.Fatal("first receipt of PN 5 in initial space should succeed")
	}
	if handshake.RecordReceived(5) == false {
		t.Fatal("PN 5 in handshake space is independent of initial space and should succeed")
	}
	if initial.RecordReceived(5) {
		t.Fatal("duplicate PN 5 in initial space should be rejected")
	}
}

func TestIsExpiredHandshakeTimeout(t *testing.T) {
	start := time.Now()
	c := testConn(start)

	if c.IsExpired(start, 30*time.Second, 30*time.Second) {
		t.Fatal("freshly created connection should not be expired")
	}
	if !c.IsExpired(start.Add(31*time.Second), 30*time.Second, 30*time.Second) {
		t.Fatal("connection stuck before established should expire after handshake timeout")
	}
}

func TestIsExpiredIdleTimeout(t *testing.T) {
	start := time.Now()
	c := testConn(start)
	_ = c.EnterHandshake()
	_ = c.EnterEstablished()
	c.Touch(start)

	if c.IsExpired(start.Add(10*time.Second), 30*time.Second, 30*time.Second) {
		t.Fatal("recently active established connection should not be expired")
	}
	if !c.IsExpired(start.Add(31*time.Second), 30*time.Second, 30*time.Second) {
		t.Fatal("established connection idle past idleTimeout should be expired")
	}
}

func TestIsExpiredAfterClose(t *testing.T) {
	c := testConn(time.Now())
	c.Close()
	if !c.IsExpired(time.Now(), 30*time.Second, 30*time.Second) {
		t.Fatal("closed connection should always be reported expired")
	}
}

func TestRequestInFlightInvariant(t *testing.T) {
	c := testConn(time.Now())

	if !c.TryStartRequest() {
		t.Fatal("first request should be allowed to start")
	}
	if c.TryStartRequest() {
		t.Fatal("second concurrent request should be rejected while one is in flight")
	}
	c.FinishRequest()
	if !c.TryStartRequest() {
		t.Fatal("request should be allowed again after FinishRequest")
	}
}

func TestPendingEarlyResponse(t *testing.T) {
	c := testConn(time.Now())

	if _, ok := c.TakePendingEarlyResponse(); ok {
		t.Fatal("no early response should be pending initially")
	}

	payload := []byte("early-response-bytes")
	c.SetPendingEarlyResponse(payload)

	got, ok := c.TakePendingEarlyResponse()
	if !ok || string(got) != string(payload) {
		t.Fatalf("expected pending response %q, got %q (ok=%v)", payload, got, ok)
	}

	if _, ok := c.TakePendingEarlyResponse(); ok {
		t.Fatal("pending response should be cleared after being taken")
	}
}

func TestUpdatePeerAddress(t *testing.T) {
	c := testConn(time.Now())
	newAddr := &net.UDPAddr{IP: net.ParseIP("198.51.100.7"), Port: 9000}
	c.UpdatePeerAddress(newAddr)
	if c.ClientAddr.String() != newAddr.String() {
		t.Fatalf("expected updated address %s, got %s", newAddr, c.ClientAddr)
	}
}
