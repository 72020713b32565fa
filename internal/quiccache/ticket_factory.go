package quiccache

import (
	"time"

	"github.com/ewancrowle/porter3/internal/quiccrypto"
)

// DefaultTicketLifetime matches common TLS 1.3 session-ticket practice
// (a few hours), long enough to exercise 0-RTT in a typical session
// without holding resumption secrets indefinitely.
const DefaultTicketLifetime = 2 * time.Hour

// TicketFor builds a fresh Session Ticket bound to pskIdentity, deriving
// its resumption secret from the server's Application traffic secret at
// handshake completion (spec.md Data Model: "created at handshake
// completion"). suite records the cipher suite that connection
// negotiated, so a later 0-RTT attempt against this ticket derives keys
// with the same AEAD rather than assuming AES-128-GCM.
func TicketFor(pskIdentity, resumptionSecret []byte, maxEarlyDataSize uint32, suite quiccrypto.Suite) *Ticket {
	return &Ticket{
		PSKIdentity:      pskIdentity,
		Body:             pskIdentity,
		IssuedAt:         time.Now(),
		LifetimeSeconds:  int(DefaultTicketLifetime.Seconds()),
		MaxEarlyDataSize: maxEarlyDataSize,
		ResumptionSecret: resumptionSecret,
		Suite:            suite,
	}
}
