package quicconn

// Epoch identifies one of the three independent packet-number spaces
// spec.md's Data Model describes (0-RTT shares the Application space's
// key phase but is tracked separately here since its PN sequence is
// independent until the Handshake epoch opens).
type Epoch int

const (
	EpochInitial Epoch = iota
	EpochHandshake
	EpochApplication
	EpochEarly
)

// PNSpace tracks one epoch's outgoing packet-number counter and the set
// of received packet numbers, independently of every other space
// (spec.md Data Model: "a PN value may repeat across spaces, never
// within one").
type PNSpace struct {
	nextOutgoing    uint64
	largestReceived int64 // -1 means none received yet
	received        map[uint64]struct{}
}

// NewPNSpace returns an empty packet-number space starting at PN 0.
func NewPNSpace() *PNSpace {
	return &PNSpace{largestReceived: -1, received: make(map[uint64]struct{})}
}

// NextOutgoing returns the next packet number to send in this space and
// advances the counter. PNs within a space are strictly monotonic
// starting at 0 (spec.md Data Model).
func (s *PNSpace) NextOutgoing() uint64 {
	pn := s.nextOutgoing
	s.nextOutgoing++
	return pn
}

// Peek returns the next PN that NextOutgoing would hand out, without
// consuming it.
func (s *PNSpace) Peek() uint64 {
	return s.nextOutgoing
}

// RecordReceived marks pn as received, for ACK-range bookkeeping and
// duplicate detection, and returns false if pn was already recorded.
func (s *PNSpace) RecordReceived(pn uint64) bool {
	if _, dup := s.received[pn]; dup {
		return false
	}
	s.received[pn] = struct{}{}
	if int64(pn) > s.largestReceived {
		s.largestReceived = int64(pn)
	}
	return true
}

// LargestReceived returns the largest PN seen in this space, or -1 if
// none yet.
func (s *PNSpace) LargestReceived() int64 {
	return s.largestReceived
}
