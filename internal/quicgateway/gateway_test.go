package quicgateway

import "testing"

func TestStatsSnapshotIsIndependentCopy(t *testing.T) {
	var s Stats
	s.recordZeroRTT(true)
	s.recordZeroRTT(true)
	s.recordZeroRTT(false)

	snap := s.Snapshot()
	if snap.ZeroRTTAccepted != 2 {
		t.Errorf("expected 2 accepted, got %d", snap.ZeroRTTAccepted)
	}
	if snap.ZeroRTTRejected != 1 {
		t.Errorf("expected 1 rejected, got %d", snap.ZeroRTTRejected)
	}

	// Mutating the snapshot must not affect the live counters.
	snap.ZeroRTTAccepted = 100
	if live := s.Snapshot(); live.ZeroRTTAccepted != 2 {
		t.Errorf("snapshot mutation leaked into live stats: %d", live.ZeroRTTAccepted)
	}
}

func TestConnectionCountsByStateEmptyGateway(t *testing.T) {
	g := &Gateway{}
	counts := g.ConnectionCountsByState()
	if len(counts) != 0 {
		t.Errorf("expected no connections, got %v", counts)
	}
}
