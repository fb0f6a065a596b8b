package gossip

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
)

func testPeerID(t *testing.T, seed byte) peer.ID {
	t.Helper()
	id, err := peer.IDFromBytes([]byte{0x00, 0x01, seed})
	if err != nil {
		t.Fatalf("building test peer id: %v", err)
	}
	return id
}

func TestNewTrackerTargetsSelf(t *testing.T) {
	self := testPeerID(t, 1)
	tr := NewTracker(self)

	if tr.MigratePeer() != self {
		t.Fatalf("migrate peer = %v, want self %v", tr.MigratePeer(), self)
	}
	if !tr.IsSelf() {
		t.Fatal("expected IsSelf to be true before any gossip sample")
	}
}

func TestObserveFirstSampleAlwaysWins(t *testing.T) {
	self := testPeerID(t, 1)
	other := testPeerID(t, 2)
	tr := NewTracker(self)

	// A large first sample still replaces the unseeded self default.
	tr.Observe(other, 1000)

	if tr.MigratePeer() != other {
		t.Fatalf("migrate peer = %v, want %v", tr.MigratePeer(), other)
	}
	if tr.IsSelf() {
		t.Fatal("expected IsSelf to be false after a gossip sample")
	}
}

func TestObserveOnlyReplacesOnSmallerSize(t *testing.T) {
	self := testPeerID(t, 1)
	light := testPeerID(t, 2)
	heavy := testPeerID(t, 3)
	tr := NewTracker(self)

	tr.Observe(light, 3)
	tr.Observe(heavy, 10)

	if tr.MigratePeer() != light {
		t.Fatalf("migrate peer = %v, want %v (heavier sample must not win)", tr.MigratePeer(), light)
	}
}

func TestObserveReplacesOnStrictlySmallerSize(t *testing.T) {
	self := testPeerID(t, 1)
	first := testPeerID(t, 2)
	lighter := testPeerID(t, 3)
	tr := NewTracker(self)

	tr.Observe(first, 5)
	tr.Observe(lighter, 4)

	if tr.MigratePeer() != lighter {
		t.Fatalf("migrate peer = %v, want %v", tr.MigratePeer(), lighter)
	}

	// An equal-size sample does not displace the current target.
	tied := testPeerID(t, 4)
	tr.Observe(tied, 4)
	if tr.MigratePeer() != lighter {
		t.Fatalf("migrate peer changed on a tied sample: got %v, want %v", tr.MigratePeer(), lighter)
	}
}

func TestMigrateSizeTracksCurrentTarget(t *testing.T) {
	self := testPeerID(t, 1)
	first := testPeerID(t, 2)
	lighter := testPeerID(t, 3)
	tr := NewTracker(self)

	if tr.MigrateSize() != 0 {
		t.Fatalf("migrate size before any sample = %d, want 0", tr.MigrateSize())
	}

	tr.Observe(first, 5)
	if tr.MigrateSize() != 5 {
		t.Fatalf("migrate size = %d, want 5", tr.MigrateSize())
	}

	tr.Observe(lighter, 4)
	if tr.MigrateSize() != 4 {
		t.Fatalf("migrate size = %d, want 4 after a lighter sample replaces the target", tr.MigrateSize())
	}
}
