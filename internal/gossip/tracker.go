// Package gossip tracks the lightest-loaded peer seen on the "size" topic
// and drives the periodic broadcast of this peer's own block count, per
// spec.md §4.5.
package gossip

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Tracker records the cheapest known migration destination. The very
// first target, before any gossip sample arrives, is the tracker's own
// peer — so a migrate issued before any gossip is heard targets self,
// which callers must treat as a no-op (spec.md §9).
type Tracker struct {
	mu          sync.Mutex
	self        peer.ID
	migratePeer peer.ID
	minSize     int
	seeded      bool
}

// NewTracker returns a tracker whose migrate target starts out as self.
func NewTracker(self peer.ID) *Tracker {
	return &Tracker{self: self, migratePeer: self, minSize: 0}
}

// Observe records a gossip sample: if size is smaller than the current
// tracked minimum, sender becomes the new migrate target. The very
// first observation always wins regardless of size, matching the
// reference tracker's "updated on each inbound gossip sample" rule for
// its initial unset state.
func (t *Tracker) Observe(sender peer.ID, size int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.seeded || size < t.minSize {
		t.migratePeer = sender
		t.minSize = size
		t.seeded = true
	}
}

// MigratePeer returns the current cheapest known destination.
func (t *Tracker) MigratePeer() peer.ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.migratePeer
}

// MigrateSize returns the last gossiped block count for the current
// migrate target (0 before any sample has been observed).
func (t *Tracker) MigrateSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minSize
}

// IsSelf reports whether the current migrate target is this peer,
// letting callers short-circuit a self-migration into a no-op.
func (t *Tracker) IsSelf() bool {
	return t.MigratePeer() == t.self
}
