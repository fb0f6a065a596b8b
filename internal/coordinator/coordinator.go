// Package coordinator is the per-peer actor (spec §4.3): it owns the
// local Tree, dispatches inbound protocol requests, tracks blocks that
// are mid-migration, queues requests that race a migration, and drives
// the gossip size broadcast. Grounded on pkg/store/kv_store.go's single
// struct owning a lock plus bookkeeping, and on
// original_source/src/events.rs's handler functions, generalized per
// spec.md into an explicit object rather than the reference's
// task-captured ambient state (spec.md §9 "Global mutable state").
package coordinator

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/distree/internal/bptree"
	"github.com/ssargent/distree/internal/gossip"
	"github.com/ssargent/distree/internal/network"
	"github.com/ssargent/distree/internal/peererr"
	"github.com/ssargent/distree/internal/protocol"
)

// pendingLease is one inbound lease request queued because it raced a
// migration. result is delivered exactly once, either by the migration's
// replay or by a same-peer re-dispatch if the migrate target turned out
// to be self or the migration failed.
type pendingLease struct {
	req    protocol.LeaseRequest
	result chan protocol.Response
}

// Coordinator is the single logical actor per peer described in
// spec.md §4.3.
type Coordinator struct {
	self peer.ID
	net  network.Network
	tree *bptree.Tree

	tracker     *gossip.Tracker
	gossipTimer *gossip.Timer

	mu        sync.Mutex
	migrating map[bptree.BlockID]bool
	queued    map[bptree.BlockID][]pendingLease
}

// New builds a coordinator over an empty local shard and installs it as
// net's request handler.
func New(self peer.ID, net network.Network) *Coordinator {
	c := &Coordinator{
		self:      self,
		net:       net,
		tree:      bptree.NewTree(),
		tracker:   gossip.NewTracker(self),
		migrating: make(map[bptree.BlockID]bool),
		queued:    make(map[bptree.BlockID][]pendingLease),
	}
	net.SetRequestHandler(c.handleRequest)
	return c
}

// Tree exposes the local shard, mainly for tests and the admin surface.
func (c *Coordinator) Tree() *bptree.Tree { return c.tree }

// Stats summarizes the coordinator's bookkeeping for the admin/metrics
// surface (SPEC_FULL.md §4.7 / adminapi).
type Stats struct {
	TopID       bptree.BlockID
	LocalBlocks int
	Migrating   int
	Queued      int
	MigratePeer peer.ID
	MigrateSize int
}

// Stats returns a point-in-time snapshot of the coordinator's state.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	migrating := len(c.migrating)
	queued := 0
	for _, q := range c.queued {
		queued += len(q)
	}
	c.mu.Unlock()

	return Stats{
		TopID:       c.tree.TopID(),
		LocalBlocks: c.tree.Size(),
		Migrating:   migrating,
		Queued:      queued,
		MigratePeer: c.tracker.MigratePeer(),
		MigrateSize: c.tracker.MigrateSize(),
	}
}

// handleRequest is installed as the Network port's RequestHandler; it
// dispatches an inbound request to the matching protocol handler.
func (c *Coordinator) handleRequest(ctx context.Context, from peer.ID, req protocol.Request) protocol.Response {
	// A short opaque id tagging this request's dispatch log line. It is
	// not passed on to the handlers, so the log lines of the cascade the
	// request may trigger (inform-parent, migrate, replay) do not carry it. The
	// teacher used ksuid for KV value identity; a distributed tree has no
	// value-identity concept of its own (Entry/BlockId are pinned to
	// uint64 by spec), so it's reused here for request tracing instead.
	reqID := ksuid.New().String()
	log.Printf("coordinator: [%s] dispatching %s request from %s", reqID, req.Kind, from)

	switch req.Kind {
	case protocol.LeaseRequestKind:
		return c.HandleLease(ctx, *req.Lease)
	case protocol.MigrateRequestKind:
		return c.HandleMigrate(ctx, *req.Migrate)
	case protocol.InsertOnRemoteParentRequestKind:
		return c.HandleInsertOnRemoteParent(ctx, *req.InsertOnRemoteParent)
	default:
		log.Printf("coordinator: unknown request kind %q from %s", req.Kind, from)
		return protocol.Response{}
	}
}

// Root implements the "root" CLI command: become the root holder if no
// peer currently advertises "root".
func (c *Coordinator) Root(ctx context.Context) error {
	if c.tree.TopID() != bptree.NoBlock {
		return nil
	}

	providers, err := c.net.GetProviders(ctx, "root")
	if err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "checking for an existing root")
	}
	if len(providers) > 0 {
		return peererr.Newf(peererr.StateViolation, "root already held by %v", providers)
	}

	leaf := bptree.NewLeaf()
	c.tree.Add(leaf.BlockID, leaf)
	c.tree.SetTopID(leaf.BlockID)

	if err := c.net.StartProviding(ctx, "root"); err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "advertising root")
	}
	if err := c.net.StartProviding(ctx, leaf.BlockID.String()); err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "advertising root leaf")
	}
	return nil
}

// GetLease implements the "getlease" CLI command: handle locally if this
// peer is the root holder, otherwise forward to whoever the DHT says
// provides "root".
func (c *Coordinator) GetLease(ctx context.Context, key bptree.Key) (protocol.Response, error) {
	entry := bptree.NewEntry(c.self, key)

	if c.tree.TopID() != bptree.NoBlock {
		return c.HandleLease(ctx, protocol.LeaseRequest{Key: key, Entry: entry, BlockIDHint: c.tree.TopID()}), nil
	}

	providers, err := c.net.GetProviders(ctx, "root")
	if err != nil {
		return protocol.Response{}, peererr.Wrap(peererr.RoutingMiss, err, "no known root provider")
	}
	if len(providers) == 0 {
		return protocol.Response{}, peererr.New(peererr.RoutingMiss, "no known root provider")
	}

	return c.requestAny(ctx, providers, protocol.NewLeaseRequest(key, entry, bptree.NoBlock))
}

// Migrate implements the "migrate" CLI command: force-migrate the local
// top block to the current migrate_peer.
func (c *Coordinator) Migrate(ctx context.Context) error {
	top := c.tree.TopID()
	if top == bptree.NoBlock {
		return peererr.New(peererr.StateViolation, "no local root block to migrate")
	}
	c.migrateBlock(ctx, top)
	return nil
}

// StartGossip subscribes to the "size" topic and begins publishing this
// peer's local block count every interval, grounded on
// original_source/src/gossip_timer.rs's ten-second loop.
func (c *Coordinator) StartGossip(ctx context.Context, interval time.Duration) error {
	ch, err := c.net.Subscribe(ctx, "size")
	if err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "subscribing to size topic")
	}

	goRecover(func() { c.consumeGossip(ctx, ch) })

	c.gossipTimer = gossip.StartTimer(interval, func() {
		c.publishSize(ctx)
	})
	return nil
}

// StopGossip ends the size-broadcast timer.
func (c *Coordinator) StopGossip() {
	if c.gossipTimer != nil {
		c.gossipTimer.Stop()
		c.gossipTimer = nil
	}
}

func (c *Coordinator) consumeGossip(ctx context.Context, ch <-chan network.GossipMessage) {
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var size int
			if err := json.Unmarshal(msg.Payload, &size); err != nil {
				log.Printf("coordinator: malformed gossip payload from %s: %v", msg.From, err)
				continue
			}
			c.tracker.Observe(msg.From, size)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) publishSize(ctx context.Context) {
	payload, err := json.Marshal(c.tree.Size())
	if err != nil {
		log.Printf("coordinator: marshaling local size: %v", err)
		return
	}
	if err := c.net.Publish(ctx, "size", payload); err != nil {
		log.Printf("coordinator: publishing size: %v", err)
	}
}
