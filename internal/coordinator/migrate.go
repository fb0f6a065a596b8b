package coordinator

import (
	"context"
	"log"

	"github.com/ssargent/distree/internal/bptree"
	"github.com/ssargent/distree/internal/protocol"
)

// HandleMigrate implements spec.md §4.4.3 on the destination peer: adopt
// the incoming block under its own id, start advertising it, and
// acknowledge so the source can delete its copy. No parent backfill
// happens here — the source is responsible for InsertOnRemoteParent
// before or alongside the migrate.
func (c *Coordinator) HandleMigrate(ctx context.Context, req protocol.MigrateRequest) protocol.Response {
	block := req.Block
	c.tree.Add(block.BlockID, &block)

	if err := c.net.StartProviding(ctx, block.BlockID.String()); err != nil {
		log.Printf("coordinator: advertising migrated block %d: %v", block.BlockID, err)
	}
	return protocol.NewMigrateResponse(true)
}

// migrateBlock hands blockID over to the current migrate_peer: it deep
// copies the block (spec.md §5 "Block payloads are deep-copied on
// migration — no cross-peer sharing of block memory"), marks it
// migrating so concurrent leases queue instead of racing the hand-off,
// and on success removes the local copy, withdraws its provider record
// where the Network offers a StopProviding method, and replays anything
// that queued. A migrate target of self is a no-op that must still
// terminate (spec.md §9) — the pending requests are simply re-dispatched
// locally, as they are when the migration fails and the block stays here.
func (c *Coordinator) migrateBlock(ctx context.Context, blockID bptree.BlockID) {
	block, ok := c.tree.Get(blockID)
	if !ok {
		return
	}

	blockCopy := bptree.Block{
		BlockID:    block.BlockID,
		ParentID:   block.ParentID,
		IsLeaf:     block.IsLeaf,
		DividerKey: block.DividerKey,
		NextBlock:  block.NextBlock,
		Keys:       append([]bptree.Key(nil), block.Keys...),
		Children:   append([]bptree.BlockID(nil), block.Children...),
		Values:     append([]bptree.Entry(nil), block.Values...),
	}

	c.mu.Lock()
	c.migrating[blockID] = true
	c.mu.Unlock()

	if err := c.net.StartProviding(ctx, blockID.String()); err != nil {
		log.Printf("coordinator: advertising migrating block %d: %v", blockID, err)
	}

	dest := c.tracker.MigratePeer()

	if dest == c.self {
		for _, p := range c.finishMigration(blockID) {
			p.result <- c.HandleLease(ctx, p.req)
		}
		return
	}

	resp, err := c.net.Request(ctx, dest, protocol.NewMigrateRequest(blockCopy))
	if err != nil || resp.Kind != protocol.MigrateResponseKind || resp.Migrate == nil || !resp.Migrate.OK {
		log.Printf("coordinator: migrating block %d to %s failed: %v", blockID, dest, err)
		for _, p := range c.finishMigration(blockID) {
			p.result <- c.HandleLease(ctx, p.req)
		}
		return
	}

	c.tree.Remove(blockID)
	// The Network port has no withdraw operation; FakeNetwork offers one,
	// LibP2PNetwork does not, so a libp2p source's record is not withdrawn.
	if w, ok := c.net.(interface{ StopProviding(key string) }); ok {
		w.StopProviding(blockID.String())
	}

	for _, p := range c.finishMigration(blockID) {
		fwdResp, ferr := c.net.Request(ctx, dest, protocol.NewLeaseRequest(p.req.Key, p.req.Entry, blockID))
		if ferr != nil {
			log.Printf("coordinator: replaying queued lease for block %d: %v", blockID, ferr)
			p.result <- protocol.NewLeaseResponse(false)
			continue
		}
		p.result <- fwdResp
	}
}

// enqueueIfMigrating atomically checks whether id is mid-migration and,
// if so, appends p to its queue. The check and append happen under one
// lock so a migration's finishMigration can never drain the queue
// between a caller's check and its append.
func (c *Coordinator) enqueueIfMigrating(id bptree.BlockID, p pendingLease) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.migrating[id] {
		return false
	}
	c.queued[id] = append(c.queued[id], p)
	return true
}

// finishMigration clears id's migrating flag and returns (removing) its
// queued requests, atomically so no lease can enqueue against a block
// that has already stopped migrating.
func (c *Coordinator) finishMigration(id bptree.BlockID) []pendingLease {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.migrating, id)
	pending := c.queued[id]
	delete(c.queued, id)
	return pending
}
