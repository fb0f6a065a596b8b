package coordinator

import (
	"context"
	"log"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/ssargent/distree/internal/bptree"
	"github.com/ssargent/distree/internal/peererr"
	"github.com/ssargent/distree/internal/protocol"
)

// HandleLease implements spec.md §4.4.1. The hint block id lets a
// forwarded lease enter the tree at the right local block instead of
// re-descending from the top; an unset hint (a fresh lease from the
// CLI or a peer that doesn't yet know the tree shape) falls back to the
// local top id.
func (c *Coordinator) HandleLease(ctx context.Context, req protocol.LeaseRequest) protocol.Response {
	start := req.BlockIDHint
	if start == bptree.NoBlock {
		start = c.tree.TopID()
	}

	currentID := c.tree.Find(start, req.Key)

	pending := pendingLease{req: req, result: make(chan protocol.Response, 1)}
	if c.enqueueIfMigrating(currentID, pending) {
		select {
		case resp := <-pending.result:
			return resp
		case <-ctx.Done():
			return protocol.NewLeaseResponse(false)
		}
	}

	block, ok := c.tree.Get(currentID)
	if !ok {
		// currentID is the next hop down the tree path, and this peer
		// doesn't hold it: it is either an internal block or a leaf owned
		// by some other peer (spec.md §4.4.1 step 6, "internal block").
		// Ask the DHT for its provider and forward the lease there.
		return c.forwardLease(ctx, currentID, req)
	}

	// A block Find returns that is present locally is always a leaf: at
	// a local internal block, descent either continues into a local child
	// or stops at the id of a missing (remote) child, handled above.
	if req.Key >= block.DividerKey {
		// The block we landed on no longer owns this key, most likely
		// because it split since the caller's hint was computed. Recover
		// via the sibling chain rather than failing the lease.
		return c.forwardLease(ctx, block.NextBlock, req)
	}

	preParent := block.ParentID
	result := c.tree.Insert(currentID, req.Key, req.Entry)
	if result.Split {
		c.informParent(ctx, preParent, result.DividerKey, result.Right)
		c.migrateBlock(ctx, result.Right)
	}
	return protocol.NewLeaseResponse(true)
}

// forwardLease asks the DHT for providers of blockID and relays req to
// whichever responds first, with the hint updated to blockID.
func (c *Coordinator) forwardLease(ctx context.Context, blockID bptree.BlockID, req protocol.LeaseRequest) protocol.Response {
	providers, err := c.net.GetProviders(ctx, blockID.String())
	if err != nil || len(providers) == 0 {
		log.Printf("coordinator: no provider for block %d: %v", blockID, err)
		return protocol.NewLeaseResponse(false)
	}

	resp, err := c.requestAny(ctx, providers, protocol.NewLeaseRequest(req.Key, req.Entry, blockID))
	if err != nil {
		log.Printf("coordinator: forwarding lease for key %d to block %d: %v", req.Key, blockID, err)
		return protocol.NewLeaseResponse(false)
	}
	return resp
}

// requestAny issues req to every candidate concurrently and returns the
// first successful response, discarding the rest — the Go equivalent of
// futures::future::select_ok in original_source/src/events.rs. Losing
// requests are not cancelled; their results are simply never read
// beyond this function returning.
func (c *Coordinator) requestAny(ctx context.Context, providers []peer.ID, req protocol.Request) (protocol.Response, error) {
	if len(providers) == 0 {
		return protocol.Response{}, peererr.New(peererr.RoutingMiss, "no providers available")
	}

	type outcome struct {
		resp protocol.Response
		err  error
	}

	results := make(chan outcome, len(providers))
	for _, p := range providers {
		p := p
		goRecover(func() {
			resp, err := c.net.Request(ctx, p, req)
			results <- outcome{resp, err}
		})
	}

	var lastErr error
	for range providers {
		o := <-results
		if o.err == nil {
			return o.resp, nil
		}
		lastErr = o.err
	}
	return protocol.Response{}, peererr.Wrap(peererr.TransportFailure, lastErr, "every provider failed")
}
