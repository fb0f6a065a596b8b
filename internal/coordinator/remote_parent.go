package coordinator

import (
	"context"
	"log"

	"github.com/ssargent/distree/internal/bptree"
	"github.com/ssargent/distree/internal/protocol"
)

// HandleInsertOnRemoteParent implements spec.md §4.4.2: a split on
// another peer produced a new right sibling whose parent lives here.
func (c *Coordinator) HandleInsertOnRemoteParent(ctx context.Context, req protocol.InsertOnRemoteParentRequest) protocol.Response {
	parent, ok := c.tree.Get(req.ParentID)
	if !ok {
		log.Printf("coordinator: insert_on_remote_parent names unknown parent %d", req.ParentID)
		return protocol.NewInsertOnRemoteParentResponse(req.ParentID)
	}

	if req.Key >= parent.DividerKey {
		// This parent has itself split since the caller learned its id;
		// the authoritative parent is now further along the sibling chain.
		providers, err := c.net.GetProviders(ctx, parent.NextBlock.String())
		if err != nil || len(providers) == 0 {
			log.Printf("coordinator: no provider for parent sibling %d: %v", parent.NextBlock, err)
			return protocol.NewInsertOnRemoteParentResponse(req.ParentID)
		}
		fwd := protocol.NewInsertOnRemoteParentRequest(req.Key, parent.NextBlock, req.ChildID)
		resp, err := c.requestAny(ctx, providers, fwd)
		if err != nil {
			log.Printf("coordinator: forwarding insert_on_remote_parent: %v", err)
			return protocol.NewInsertOnRemoteParentResponse(req.ParentID)
		}
		return resp
	}

	preParent := parent.ParentID
	result := c.tree.InsertChild(req.ParentID, req.Key, req.ChildID)
	if !result.Split {
		return protocol.NewInsertOnRemoteParentResponse(req.ParentID)
	}

	c.migrateBlock(ctx, result.Right)
	c.informParent(ctx, preParent, result.DividerKey, result.Right)

	updatedLeft, ok := c.tree.Get(req.ParentID)
	if ok && req.Key < updatedLeft.DividerKey {
		return protocol.NewInsertOnRemoteParentResponse(req.ParentID)
	}
	return protocol.NewInsertOnRemoteParentResponse(result.Right)
}

// informParent makes (key, child) known to parentID, locally or over
// the wire, and cascades upward if that insertion itself overflows the
// parent. parentID == NoBlock means the split that produced child just
// grew a fresh root (SplitLeafRoot / SplitInternalRoot), which already
// wired both halves into the new root as children — nothing further to
// announce (see DESIGN.md's root-growth decision).
func (c *Coordinator) informParent(ctx context.Context, parentID bptree.BlockID, key bptree.Key, child bptree.BlockID) {
	if parentID == bptree.NoBlock {
		return
	}

	if c.tree.Contains(parentID) {
		preGrandparent := bptree.NoBlock
		if pb, ok := c.tree.Get(parentID); ok {
			preGrandparent = pb.ParentID
		}

		result := c.tree.InsertChild(parentID, key, child)
		if !result.Split {
			return
		}

		c.migrateBlock(ctx, result.Right)
		c.informParent(ctx, preGrandparent, result.DividerKey, result.Right)
		return
	}

	providers, err := c.net.GetProviders(ctx, parentID.String())
	if err != nil || len(providers) == 0 {
		log.Printf("coordinator: could not find provider for parent %d: %v", parentID, err)
		return
	}

	req := protocol.NewInsertOnRemoteParentRequest(key, parentID, child)
	if _, err := c.requestAny(ctx, providers, req); err != nil {
		log.Printf("coordinator: insert_on_remote_parent to parent %d failed: %v", parentID, err)
	}
}
