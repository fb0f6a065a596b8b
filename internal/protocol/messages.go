// Package protocol defines the wire messages exchanged between peers
// and the length-prefixed JSON codec that frames them on the Network
// port's request/response channel.
package protocol

import "github.com/ssargent/distree/internal/bptree"

// RequestKind tags which variant of Request is populated.
type RequestKind string

const (
	LeaseRequestKind               RequestKind = "lease"
	MigrateRequestKind             RequestKind = "migrate"
	InsertOnRemoteParentRequestKind RequestKind = "insert_on_remote_parent"
)

// Request is the tagged union of everything a peer can send to another
// peer's request/response protocol handler. Exactly one of the payload
// fields is set, matching Kind.
type Request struct {
	Kind                 RequestKind                 `json:"kind"`
	Lease                *LeaseRequest                `json:"lease,omitempty"`
	Migrate              *MigrateRequest              `json:"migrate,omitempty"`
	InsertOnRemoteParent *InsertOnRemoteParentRequest `json:"insert_on_remote_parent,omitempty"`
}

// LeaseRequest asks the receiving peer to insert entry under key,
// entering the tree at BlockIDHint rather than re-descending from the
// top. BlockIDHint is next_block when this is a sibling-forward, or the
// next block down the tree path when forwarded from an internal block.
type LeaseRequest struct {
	Key         bptree.Key     `json:"key"`
	Entry       bptree.Entry   `json:"entry"`
	BlockIDHint bptree.BlockID `json:"block_id_hint"`
}

// MigrateRequest hands a whole block over to its destination.
type MigrateRequest struct {
	Block bptree.Block `json:"block"`
}

// InsertOnRemoteParentRequest tells parent_id's holder about a newly
// split-off child, after a split produced a right half whose parent
// lives on another peer.
type InsertOnRemoteParentRequest struct {
	Key      bptree.Key     `json:"key"`
	ParentID bptree.BlockID `json:"parent_id"`
	ChildID  bptree.BlockID `json:"child_id"`
}

// NewLeaseRequest builds a tagged Request wrapping a LeaseRequest.
func NewLeaseRequest(key bptree.Key, entry bptree.Entry, hint bptree.BlockID) Request {
	return Request{Kind: LeaseRequestKind, Lease: &LeaseRequest{Key: key, Entry: entry, BlockIDHint: hint}}
}

// NewMigrateRequest builds a tagged Request wrapping a MigrateRequest.
func NewMigrateRequest(block bptree.Block) Request {
	return Request{Kind: MigrateRequestKind, Migrate: &MigrateRequest{Block: block}}
}

// NewInsertOnRemoteParentRequest builds a tagged Request wrapping an
// InsertOnRemoteParentRequest.
func NewInsertOnRemoteParentRequest(key bptree.Key, parentID, childID bptree.BlockID) Request {
	return Request{
		Kind: InsertOnRemoteParentRequestKind,
		InsertOnRemoteParent: &InsertOnRemoteParentRequest{
			Key:      key,
			ParentID: parentID,
			ChildID:  childID,
		},
	}
}

// ResponseKind tags which variant of Response is populated.
type ResponseKind string

const (
	LeaseResponseKind               ResponseKind = "lease"
	MigrateResponseKind             ResponseKind = "migrate"
	InsertOnRemoteParentResponseKind ResponseKind = "insert_on_remote_parent"
)

// Response is the tagged union of everything a peer sends back.
type Response struct {
	Kind                 ResponseKind                  `json:"kind"`
	Lease                *LeaseResponse                `json:"lease,omitempty"`
	Migrate              *MigrateResponse              `json:"migrate,omitempty"`
	InsertOnRemoteParent *InsertOnRemoteParentResponse `json:"insert_on_remote_parent,omitempty"`
}

// LeaseResponse acknowledges a completed (possibly forwarded) lease.
type LeaseResponse struct {
	OK bool `json:"ok"`
}

// MigrateResponse is the destination's cue that the source may delete
// its copy of the migrated block and stop advertising it.
type MigrateResponse struct {
	OK bool `json:"ok"`
}

// InsertOnRemoteParentResponse tells the caller which block id is now
// the authoritative parent, letting it route the next request to the
// correct side of a parent split it may not have known about.
type InsertOnRemoteParentResponse struct {
	ParentID bptree.BlockID `json:"parent_id"`
}

// NewLeaseResponse builds a tagged Response wrapping a LeaseResponse.
func NewLeaseResponse(ok bool) Response {
	return Response{Kind: LeaseResponseKind, Lease: &LeaseResponse{OK: ok}}
}

// NewMigrateResponse builds a tagged Response wrapping a MigrateResponse.
func NewMigrateResponse(ok bool) Response {
	return Response{Kind: MigrateResponseKind, Migrate: &MigrateResponse{OK: ok}}
}

// NewInsertOnRemoteParentResponse builds a tagged Response wrapping an
// InsertOnRemoteParentResponse.
func NewInsertOnRemoteParentResponse(parentID bptree.BlockID) Response {
	return Response{
		Kind:                 InsertOnRemoteParentResponseKind,
		InsertOnRemoteParent: &InsertOnRemoteParentResponse{ParentID: parentID},
	}
}
