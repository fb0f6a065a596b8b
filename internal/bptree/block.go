// Package bptree implements the in-memory B+ tree that backs one peer's
// local shard of the distributed tree: a map of Block by BlockID, split
// into leaves and internal nodes, linked by divider keys and sibling
// pointers so a block can be handed off to another peer without carrying
// any in-process pointers with it.
package bptree

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"strconv"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Size is the fanout bound: a block splits exactly when its key count
// reaches Size, so between operations every block holds at most Size-1
// keys.
const Size = 5

// Key is the ordering type for everything stored in the tree.
type Key uint64

// BlockID identifies a block across the whole network. Zero is reserved
// as the sentinel "no block".
type BlockID uint64

// NoBlock is the sentinel BlockID meaning "no block".
const NoBlock BlockID = 0

// String renders a BlockID the way the DHT provider-key schema expects:
// block_id.to_string().
func (id BlockID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// NewBlockID draws a BlockID uniformly at random, the way a fresh block is
// minted at split time or root creation. Collisions are assumed
// negligible, per the data model.
func NewBlockID() BlockID {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic(err)
		}
		id := BlockID(binary.BigEndian.Uint64(buf[:]))
		if id != NoBlock {
			return id
		}
	}
}

// Data is the opaque leaf payload. It carries no fields in this design;
// the intended schema for non-trivial payloads is left unspecified.
type Data struct{}

// Entry is a leaf record: the peer that produced it, the key it was
// inserted under, and its (empty) payload. Two entries are equal iff
// their OwnerPeer is equal.
type Entry struct {
	OwnerPeer peer.ID `json:"owner_peer"`
	Key       Key     `json:"key"`
	Payload   Data    `json:"payload"`
}

// NewEntry builds an Entry owned by the given peer for the given key.
func NewEntry(owner peer.ID, key Key) Entry {
	return Entry{OwnerPeer: owner, Key: key}
}

// Equal reports whether two entries share an owner peer.
func (e Entry) Equal(other Entry) bool {
	return e.OwnerPeer == other.OwnerPeer
}

// Block is one B+ tree node: either a leaf (holding Keys/Values) or an
// internal node (holding Keys/Children). DividerKey is the exclusive
// upper bound of the keys this block currently owns; NextBlock links
// leaves (and, for internal blocks, forwards remote-parent inserts) to
// the right sibling at the same level.
type Block struct {
	BlockID    BlockID   `json:"block_id"`
	ParentID   BlockID   `json:"parent_id"`
	Keys       []Key     `json:"keys"`
	Children   []BlockID `json:"children,omitempty"`
	Values     []Entry   `json:"values,omitempty"`
	IsLeaf     bool      `json:"is_leaf"`
	DividerKey Key       `json:"divider_key"`
	NextBlock  BlockID   `json:"next_block"`
}

// NewLeaf allocates a fresh, empty leaf block with a random id.
func NewLeaf() *Block {
	return &Block{
		BlockID:    NewBlockID(),
		IsLeaf:     true,
		DividerKey: Key(math.MaxUint64),
	}
}

// AddEntry inserts (k, e) into Keys/Values at the first position whose
// existing key is greater than k, keeping both slices in ascending order.
// Must not be called on an internal block.
func (b *Block) AddEntry(k Key, e Entry) {
	idx := len(b.Keys)
	for i, existing := range b.Keys {
		if existing > k {
			idx = i
			break
		}
	}
	b.Keys = append(b.Keys, 0)
	copy(b.Keys[idx+1:], b.Keys[idx:])
	b.Keys[idx] = k

	b.Values = append(b.Values, Entry{})
	copy(b.Values[idx+1:], b.Values[idx:])
	b.Values[idx] = e
}

// AddChild inserts (k, child) into Keys/Children, maintaining the
// internal invariant that Children has one more element than Keys: the
// first call on a fresh internal block appends the implicit first child
// slot with no preceding key; every later call inserts a key and its
// right-hand child in sorted position.
func (b *Block) AddChild(k Key, child BlockID) {
	if len(b.Children) == 0 {
		b.Children = append(b.Children, child)
		return
	}

	idx := len(b.Keys)
	for i, existing := range b.Keys {
		if existing > k {
			idx = i
			break
		}
	}
	b.Keys = append(b.Keys, 0)
	copy(b.Keys[idx+1:], b.Keys[idx:])
	b.Keys[idx] = k

	b.Children = append(b.Children, 0)
	copy(b.Children[idx+2:], b.Children[idx+1:])
	b.Children[idx+1] = child
}

// SplitResult describes the outcome of any of the four split variants:
// the (unchanged-id) left half, the newly allocated right half, and the
// divider key promoted between them. NewRoot is set only by the two
// root-growing variants, SplitLeafRoot and SplitInternalRoot.
type SplitResult struct {
	Left       BlockID
	Right      BlockID
	DividerKey Key
	NewRoot    BlockID
}

// SplitLeafRoot splits a leaf that is currently the whole tree's root: it
// allocates a new internal root over the existing leaf (now the left
// child) and a fresh right leaf, moving the top half of the keys across.
// The caller is responsible for linking left.NextBlock to the returned
// right id under the same lock that installed the split.
func (left *Block) SplitLeafRoot(blocks map[BlockID]*Block) SplitResult {
	root := &Block{
		BlockID:    NewBlockID(),
		IsLeaf:     false,
		DividerKey: Key(math.MaxUint64),
	}
	left.ParentID = root.BlockID

	right := &Block{
		BlockID:    NewBlockID(),
		ParentID:   root.BlockID,
		IsLeaf:     true,
		DividerKey: Key(math.MaxUint64),
	}

	mid := Size / 2
	right.Keys = append(right.Keys, left.Keys[mid:]...)
	right.Values = append(right.Values, left.Values[mid:]...)
	left.Keys = left.Keys[:mid]
	left.Values = left.Values[:mid]

	dividerKey := right.Keys[0]
	left.DividerKey = dividerKey

	root.Keys = append(root.Keys, dividerKey)
	root.Children = []BlockID{left.BlockID, right.BlockID}

	blocks[root.BlockID] = root
	blocks[right.BlockID] = right
	blocks[left.BlockID] = left

	return SplitResult{Left: left.BlockID, Right: right.BlockID, DividerKey: dividerKey, NewRoot: root.BlockID}
}

// SplitLeafBlock splits a non-root leaf: a new right leaf inherits the
// parent id, and the upper half of the keys moves across.
func (left *Block) SplitLeafBlock(blocks map[BlockID]*Block) SplitResult {
	right := &Block{
		BlockID:    NewBlockID(),
		ParentID:   left.ParentID,
		IsLeaf:     true,
		DividerKey: Key(math.MaxUint64),
	}

	mid := Size / 2
	right.Keys = append(right.Keys, left.Keys[mid:]...)
	right.Values = append(right.Values, left.Values[mid:]...)
	left.Keys = left.Keys[:mid]
	left.Values = left.Values[:mid]

	dividerKey := right.Keys[0]
	left.DividerKey = dividerKey

	blocks[right.BlockID] = right
	blocks[left.BlockID] = left

	return SplitResult{Left: left.BlockID, Right: right.BlockID, DividerKey: dividerKey}
}

// SplitInternalRoot splits an internal node that is currently the whole
// tree's root. It mirrors SplitLeafRoot one level up: a fresh internal
// root is allocated over the overflowing block (now the left child) and
// a new right internal sibling, with the median key promoted into the
// new root. Nothing in the distributed protocol described in spec.md
// exercises this path directly — every scenario there grows the root
// only once, as a leaf — but the tree must stay well-formed if enough
// migrations and remote-parent inserts ever deepen it far enough that
// the top block itself overflows.
func (left *Block) SplitInternalRoot(blocks map[BlockID]*Block) SplitResult {
	root := &Block{
		BlockID:    NewBlockID(),
		IsLeaf:     false,
		DividerKey: Key(math.MaxUint64),
	}
	left.ParentID = root.BlockID

	right := &Block{
		BlockID:    NewBlockID(),
		ParentID:   root.BlockID,
		IsLeaf:     false,
		DividerKey: Key(math.MaxUint64),
	}

	counter := 1 + Size/2
	right.Children = append(right.Children, left.Children[counter])
	for i := counter; i < len(left.Keys); i++ {
		right.AddChild(left.Keys[i], left.Children[i+1])
	}

	dividerKey := left.Keys[counter-1]
	left.Keys = left.Keys[:counter-1]
	left.Children = left.Children[:counter]
	left.DividerKey = dividerKey

	root.Keys = append(root.Keys, dividerKey)
	root.Children = []BlockID{left.BlockID, right.BlockID}

	blocks[root.BlockID] = root
	blocks[right.BlockID] = right
	blocks[left.BlockID] = left

	return SplitResult{Left: left.BlockID, Right: right.BlockID, DividerKey: dividerKey, NewRoot: root.BlockID}
}

// SplitInternalBlock splits an internal node that just overflowed. The
// median key (at index counter-1) is promoted out as the divider key;
// every key after it, and every child from index counter on, moves to a
// new right sibling, including the one extra trailing child that every
// internal node carries.
func (left *Block) SplitInternalBlock(blocks map[BlockID]*Block) SplitResult {
	right := &Block{
		BlockID:    NewBlockID(),
		ParentID:   left.ParentID,
		IsLeaf:     false,
		DividerKey: Key(math.MaxUint64),
	}

	counter := 1 + Size/2

	right.Children = append(right.Children, left.Children[counter])
	for i := counter; i < len(left.Keys); i++ {
		right.AddChild(left.Keys[i], left.Children[i+1])
	}

	dividerKey := left.Keys[counter-1]
	left.Keys = left.Keys[:counter-1]
	left.Children = left.Children[:counter]
	left.DividerKey = dividerKey

	blocks[right.BlockID] = right
	blocks[left.BlockID] = left

	return SplitResult{Left: left.BlockID, Right: right.BlockID, DividerKey: dividerKey}
}
