// Package network defines the Network port the coordinator depends on
// (§6.1): listening, dialing, DHT provider advertisement/lookup,
// request/response, and gossip pub/sub. internal/network/libp2p.go backs
// it with a real go-libp2p swarm; internal/network/fake.go backs it with
// an in-process double for coordinator tests.
package network

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/ssargent/distree/internal/protocol"
)

// RequestHandler processes one inbound request from peer `from` and
// returns the response to send back on the same stream. This collapses
// the reference design's explicit respond(response, channel) command
// into a single synchronous return, the same way an http.Handler's
// ResponseWriter is implicit in Go idiom rather than threaded through as
// a value — the underlying contract (one response per request, sent
// after arbitrary suspension) is unchanged.
type RequestHandler func(ctx context.Context, from peer.ID, req protocol.Request) protocol.Response

// GossipMessage is one inbound pubsub message: who published it and its
// raw payload. The gossip topic used by this system carries a single
// JSON integer (the publisher's local block count), but the port itself
// stays payload-agnostic.
type GossipMessage struct {
	From    peer.ID
	Payload []byte
}

// Network is the port the coordinator and gossip tracker depend on.
// Every method may block on real network I/O; callers must release any
// locks they hold before calling one, per the concurrency model (locks
// are never held across a suspension point).
type Network interface {
	// LocalPeer returns this node's own peer id.
	LocalPeer() peer.ID

	// StartListening begins accepting inbound connections on addr.
	StartListening(ctx context.Context, addr ma.Multiaddr) error

	// Dial establishes an outgoing connection to peer id at addr.
	Dial(ctx context.Context, id peer.ID, addr ma.Multiaddr) error

	// StartProviding advertises the local node as a provider for key in
	// the DHT. Idempotent.
	StartProviding(ctx context.Context, key string) error

	// GetProviders queries the DHT for current providers of key. May
	// return an empty, non-nil slice.
	GetProviders(ctx context.Context, key string) ([]peer.ID, error)

	// GetClosestPeers runs a DHT proximity query for id.
	GetClosestPeers(ctx context.Context, id peer.ID) ([]peer.ID, error)

	// Request sends req to peer `to` and waits for its response.
	Request(ctx context.Context, to peer.ID, req protocol.Request) (protocol.Response, error)

	// SetRequestHandler installs the callback invoked for every inbound
	// request. Must be called before StartListening to avoid a race
	// against the first inbound stream.
	SetRequestHandler(handler RequestHandler)

	// Subscribe joins a gossip topic, returning a channel of inbound
	// messages. LibP2PNetwork closes the channel when ctx is done;
	// FakeNetwork never closes it.
	Subscribe(ctx context.Context, topic string) (<-chan GossipMessage, error)

	// Publish broadcasts payload on topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Close tears down the swarm and any background goroutines.
	Close() error
}
