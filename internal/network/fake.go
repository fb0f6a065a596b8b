package network

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/ssargent/distree/internal/peererr"
	"github.com/ssargent/distree/internal/protocol"
)

// FakeHub is shared state that every FakeNetwork registered against it
// sees: a provider-record table standing in for the DHT, and a
// per-topic subscriber list standing in for gossipsub. It lets
// coordinator tests run several peers in one process with no real
// libp2p swarm.
type FakeHub struct {
	mu        sync.Mutex
	peers     map[peer.ID]*FakeNetwork
	providers map[string]map[peer.ID]bool
	subs      map[string][]fakeSub
}

type fakeSub struct {
	owner peer.ID
	ch    chan GossipMessage
}

// NewFakeHub returns an empty hub ready for peers to register against.
func NewFakeHub() *FakeHub {
	return &FakeHub{
		peers:     make(map[peer.ID]*FakeNetwork),
		providers: make(map[string]map[peer.ID]bool),
		subs:      make(map[string][]fakeSub),
	}
}

// FakeNetwork is an in-process Network double: every call is a direct
// function call or channel send against the shared FakeHub, so no bytes
// ever cross a real wire.
type FakeNetwork struct {
	hub  *FakeHub
	self peer.ID

	mu             sync.RWMutex
	requestHandler RequestHandler
}

// NewFakeNetwork builds a fake peer and registers it with hub under id.
func NewFakeNetwork(hub *FakeHub, id peer.ID) *FakeNetwork {
	n := &FakeNetwork{hub: hub, self: id}
	hub.mu.Lock()
	hub.peers[id] = n
	hub.mu.Unlock()
	return n
}

func (n *FakeNetwork) LocalPeer() peer.ID { return n.self }

func (n *FakeNetwork) StartListening(ctx context.Context, addr ma.Multiaddr) error { return nil }

func (n *FakeNetwork) Dial(ctx context.Context, id peer.ID, addr ma.Multiaddr) error {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if _, ok := n.hub.peers[id]; !ok {
		return peererr.Newf(peererr.TransportFailure, "no such fake peer %s", id)
	}
	return nil
}

func (n *FakeNetwork) StartProviding(ctx context.Context, key string) error {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if n.hub.providers[key] == nil {
		n.hub.providers[key] = make(map[peer.ID]bool)
	}
	n.hub.providers[key][n.self] = true
	return nil
}

// StopProviding withdraws this peer's provider record for key. Not part
// of the Network interface — spec.md never names a stop_providing port
// operation, but migration's two-phase handoff needs some way for the
// source to stop advertising once the destination acknowledges, and
// tests need to assert on it, so it is exposed as a fake-only helper the
// coordinator finds through a type assertion on a narrower interface.
func (n *FakeNetwork) StopProviding(key string) {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	delete(n.hub.providers[key], n.self)
}

func (n *FakeNetwork) GetProviders(ctx context.Context, key string) ([]peer.ID, error) {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	out := make([]peer.ID, 0, len(n.hub.providers[key]))
	for id := range n.hub.providers[key] {
		out = append(out, id)
	}
	return out, nil
}

func (n *FakeNetwork) GetClosestPeers(ctx context.Context, id peer.ID) ([]peer.ID, error) {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	out := make([]peer.ID, 0, len(n.hub.peers))
	for p := range n.hub.peers {
		if p != n.self {
			out = append(out, p)
		}
	}
	return out, nil
}

func (n *FakeNetwork) Request(ctx context.Context, to peer.ID, req protocol.Request) (protocol.Response, error) {
	n.hub.mu.Lock()
	target, ok := n.hub.peers[to]
	n.hub.mu.Unlock()
	if !ok {
		return protocol.Response{}, peererr.Newf(peererr.TransportFailure, "no such fake peer %s", to)
	}

	handler := target.requestHandlerFunc()
	if handler == nil {
		return protocol.Response{}, peererr.Newf(peererr.TransportFailure, "peer %s has no request handler installed", to)
	}
	return handler(ctx, n.self, req), nil
}

func (n *FakeNetwork) SetRequestHandler(handler RequestHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requestHandler = handler
}

func (n *FakeNetwork) requestHandlerFunc() RequestHandler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.requestHandler
}

func (n *FakeNetwork) Subscribe(ctx context.Context, topic string) (<-chan GossipMessage, error) {
	ch := make(chan GossipMessage, 16)

	n.hub.mu.Lock()
	n.hub.subs[topic] = append(n.hub.subs[topic], fakeSub{owner: n.self, ch: ch})
	n.hub.mu.Unlock()

	return ch, nil
}

func (n *FakeNetwork) Publish(ctx context.Context, topic string, payload []byte) error {
	n.hub.mu.Lock()
	subs := append([]fakeSub(nil), n.hub.subs[topic]...)
	n.hub.mu.Unlock()

	for _, s := range subs {
		if s.owner == n.self {
			continue
		}
		select {
		case s.ch <- GossipMessage{From: n.self, Payload: payload}:
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func (n *FakeNetwork) Close() error {
	n.hub.mu.Lock()
	delete(n.hub.peers, n.self)
	n.hub.mu.Unlock()
	return nil
}
