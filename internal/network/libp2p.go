package network

import (
	"bufio"
	"bytes"
	"context"
	cryptorand "crypto/rand"
	"log"
	"sync"

	"github.com/ipfs/go-cid"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	corehost "github.com/libp2p/go-libp2p/core/host"
	corenet "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-multihash"
	"github.com/ssargent/distree/internal/peererr"
	"github.com/ssargent/distree/internal/protocol"
)

// ProtocolID names the request/response stream protocol every peer
// speaks, equivalent to original_source/src/network.rs's GenericProtocol
// ("/lease-exchange/1").
const ProtocolID = "/distree/lease-exchange/1.0.0"

const mdnsServiceTag = "distree-mdns"

// maxProviders bounds how many DHT provider records a single
// GetProviders call collects before returning.
const maxProviders = 20

// LibP2PNetwork implements Network over a real go-libp2p host: Kademlia
// DHT for provider/closest-peer lookups, mDNS for local peer discovery,
// gossipsub for the size-broadcast topic, and a length-prefixed JSON
// request/response protocol for Lease/Migrate/InsertOnRemoteParent.
type LibP2PNetwork struct {
	host        corehost.Host
	dht         *dht.IpfsDHT
	pubsub      *pubsub.PubSub
	mdnsService mdns.Service

	mu             sync.RWMutex
	requestHandler RequestHandler
	topics         map[string]*pubsub.Topic
}

// Options configures a new LibP2PNetwork.
type Options struct {
	// SecretKeySeed, if non-nil, derives a deterministic peer identity
	// from a single byte, the way original_source/src/network.rs's
	// --secret-key-seed flag does — useful for reproducible test peers.
	// A nil seed generates a fresh random identity.
	SecretKeySeed *byte
}

// New constructs a libp2p host, DHT, pubsub router, and mDNS discovery
// service, and wires the request/response stream handler.
func New(ctx context.Context, opts Options) (*LibP2PNetwork, error) {
	priv, err := identityFromSeed(opts.SecretKeySeed)
	if err != nil {
		return nil, peererr.Wrap(peererr.StateViolation, err, "deriving peer identity")
	}

	h, err := libp2p.New(libp2p.Identity(priv))
	if err != nil {
		return nil, peererr.Wrap(peererr.TransportFailure, err, "constructing libp2p host")
	}

	kaddht, err := dht.New(ctx, h, dht.Mode(dht.ModeServer))
	if err != nil {
		return nil, peererr.Wrap(peererr.TransportFailure, err, "constructing kademlia dht")
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, peererr.Wrap(peererr.TransportFailure, err, "constructing gossipsub router")
	}

	n := &LibP2PNetwork{
		host:   h,
		dht:    kaddht,
		pubsub: ps,
		topics: make(map[string]*pubsub.Topic),
	}

	h.SetStreamHandler(ProtocolID, n.handleStream)

	svc := mdns.NewMdnsService(h, mdnsServiceTag, &mdnsNotifee{host: h, ctx: ctx})
	if err := svc.Start(); err != nil {
		return nil, peererr.Wrap(peererr.TransportFailure, err, "starting mdns discovery")
	}
	n.mdnsService = svc

	return n, nil
}

// identityFromSeed derives an ed25519 keypair deterministically from a
// single seed byte, or generates a random one if seed is nil. Mirrors
// original_source/src/network.rs's secret_key_seed handling.
func identityFromSeed(seed *byte) (crypto.PrivKey, error) {
	if seed == nil {
		priv, _, err := crypto.GenerateEd25519Key(cryptorand.Reader)
		return priv, err
	}
	var src [32]byte
	src[0] = *seed
	priv, _, err := crypto.GenerateEd25519Key(bytes.NewReader(src[:]))
	return priv, err
}

func (n *LibP2PNetwork) LocalPeer() peer.ID {
	return n.host.ID()
}

func (n *LibP2PNetwork) StartListening(ctx context.Context, addr ma.Multiaddr) error {
	if err := n.host.Network().Listen(addr); err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "listening on address")
	}
	return nil
}

func (n *LibP2PNetwork) Dial(ctx context.Context, id peer.ID, addr ma.Multiaddr) error {
	n.host.Peerstore().AddAddr(id, addr, peerstore.PermanentAddrTTL)
	if err := n.host.Connect(ctx, peer.AddrInfo{ID: id, Addrs: []ma.Multiaddr{addr}}); err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "dialing peer")
	}
	return nil
}

func (n *LibP2PNetwork) StartProviding(ctx context.Context, key string) error {
	c, err := keyToCID(key)
	if err != nil {
		return peererr.Wrap(peererr.Malformed, err, "hashing provider key")
	}
	if err := n.dht.Provide(ctx, c, true); err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "advertising provider record")
	}
	return nil
}

func (n *LibP2PNetwork) GetProviders(ctx context.Context, key string) ([]peer.ID, error) {
	c, err := keyToCID(key)
	if err != nil {
		return nil, peererr.Wrap(peererr.Malformed, err, "hashing provider key")
	}

	providers := make([]peer.ID, 0, maxProviders)
	for info := range n.dht.FindProvidersAsync(ctx, c, maxProviders) {
		providers = append(providers, info.ID)
	}
	return providers, nil
}

func (n *LibP2PNetwork) GetClosestPeers(ctx context.Context, id peer.ID) ([]peer.ID, error) {
	peers, err := n.dht.GetClosestPeers(ctx, string(id))
	if err != nil {
		return nil, peererr.Wrap(peererr.RoutingMiss, err, "querying closest peers")
	}
	return peers, nil
}

func (n *LibP2PNetwork) Request(ctx context.Context, to peer.ID, req protocol.Request) (protocol.Response, error) {
	stream, err := n.host.NewStream(ctx, to, ProtocolID)
	if err != nil {
		return protocol.Response{}, peererr.Wrap(peererr.TransportFailure, err, "opening stream")
	}
	defer stream.Close()

	if err := protocol.WriteFrame(stream, req); err != nil {
		return protocol.Response{}, err
	}

	var resp protocol.Response
	if err := protocol.ReadFrame(bufio.NewReader(stream), &resp); err != nil {
		return protocol.Response{}, err
	}
	return resp, nil
}

func (n *LibP2PNetwork) SetRequestHandler(handler RequestHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requestHandler = handler
}

func (n *LibP2PNetwork) requestHandlerFunc() RequestHandler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.requestHandler
}

// handleStream is the libp2p stream handler for ProtocolID: read one
// request, dispatch it, write the response, close. There is no
// request/response multiplexing to manage — unlike
// original_source/src/network.rs's actor with a pending-request map,
// each inbound libp2p stream already carries exactly one request/
// response pair, so the handler can stay a single synchronous function.
func (n *LibP2PNetwork) handleStream(s corenet.Stream) {
	defer s.Close()

	var req protocol.Request
	if err := protocol.ReadFrame(bufio.NewReader(s), &req); err != nil {
		log.Printf("network: malformed request from %s: %v", s.Conn().RemotePeer(), err)
		return
	}

	handler := n.requestHandlerFunc()
	if handler == nil {
		log.Printf("network: no request handler installed, dropping request from %s", s.Conn().RemotePeer())
		return
	}

	resp := handler(context.Background(), s.Conn().RemotePeer(), req)
	if err := protocol.WriteFrame(s, resp); err != nil {
		log.Printf("network: writing response to %s: %v", s.Conn().RemotePeer(), err)
	}
}

func (n *LibP2PNetwork) Subscribe(ctx context.Context, topicName string) (<-chan GossipMessage, error) {
	topic, err := n.pubsub.Join(topicName)
	if err != nil {
		return nil, peererr.Wrap(peererr.TransportFailure, err, "joining gossip topic")
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return nil, peererr.Wrap(peererr.TransportFailure, err, "subscribing to gossip topic")
	}

	n.mu.Lock()
	n.topics[topicName] = topic
	n.mu.Unlock()

	out := make(chan GossipMessage)
	localID := n.host.ID()

	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(ctx)
			if err != nil {
				return
			}
			if msg.ReceivedFrom == localID {
				continue
			}
			select {
			case out <- GossipMessage{From: msg.ReceivedFrom, Payload: msg.Data}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (n *LibP2PNetwork) Publish(ctx context.Context, topicName string, payload []byte) error {
	n.mu.RLock()
	topic, ok := n.topics[topicName]
	n.mu.RUnlock()
	if !ok {
		return peererr.Newf(peererr.StateViolation, "publish on unsubscribed topic %q", topicName)
	}
	if err := topic.Publish(ctx, payload); err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "publishing gossip message")
	}
	return nil
}

func (n *LibP2PNetwork) Close() error {
	if n.mdnsService != nil {
		_ = n.mdnsService.Close()
	}
	if err := n.dht.Close(); err != nil {
		return peererr.Wrap(peererr.TransportFailure, err, "closing dht")
	}
	return n.host.Close()
}

// keyToCID turns a DHT string key ("root", or a BlockID's decimal
// string) into the content id the Kademlia implementation addresses
// provider records by.
func keyToCID(key string) (cid.Cid, error) {
	mh, err := multihash.Sum([]byte(key), multihash.SHA2_256, -1)
	if err != nil {
		return cid.Cid{}, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// mdnsNotifee dials every peer mDNS discovers on the local network,
// seeding both the host's peerstore and the Kademlia routing table.
type mdnsNotifee struct {
	host corehost.Host
	ctx  context.Context
}

func (m *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == m.host.ID() {
		return
	}
	m.host.Peerstore().AddAddrs(pi.ID, pi.Addrs, peerstore.PermanentAddrTTL)
	if err := m.host.Connect(m.ctx, pi); err != nil {
		log.Printf("network: mdns dial to %s failed: %v", pi.ID, err)
	}
}
