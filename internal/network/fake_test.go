package network

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/ssargent/distree/internal/bptree"
	"github.com/ssargent/distree/internal/protocol"
)

func testPeerID(t *testing.T, seed byte) peer.ID {
	t.Helper()
	id, err := peer.IDFromBytes([]byte{0x00, 0x01, seed})
	if err != nil {
		t.Fatalf("building test peer id: %v", err)
	}
	return id
}

func TestFakeNetworkRequestDispatchesToTargetHandler(t *testing.T) {
	hub := NewFakeHub()
	a := NewFakeNetwork(hub, testPeerID(t, 1))
	b := NewFakeNetwork(hub, testPeerID(t, 2))

	var gotFrom peer.ID
	b.SetRequestHandler(func(ctx context.Context, from peer.ID, req protocol.Request) protocol.Response {
		gotFrom = from
		return protocol.NewLeaseResponse(true)
	})

	entry := bptree.NewEntry(a.LocalPeer(), 1)
	resp, err := a.Request(context.Background(), b.LocalPeer(), protocol.NewLeaseRequest(1, entry, 0))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Kind != protocol.LeaseResponseKind || !resp.Lease.OK {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotFrom != a.LocalPeer() {
		t.Fatalf("handler saw from=%v, want %v", gotFrom, a.LocalPeer())
	}
}

func TestFakeNetworkRequestToUnknownPeerFails(t *testing.T) {
	hub := NewFakeHub()
	a := NewFakeNetwork(hub, testPeerID(t, 1))

	_, err := a.Request(context.Background(), testPeerID(t, 99), protocol.NewMigrateRequest(bptree.Block{}))
	if err == nil {
		t.Fatal("expected an error requesting an unregistered peer")
	}
}

func TestFakeNetworkProviderAdvertisementAndLookup(t *testing.T) {
	hub := NewFakeHub()
	a := NewFakeNetwork(hub, testPeerID(t, 1))
	b := NewFakeNetwork(hub, testPeerID(t, 2))
	ctx := context.Background()

	if err := b.StartProviding(ctx, "42"); err != nil {
		t.Fatalf("StartProviding: %v", err)
	}

	providers, err := a.GetProviders(ctx, "42")
	if err != nil {
		t.Fatalf("GetProviders: %v", err)
	}
	if len(providers) != 1 || providers[0] != b.LocalPeer() {
		t.Fatalf("providers = %v, want [%v]", providers, b.LocalPeer())
	}

	b.StopProviding("42")
	providers, err = a.GetProviders(ctx, "42")
	if err != nil {
		t.Fatalf("GetProviders after stop: %v", err)
	}
	if len(providers) != 0 {
		t.Fatalf("providers after stop = %v, want none", providers)
	}
}

func TestFakeNetworkPublishSkipsPublisherAndReachesOtherSubscribers(t *testing.T) {
	hub := NewFakeHub()
	a := NewFakeNetwork(hub, testPeerID(t, 1))
	b := NewFakeNetwork(hub, testPeerID(t, 2))
	ctx := context.Background()

	aCh, err := a.Subscribe(ctx, "size")
	if err != nil {
		t.Fatalf("a.Subscribe: %v", err)
	}
	bCh, err := b.Subscribe(ctx, "size")
	if err != nil {
		t.Fatalf("b.Subscribe: %v", err)
	}

	if err := a.Publish(ctx, "size", []byte("3")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-bCh:
		if msg.From != a.LocalPeer() || string(msg.Payload) != "3" {
			t.Fatalf("unexpected message at b: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("b never received the gossip message")
	}

	select {
	case msg := <-aCh:
		t.Fatalf("publisher should not receive its own message, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
