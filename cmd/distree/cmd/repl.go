package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	corepeer "github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/ssargent/distree/internal/bptree"
	"github.com/ssargent/distree/internal/coordinator"
	"github.com/ssargent/distree/internal/network"
	"github.com/ssargent/distree/pkg/config"
)

// runREPL drives the stdin command loop described by spec.md §6.5: three
// commands, "root", "getlease <key>", "migrate", unknown input reported
// and otherwise ignored. Grounded on original_source/src/main.rs's
// tokio::select! loop over stdin lines, collapsed into a plain blocking
// read loop since internal/network's request handling already runs on
// its own goroutine per inbound stream.
func runREPL(ctx context.Context, coord *coordinator.Coordinator) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("distree> ready (commands: root, getlease <key>, migrate)")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "root":
			if err := coord.Root(ctx); err != nil {
				fmt.Printf("root: %v\n", err)
			} else {
				fmt.Println("root: this peer now holds the tree root")
			}

		case "getlease":
			if len(fields) < 2 {
				fmt.Println("getlease: usage: getlease <key>")
				continue
			}
			key, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				fmt.Println("getlease: key must be an unsigned integer")
				continue
			}
			resp, err := coord.GetLease(ctx, bptree.Key(key))
			if err != nil {
				fmt.Printf("getlease: %v\n", err)
				continue
			}
			if resp.Lease != nil && resp.Lease.OK {
				fmt.Printf("getlease: key %d leased\n", key)
			} else {
				fmt.Printf("getlease: key %d failed\n", key)
			}

		case "migrate":
			if err := coord.Migrate(ctx); err != nil {
				fmt.Printf("migrate: %v\n", err)
			} else {
				fmt.Println("migrate: local root block migrated")
			}

		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

// gossipInterval converts the config's seconds field into a Duration,
// falling back to the default when unset or non-positive.
func gossipInterval(cfg *config.Config) time.Duration {
	if cfg.GossipIntervalSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.GossipIntervalSeconds) * time.Second
}

// dialBootstrapPeer parses a "/ip4/.../p2p/<id>"-style multiaddr, splits
// off the /p2p suffix to recover the peer id (mirroring
// original_source/src/main.rs's Protocol::P2p match on the last
// multiaddr component), and dials it.
func dialBootstrapPeer(ctx context.Context, net *network.LibP2PNetwork, raw string) error {
	addr, err := ma.NewMultiaddr(raw)
	if err != nil {
		return fmt.Errorf("parsing bootstrap multiaddr: %w", err)
	}

	info, err := corepeer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("expected bootstrap multiaddr to contain a /p2p peer id: %w", err)
	}
	if len(info.Addrs) == 0 {
		return fmt.Errorf("bootstrap multiaddr %s has no dialable address component", raw)
	}

	return net.Dial(ctx, info.ID, info.Addrs[0])
}
