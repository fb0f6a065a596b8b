// Package adminapi is the peer's observability and control HTTP surface
// (health, stats, metrics, and a thin getlease/migrate bridge for
// scripting), grounded on pkg/api/server.go and pkg/api/metrics.go and
// repurposed from KV-store endpoints onto the per-peer Coordinator.
package adminapi

import "github.com/ssargent/distree/internal/protocol"

// APIResponse is the standard envelope for every admin endpoint, matching
// pkg/api/types.go's APIResponse shape.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StatsSnapshot is the JSON-friendly projection of coordinator.Stats; kept
// as its own type so this package doesn't need to import libp2p's peer
// package just to shape a response body.
type StatsSnapshot struct {
	TopID       string `json:"top_id"`
	LocalBlocks int    `json:"local_blocks"`
	Migrating   int    `json:"migrating"`
	Queued      int    `json:"queued"`
	MigratePeer string `json:"migrate_peer"`
	MigrateSize int    `json:"migrate_size"`
}

// LeaseResult is the JSON body returned by POST /api/v1/getlease.
type LeaseResult struct {
	OK bool `json:"ok"`
}

func leaseResultFrom(resp protocol.Response) LeaseResult {
	if resp.Lease == nil {
		return LeaseResult{OK: false}
	}
	return LeaseResult{OK: resp.Lease.OK}
}

// Config holds the admin server's own settings.
type Config struct {
	Addr string
}
