package adminapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ssargent/distree/internal/bptree"
)

// handleHealth reports liveness; it never depends on tree state, since an
// empty shard (no root yet) is a valid peer state, not a failure.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleStats exposes the coordinator's bookkeeping snapshot and feeds the
// same numbers into the Prometheus gauges.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.peer.Stats()
	snapshot := StatsSnapshot{
		TopID:       stats.TopID.String(),
		LocalBlocks: stats.LocalBlocks,
		Migrating:   stats.Migrating,
		Queued:      stats.Queued,
		MigratePeer: stats.MigratePeer.String(),
		MigrateSize: stats.MigrateSize,
	}
	s.metrics.UpdateFromStats(snapshot)
	sendSuccess(w, snapshot)
}

// handleGetLease bridges the "getlease" CLI command onto HTTP, mainly for
// scripting and load-testing against a running peer.
func (s *Server) handleGetLease(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "key")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		sendError(w, "key must be an unsigned integer", http.StatusBadRequest)
		return
	}

	resp, err := s.peer.GetLease(r.Context(), bptree.Key(n))
	result := leaseResultFrom(resp)
	s.metrics.RecordLease(result.OK)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadGateway)
		return
	}
	sendSuccess(w, result)
}

// handleMigrate bridges the "migrate" CLI command onto HTTP.
func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	err := s.peer.Migrate(r.Context())
	s.metrics.RecordMigrate(err == nil)
	if err != nil {
		sendError(w, err.Error(), http.StatusConflict)
		return
	}
	sendSuccess(w, map[string]string{"status": "migrated"})
}

// sendSuccess writes a 200 APIResponse envelope around data.
func sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

// sendError writes a statusCode APIResponse envelope around message.
func sendError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
}
