package adminapi

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/ssargent/distree/internal/bptree"
	"github.com/ssargent/distree/internal/coordinator"
	"github.com/ssargent/distree/internal/protocol"
)

// Peer is the subset of *coordinator.Coordinator this package depends on,
// kept narrow so handlers stay testable against a fake.
type Peer interface {
	Stats() coordinator.Stats
	GetLease(ctx context.Context, key bptree.Key) (protocol.Response, error)
	Migrate(ctx context.Context) error
}

// Server holds the admin API's state, mirroring pkg/api/handlers.go's
// Server struct.
type Server struct {
	peer    Peer
	config  Config
	metrics *Metrics
}

// NewServer builds an admin server over peer.
func NewServer(peer Peer, config Config, metrics *Metrics) *Server {
	return &Server{peer: peer, config: config, metrics: metrics}
}

// Router builds the chi router exposing /healthz, /api/v1/*, /metrics, and
// /swagger/*, mirroring pkg/api/server.go's StartServer route table.
func Router(peer Peer, config Config) http.Handler {
	metrics := NewMetrics()
	s := NewServer(peer, config, metrics)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", metrics.instrument("GET", "/healthz", s.handleHealth))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", metrics.instrument("GET", "/api/v1/stats", s.handleStats))
		r.Post("/getlease/{key}", metrics.instrument("POST", "/api/v1/getlease/{key}", s.handleGetLease))
		r.Post("/migrate", metrics.instrument("POST", "/api/v1/migrate", s.handleMigrate))
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://%s/swagger/doc.json", config.Addr)),
	))

	return r
}

// ListenAndServe starts the admin HTTP server and blocks until it exits.
func ListenAndServe(ctx context.Context, peer Peer, config Config) error {
	handler := Router(peer, config)
	srv := &http.Server{Addr: config.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Printf("adminapi: listening on %s", config.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
