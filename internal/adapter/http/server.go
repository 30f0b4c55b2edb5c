package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/hazard-map-sync/internal/pipeline"
)

// SourceReader returns the data currently held by a surface source.
type SourceReader interface {
	Source(id string) (*geojson.FeatureCollection, bool)
}

// Server exposes health, readiness and metrics endpoints plus the layer
// control API.
type Server struct {
	httpServer *http.Server
	pipe       *pipeline.Pipeline
	sources    SourceReader
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers every route.
func NewServer(addr string, pipe *pipeline.Pipeline, sources SourceReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// Snapshot requests wait for the hazard backend.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		pipe:    pipe,
		sources: sources,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(pipe))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /hazards", s.handleListHazards)
	mux.HandleFunc("GET /hazards/{hazard}", s.handleHazardStatus)
	mux.HandleFunc("POST /hazards/{hazard}", s.handleShowHazard)
	mux.HandleFunc("DELETE /hazards/{hazard}", s.handleHideHazard)

	mux.HandleFunc("GET /boundaries", s.handleListBoundaries)
	mux.HandleFunc("PUT /boundaries/{dataset}", s.handleShowBoundaries)
	mux.HandleFunc("DELETE /boundaries/{dataset}", s.handleHideBoundaries)

	mux.HandleFunc("GET /layers", s.handleListLayers)
	mux.HandleFunc("GET /layers/{id}/hover", s.handleHover)
	mux.HandleFunc("POST /layers/{id}/events/{event}", s.handleLayerEvent)
	mux.HandleFunc("GET /sources/{id}", s.handleSource)

	mux.HandleFunc("GET /locations", s.handleSearchLocations)
	mux.HandleFunc("GET /locations/nearest", s.handleNearestLocation)
	mux.HandleFunc("GET /locations/{key}", s.handleLocation)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
