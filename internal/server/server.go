// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"sentinel/internal/config"
	"sentinel/internal/domain/cluster"
	"sentinel/internal/server/handlers"
	"sentinel/internal/service/analysis"
	"sentinel/internal/service/merge"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	natsConn *nats.Conn,
	orchestrator *analysis.Orchestrator,
	mergeEngine *merge.Engine,
	clusterStore cluster.Store,
	processingStore cluster.ProcessingStore,
	logger *zap.Logger,
) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Create handler dependencies
	analysisHandler := handlers.NewAnalysisHandler(orchestrator, processingStore, cfg, logger)
	clusterHandler := handlers.NewClusterHandler(clusterStore, orchestrator, logger)
	mergeHandler := handlers.NewMergeHandler(mergeEngine, logger)

	// Routes
	router.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		// API version
		r.Route("/v1", func(r chi.Router) {
			// Analysis API
			r.Route("/analysis", func(r chi.Router) {
				r.Post("/run", analysisHandler.RunAnalysis)
				r.Get("/status", analysisHandler.GetStatus)
			})

			// Clusters API
			r.Route("/clusters", func(r chi.Router) {
				r.Get("/", clusterHandler.ListClusters)
				r.Get("/pending", clusterHandler.GetPending)
				r.Get("/results", clusterHandler.GetResults)
				r.Get("/{id}", clusterHandler.GetCluster)
				r.Post("/{id}/review", clusterHandler.Review)
			})

			// Merge API
			r.Route("/merge", func(r chi.Router) {
				r.Post("/run", mergeHandler.RunMerge)
				r.Post("/{id}/approve", mergeHandler.Approve)
				r.Post("/{id}/decline", mergeHandler.Decline)
			})

			// Active configuration
			r.Get("/config", analysisHandler.GetConfig)
		})
	})

	// WebSocket endpoint for the live cluster event feed
	router.Get("/ws/clusters", handlers.ClusterWebSocketHandler(natsConn, cfg.Clustering.EventsTopic, logger))

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
