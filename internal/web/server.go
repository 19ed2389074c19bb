package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/svvoii/evs-charging-france-dashboard/internal/web/handlers"
	"github.com/svvoii/evs-charging-france-dashboard/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *Config
	logger     *zap.Logger
	series     handlers.SeriesSource
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a new web server instance. series may be nil, which
// leaves the database-backed endpoint unregistered.
func NewServer(config *Config, logger *zap.Logger, series handlers.SeriesSource) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &Server{
		config: config,
		logger: logger,
		series: series,
	}

	// Setup routes
	server.setupRoutes()

	// Create HTTP server
	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// Handler returns the routed handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	tablesHandler := &handlers.TablesHandler{Dir: s.config.Data.Dir}

	s.router.HandleFunc("/healthz", handlers.Health).Methods("GET")

	// API routes
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/pivot/{family}", tablesHandler.GetPivot).Methods("GET")
	api.HandleFunc("/pivot/{family}/{code:[0-9]{2}|2[AB]}", tablesHandler.GetDepartment).Methods("GET")
	api.HandleFunc("/quality/{family}", tablesHandler.GetQuality).Methods("GET")

	if s.series != nil {
		seriesHandler := &handlers.SeriesHandler{Source: s.series}
		api.HandleFunc("/series/{family}/{code:[0-9]{2}|2[AB]}", seriesHandler.GetSeries).Methods("GET")
	}

	// Apply middleware
	s.router.Use(middleware.CORS(s.config.Server.AllowOrigin))
	s.router.Use(middleware.RequestLogging(s.logger))
	api.Use(middleware.Authentication(s.config.Auth.APIKey))
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	// Start server in background
	go func() {
		fmt.Printf("Starting server on http://%s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	fmt.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}
