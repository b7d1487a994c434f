package bill

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
)

// DefaultMaxUploadBytes is the largest multipart body accepted when queueing images
const DefaultMaxUploadBytes = int64(50 << 20)

// formMemoryBytes is how much of an upload is held in memory; the rest spills to temp files
const formMemoryBytes = int64(8 << 20)

// Server handles HTTP requests for the bill review UI
type Server struct {
	service        *Service
	mux            *http.ServeMux
	maxUploadBytes int64
	formMemory     int64

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, maxUploadBytes int64) *Server {
	return NewServerWithMux(service, maxUploadBytes, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, maxUploadBytes int64, mux *http.ServeMux) *Server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{
		service:        service,
		mux:            mux,
		maxUploadBytes: maxUploadBytes,
		formMemory:     min(formMemoryBytes, maxUploadBytes),
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// registerRoutes registers all API routes on the server's mux
// Routes must be registered from most specific to least specific to avoid conflicts
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.handleStaticCSS)
	s.mux.HandleFunc("GET /static/app.js", s.handleStaticJS)

	s.mux.HandleFunc("GET /api/state", s.handleState)

	// Acquisition
	s.mux.HandleFunc("POST /api/queue", s.handleQueueImages)
	s.mux.HandleFunc("DELETE /api/queue", s.handleClearQueue)
	s.mux.HandleFunc("POST /api/camera/start", s.handleCameraStart)
	s.mux.HandleFunc("POST /api/camera/capture", s.handleCameraCapture)
	s.mux.HandleFunc("POST /api/camera/frame", s.handleCameraFrame)
	s.mux.HandleFunc("POST /api/camera/stop", s.handleCameraStop)

	s.mux.HandleFunc("POST /api/process", s.handleProcess)

	// Cell editing
	s.mux.HandleFunc("POST /api/edit/commit", s.handleEditCommit)
	s.mux.HandleFunc("POST /api/edit/cancel", s.handleEditCancel)
	s.mux.HandleFunc("POST /api/edit/blur", s.handleEditBlur)
	s.mux.HandleFunc("POST /api/edit/key", s.handleEditKey)
	s.mux.HandleFunc("POST /api/edit", s.handleEditBegin)
	s.mux.HandleFunc("PUT /api/edit", s.handleEditUpdate)

	// Rows
	s.mux.HandleFunc("DELETE /api/rows/{index}", s.handleDeleteRow)
	s.mux.HandleFunc("POST /api/rows", s.handleAddRow)

	// Export
	s.mux.HandleFunc("GET /api/export/xlsx", s.handleExportWorkbook)
	s.mux.HandleFunc("GET /api/export", s.handleExportDocument)

	// Static HTML interface (register last as it's the catch-all)
	s.mux.HandleFunc("GET /index.html", s.handleIndex)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

// Start starts the HTTP server and blocks until it is shut down
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.corsMiddleware(s.mux),
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}
