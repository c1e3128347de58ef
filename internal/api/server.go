package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/labstack/gommon/log"

	"vidfetch/internal/downloader"
	"vidfetch/internal/storage"
	"vidfetch/pkg/models"
)

var (
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrServerNotRunning     = errors.New("server is not running")
)

// Server represents the HTTP server
type Server struct {
	config     *models.Config
	downloader *downloader.Downloader
	store      *storage.Manager
	logger     *log.Logger
	limiter    *clientLimiters
	router     *chi.Mux
	server     *http.Server
	listener   net.Listener
	running    bool
	mu         sync.RWMutex
}

// NewServer creates a new HTTP server
func NewServer(config *models.Config, dl *downloader.Downloader, store *storage.Manager, logger *log.Logger) *Server {
	s := &Server{
		config:     config,
		downloader: dl,
		store:      store,
		logger:     logger,
		router:     chi.NewRouter(),
	}

	if config.RateLimit > 0 {
		s.limiter = newClientLimiters(config.RateLimit, config.RateBurst)
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  s.logger,
		NoColor: true,
	}))
	s.router.Use(s.recoverer)
	s.router.Use(middleware.RequestSize(s.config.MaxContentLength))

	s.router.NotFound(s.handleNotFound)
	s.router.MethodNotAllowed(s.handleMethodNotAllowed)

	s.router.Get("/", s.handleIndex)
	s.router.Get("/ping", s.handlePing)
	s.router.Get("/images/*", s.handleImages)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/search-resolutions", s.handleSearchResolutions)
		r.Post("/download", s.handleDownload)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrServerAlreadyRunning
	}

	addr := s.GetAddr()

	// Create listener
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listener = listener
	httpServer := &http.Server{
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// downloads stream for as long as the file takes
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	s.server = httpServer

	// Start downloader
	if err := s.downloader.Start(); err != nil {
		listener.Close()
		return fmt.Errorf("failed to start downloader: %w", err)
	}

	s.running = true

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("Server error: %v", err)
		}
	}()

	s.logger.Infof("Listening on %s", listener.Addr())

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServerNotRunning
	}

	// Stop downloader first so in-flight downloads return
	if err := s.downloader.Stop(); err != nil {
		s.logger.Warnf("Downloader stop error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.running = false
	s.server = nil
	s.listener = nil

	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetAddr returns the configured listen address
func (s *Server) GetAddr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// GetActualAddr returns the actual listening address (useful when port is 0)
func (s *Server) GetActualAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.GetAddr()
}

// Handler exposes the router, mainly for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}
