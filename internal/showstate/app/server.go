// Package server hosts the show-state HTTP/WebSocket process. It wires the
// SQLite store, the broadcast router, and the domain service together and
// exposes them over a single JSON frame protocol.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/showsync/internal/platform/timeouts"
	"github.com/louisbranch/showsync/internal/showstate/broadcast"
	"github.com/louisbranch/showsync/internal/showstate/domain"
	"github.com/louisbranch/showsync/internal/showstate/storage/sqlite"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

// Config defines the inputs for the show-state transport boundary.
type Config struct {
	HTTPAddr          string
	DBPath            string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the show-state HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           *sqlite.Store
	router          *broadcast.Router
}

// NewServer builds a configured show-state server: store, router, service,
// and the HTTP surface on top of them.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	dbPath := strings.TrimSpace(config.DBPath)
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open show-state store: %w", err)
	}

	router := broadcast.NewRouter(domain.TopicLightUpdated, domain.TopicPickUpdated)
	service := domain.NewService(newStoreAdapter(store, store), router, nil)

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           NewHandler(service, router),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		store:           store,
		router:          router,
	}, nil
}

// Run creates and serves a show-state server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init showsync server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve showsync: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("showsync server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("showsync server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources. The router is closed first so subscriber
// forwarders drain before the store goes away.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.router != nil {
		s.router.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close show-state store: %v", err)
		}
	}
}
