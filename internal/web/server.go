package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roman-kulish/ismscope/internal/metrics"
	"github.com/roman-kulish/ismscope/internal/plot"
	"github.com/roman-kulish/ismscope/internal/selection"
	"github.com/roman-kulish/ismscope/internal/sensor"
	"github.com/roman-kulish/ismscope/internal/session"
	"github.com/roman-kulish/ismscope/internal/storage"
)

const shutdownTimeout = 5 * time.Second

//go:embed static
var staticFiles embed.FS

// Controller is the part of the session controller the view layer drives.
type Controller interface {
	Start() bool
	Stop() bool
	Clear()
	Configure(rate int, interval time.Duration) error
	Select(view plot.View, e selection.Event) error
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// Archive gives read access to recorded sessions.
type Archive interface {
	Sessions(ctx context.Context) ([]*storage.Session, error)
	ReadSamples(ctx context.Context, sessionID int64, opts ...storage.ReadOption) ([]sensor.Sample, error)
}

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(s *Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics exposes the collector at /metrics and instruments the API routes
func WithMetrics(collector *metrics.Collector) func(s *Server) {
	return func(s *Server) {
		s.metrics = collector
	}
}

// WithArchive enables the recorded sessions endpoints
func WithArchive(archive Archive) func(s *Server) {
	return func(s *Server) {
		s.archive = archive
	}
}

// WithRenderer replaces the PNG renderer
func WithRenderer(renderer *plot.Renderer) func(s *Server) {
	return func(s *Server) {
		s.renderer = renderer
	}
}

// Server is the HTTP and WebSocket view layer of a controller.
type Server struct {
	controller Controller
	archive    Archive
	metrics    *metrics.Collector
	renderer   *plot.Renderer
	upgrader   websocket.Upgrader
	mux        *http.ServeMux

	clientsMu sync.Mutex
	clients   map[string]*client

	logger *slog.Logger
}

// NewServer creates the server and registers its routes
func NewServer(controller Controller, options ...func(s *Server)) (*Server, error) {
	if controller == nil {
		return nil, errors.New("controller is required")
	}

	s := Server{
		controller: controller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		mux:     http.NewServeMux(),
		clients: make(map[string]*client),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	if s.renderer == nil {
		renderer, err := plot.NewRenderer(plot.RenderConfig{})
		if err != nil {
			return nil, fmt.Errorf("creating renderer: %w", err)
		}
		s.renderer = renderer
	}

	if err := s.routes(); err != nil {
		return nil, err
	}

	return &s, nil
}

func (s *Server) routes() error {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("loading static files: %w", err)
	}

	s.mux.Handle("GET /", http.FileServerFS(static))

	s.handle("GET /api/state", "state", s.handleState)
	s.handle("POST /api/start", "start", s.handleStart)
	s.handle("POST /api/stop", "stop", s.handleStop)
	s.handle("POST /api/clear", "clear", s.handleClear)
	s.handle("PUT /api/config", "config", s.handleConfig)
	s.handle("POST /api/selection/{view}", "selection", s.handleSelection)
	s.handle("GET /api/plots/{file}", "plot", s.handlePlot)
	s.handle("GET /api/sensor", "sensor", s.handleSensor)
	s.handle("GET /api/sessions", "sessions", s.handleSessions)
	s.handle("GET /api/sessions/{id}/samples", "samples", s.handleSamples)

	s.mux.HandleFunc("GET /ws", s.handleWebSocket)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return nil
}

func (s *Server) handle(pattern, route string, h http.HandlerFunc) {
	if s.metrics == nil {
		s.mux.Handle(pattern, h)
		return
	}
	s.mux.Handle(pattern, s.metrics.Instrument(route, h))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Serve accepts connections on ln until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("http server listening", slog.String("address", "http://"+ln.Addr().String()))

	select {
	case err := <-errCh:
		s.closeClients()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)

	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	s.closeClients()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	s.logger.Info("http server stopped")

	return nil
}

func (s *Server) command(name string) {
	if s.metrics != nil {
		s.metrics.Command(name)
	}
}
