// Package monitor serves the state of a log transfer session over HTTP, with a
// websocket stream of progress events.
package monitor

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/SpatiumPortae/logportal/internal/cache"
	"github.com/SpatiumPortae/logportal/internal/logfetch"
	"github.com/SpatiumPortae/logportal/internal/logger"
	"github.com/SpatiumPortae/logportal/internal/semver"
	"github.com/SpatiumPortae/logportal/templates"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	logsCacheDuration = 2 * time.Second
	statusPage        = "monitor/status.html"
)

// StatusSource provides the current state of a session.
type StatusSource interface {
	Snapshot() logfetch.Snapshot
}

// Server contains the necessary data to run the monitor server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *Hub
	source     StatusSource
	logDir     string
	cache      *cache.Memory
	templates  templates.Templates
	logger     *zap.Logger
	version    semver.Version
}

// NewServer constructs a new Server listening on addr and sets up the routes.
// logDir is the directory committed logs are listed from.
func NewServer(addr string, version semver.Version, source StatusSource, hub *Hub, logDir string, lgr *zap.Logger) *Server {
	router := &mux.Router{}
	stdLoggerWrapper, _ := zap.NewStdLogAt(lgr, zap.ErrorLevel)
	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			ReadTimeout: 30 * time.Second,
			Handler:     handlers.RecoveryHandler(handlers.RecoveryLogger(stdLoggerWrapper))(router),
			ErrorLog:    stdLoggerWrapper,
		},
		router:  router,
		hub:     hub,
		source:  source,
		logDir:  logDir,
		cache:   cache.NewMemory(),
		logger:  lgr,
		version: version,
	}
	tmpls, err := templates.New()
	if err != nil {
		lgr.Error("parsing templates", zap.Error(err))
	}
	s.templates = tmpls
	s.routes()
	return s
}

// Handler returns the router of the server, recovering from handler panics.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve runs the server on the listener until the context is done, then shuts it
// down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errC := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(l); err != nil && err != http.ErrServerClosed {
			errC <- err
		}
		close(errC)
	}()

	s.logger.
		With(zap.String("version", s.version.String())).
		With(zap.String("address", l.Addr().String())).
		Info("serving monitor")

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	// Websocket clients are closed by ending their subscriptions.
	s.hub.Close()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctxShutdown); err != nil {
		return err
	}
	s.logger.Info("monitor shutdown successfully")
	return nil
}

// Start listens on the configured address and serves until the context is done.
func (s *Server) Start(ctx context.Context) error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

func (s *Server) routes() {
	s.router.Use(logger.Middleware(s.logger))
	s.router.HandleFunc("/", s.handleStatusPage()).Methods(http.MethodGet)
	s.router.HandleFunc("/ping", s.handlePing()).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersion()).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)
	s.router.Handle("/logs", cache.Middleware(s.cache, logsCacheDuration, s.handleLogs())).Methods(http.MethodGet)
	s.router.HandleFunc("/logs/{name}", s.handleLogDownload()).Methods(http.MethodGet)
	s.router.HandleFunc("/events", s.handleEvents())
}
