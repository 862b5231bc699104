package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/brainsh/brain/internal/auth"
	"github.com/brainsh/brain/internal/config"
	"github.com/brainsh/brain/internal/events"
	"github.com/brainsh/brain/internal/runner"
	"github.com/brainsh/brain/internal/service"
)

// Server hosts the /api/v1 surface, the OAuth endpoints, and /mcp.
type Server struct {
	cfg    *config.Config
	svc    *service.Service
	fleet  *runner.Fleet
	store  *auth.Store
	oauth  *auth.Server
	pub    events.Publisher
	logger *slog.Logger

	httpSrv *http.Server
}

// Options collects the server's collaborators. Store may be nil, which
// disables the OAuth routes and bearer enforcement.
type Options struct {
	Config    *config.Config
	Service   *service.Service
	Fleet     *runner.Fleet
	Store     *auth.Store
	Publisher events.Publisher
	Logger    *slog.Logger
}

// New creates the API server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    opts.Config,
		svc:    opts.Service,
		fleet:  opts.Fleet,
		store:  opts.Store,
		pub:    opts.Publisher,
		logger: logger,
	}
	if s.store != nil {
		s.oauth = auth.NewServer(s.store, logger)
	}
	return s
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/tasks", s.handleProjects)
	mux.HandleFunc("GET /api/v1/tasks/{project}", s.handleTasks)
	mux.HandleFunc("GET /api/v1/tasks/{project}/{selection}", s.handleTaskSelection)
	mux.HandleFunc("GET /api/v1/entries/{ref}/sections", s.handleSections)
	mux.HandleFunc("GET /api/v1/entries/{ref}/sections/{title}", s.handleSection)
	mux.Handle("GET /api/v1/events/ws", NewWSHandler(s.pub, s.logger))

	if s.oauth != nil {
		s.oauth.RegisterRoutes(mux)
	}

	// Only POST is served; the mux answers GET and DELETE with 405.
	// The tool surface is read-only, so mcp:read suffices (the parent
	// mcp scope grants it).
	mcpHandler := s.mcpHandler()
	if s.cfg.EnableAuth && s.store != nil {
		mcpHandler = auth.Bearer(s.store, true)(auth.RequireScope("mcp:read")(mcpHandler))
	}
	mux.Handle("POST /mcp", mcpHandler)

	return corsMiddleware(mux)
}

// corsMiddleware allows cross-origin requests from local tooling.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins serving on the configured address and blocks until the
// listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api server listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	JSONResponse(w, map[string]string{"status": "ok"})
}
