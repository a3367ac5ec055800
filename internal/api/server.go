package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/finops-claw-gang/genui/internal/agui"
	"github.com/finops-claw-gang/genui/internal/session"
	"github.com/finops-claw-gang/genui/internal/tasks"
)

// TaskService is the task service the API exposes: the panel contract
// plus single-task lookup.
type TaskService interface {
	tasks.Client
	Task(ctx context.Context, taskID string) (tasks.TaskStatus, error)
}

// Options configures a Server.
type Options struct {
	Sessions *session.Manager
	// Tasks serves the task-service endpoints; nil leaves them unrouted.
	Tasks       TaskService
	CORSOrigins []string
	OIDC        OIDCConfig
	Stream      agui.StreamConfig
	Logger      *slog.Logger
}

// Server is the HTTP API server for interactive sessions and the
// generation task service.
type Server struct {
	sessions *session.Manager
	tasks    TaskService
	stream   agui.StreamConfig
	logger   *slog.Logger
	mux      *http.ServeMux
	handler  http.Handler
}

// New creates a Server. With OIDC enabled it discovers the issuer first.
func New(ctx context.Context, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stream := opts.Stream
	if stream.Logger == nil {
		stream.Logger = logger
	}
	s := &Server{
		sessions: opts.Sessions,
		tasks:    opts.Tasks,
		stream:   stream,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.routes()

	var h http.Handler = s.mux
	if opts.OIDC.Enabled {
		provider, err := oidc.NewProvider(ctx, opts.OIDC.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("api: oidc discovery: %w", err)
		}
		h = oidcAuth(provider, opts.OIDC.Audience)(h)
	}
	s.handler = requestID(logging(logger, cors(opts.CORSOrigins, h)))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/render", s.handleRender)

	if s.sessions != nil {
		s.mux.HandleFunc("GET /api/v1/sessions", s.handleListSessions)
		s.mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
		s.mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
		s.mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleDeleteSession)
		s.mux.HandleFunc("POST /api/v1/sessions/{id}/actions", s.handleAction)
		s.mux.HandleFunc("PUT /api/v1/sessions/{id}/document", s.handleUpdateDocument)
		s.mux.HandleFunc("GET /api/v1/sessions/{id}/events", agui.SessionStreamHandler(s.sessions, s.stream))
		s.mux.HandleFunc("GET /api/v1/sessions/{id}/ws", s.handleWebsocket)
	}

	if s.tasks != nil {
		s.mux.HandleFunc("POST /api/v1/subactions", s.handleSubmit)
		s.mux.HandleFunc("GET /api/v1/tasks", s.handleListInFlight)
		s.mux.HandleFunc("GET /api/v1/tasks/{id}", s.handleGetTask)
		s.mux.HandleFunc("GET /api/v1/tasks/{id}/stream", agui.TaskStreamHandler(s.tasks, s.stream))
		s.mux.HandleFunc("GET /api/v1/history", s.handleHistory)
		s.mux.HandleFunc("POST /api/v1/preview", s.handlePreview)
	}
}
