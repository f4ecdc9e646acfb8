package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/claude/treadmill/internal/models"
)

// Controller is the running kiosk as seen by the admin API.
type Controller interface {
	Settings(ctx context.Context) (models.Settings, error)
	Display(ctx context.Context) (models.DisplayState, error)
	UpdateSettings(s models.Settings)
	Reset()
	Tap(x, y float64)
}

// SessionLog is the session store as seen by the admin API.
type SessionLog interface {
	Append(ctx context.Context, rec models.SessionRecord) (models.SessionRecord, error)
	QueryAll(ctx context.Context) ([]models.SessionRecord, error)
}

// SettingsStore persists settings and returns the normalized copy it wrote.
type SettingsStore interface {
	Save(s models.Settings) (models.Settings, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	kiosk    Controller
	sessions SessionLog
	settings SettingsStore
	log      *slog.Logger
	apiKey   string
	router   chi.Router
}

// New creates a new Server with all routes configured.
func New(kiosk Controller, sessions SessionLog, settings SettingsStore, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		kiosk:    kiosk,
		sessions: sessions,
		settings: settings,
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Mount attaches an extra handler, such as the display feed or MCP endpoint.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Handle(pattern, h)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	// Read endpoints and the on-screen gesture are open on the kiosk network.
	s.router.Get("/api/v1/config", s.handleGetConfig)
	s.router.Get("/api/v1/sessions", s.handleListSessions)
	s.router.Get("/api/v1/leaderboard", s.handleLeaderboard)
	s.router.Get("/api/v1/state", s.handleState)
	s.router.Post("/api/v1/tap", s.handleTap)

	// Operator endpoints (API key required)
	s.router.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Put("/api/v1/config", s.handlePutConfig)
		r.Post("/api/v1/sessions", s.handleAddSession)
		r.Post("/api/v1/reset", s.handleReset)
	})
}
