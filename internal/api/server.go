// Package api provides the local HTTP control surface the reader UI drives.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/listenupapp/listenup-reader/internal/domain"
	"github.com/listenupapp/listenup-reader/internal/reader"
	"github.com/listenupapp/listenup-reader/internal/speech"
	"github.com/listenupapp/listenup-reader/internal/sse"
	"github.com/listenupapp/listenup-reader/internal/validation"
)

// Reader is the coordinator surface used by the handlers.
type Reader interface {
	Settings(ctx context.Context) (*domain.Settings, error)
	UpdateSettings(ctx context.Context, next *domain.Settings) (*domain.Settings, error)
	ResetSettings(ctx context.Context) error
	ListChapters(ctx context.Context) ([]domain.ChapterSummary, error)
	Open(chapterID string) (*reader.View, error)
	Active() *reader.View
	Play(ctx context.Context) error
}

// Player is the playback surface used by the handlers.
type Player interface {
	Pause() error
	Resume() error
	Toggle() error
	Stop() error
	SkipNext(ctx context.Context) error
	SkipPrevious(ctx context.Context) error
	Seek(positionMs int64) error
	SetRate(rate float64) error
	ClearQueue()
	Snapshot() speech.Session
}

// Emitter publishes events to connected UI clients.
type Emitter interface {
	Emit(evt sse.Event)
	ClientCount() int
}

// Deps holds the server's collaborators.
type Deps struct {
	Reader         Reader
	Player         Player
	Events         Emitter
	EventStream    http.Handler
	Validator      *validation.Validator
	SpeechEngine   string
	AllowedOrigins []string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	reader      Reader
	player      Player
	events      Emitter
	eventStream http.Handler
	validator   *validation.Validator
	engine      string
	origins     []string
	router      *chi.Mux
	logger      *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		reader:      deps.Reader,
		player:      deps.Player,
		events:      deps.Events,
		eventStream: deps.EventStream,
		validator:   deps.Validator,
		engine:      deps.SpeechEngine,
		origins:     deps.AllowedOrigins,
		router:      chi.NewRouter(),
		logger:      logger,
	}
	if s.validator == nil {
		s.validator = validation.New()
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealthCheck)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Put("/", s.handleUpdateSettings)
			r.Post("/reset", s.handleResetSettings)
		})

		r.Get("/chapters", s.handleListChapters)

		r.Route("/reader", func(r chi.Router) {
			r.Get("/", s.handleGetReader)
			r.Post("/open", s.handleOpenChapter)
			r.Post("/layout", s.handleLayoutComplete)
			r.Post("/scroll", s.handleScroll)
			r.Post("/close", s.handleCloseReader)
		})

		r.Route("/playback", func(r chi.Router) {
			r.Get("/", s.handleGetPlayback)
			r.Post("/play", s.handlePlay)
			r.Post("/pause", s.playbackAction(s.player.Pause))
			r.Post("/resume", s.playbackAction(s.player.Resume))
			r.Post("/toggle", s.playbackAction(s.player.Toggle))
			r.Post("/stop", s.playbackAction(s.player.Stop))
			r.Post("/next", s.playbackSkip(s.player.SkipNext))
			r.Post("/previous", s.playbackSkip(s.player.SkipPrevious))
			r.Post("/clear", s.handleClearQueue)
			r.Post("/seek", s.handleSeek)
			r.Post("/rate", s.handleSetRate)
		})

		if s.eventStream != nil {
			r.Get("/events", s.eventStream.ServeHTTP)
		}
	})
}
