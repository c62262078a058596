// Package web serves the JSON API used to inspect reminders, manage plants
// and report actions taken on delivered notifications.
package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/noahxzhu/plantcare-notify/internal/lifecycle"
	"github.com/noahxzhu/plantcare-notify/internal/model"
	"github.com/noahxzhu/plantcare-notify/internal/storage"
)

//go:embed templates/*
var templateFS embed.FS

type Plants interface {
	GetPlant(ctx context.Context, id int64) (model.Plant, error)
	List(ctx context.Context) ([]model.Plant, error)
	Create(ctx context.Context, p model.Plant) (model.Plant, error)
	Update(ctx context.Context, p model.Plant) error
	Delete(ctx context.Context, id int64) error
}

type Scheduler interface {
	ScheduleWateringNotifications(ctx context.Context, plant model.Plant) error
	CancelPlantNotifications(ctx context.Context, plantID int64) error
	ScheduledNotifications(ctx context.Context, plantID int64) ([]model.ScheduledNotification, error)
	Resync(ctx context.Context, list []model.Plant) error
	Location() *time.Location
}

type Responder interface {
	Lookup(identifier string) (model.ScheduledNotification, bool)
	Category(identifier string) ([]model.Action, bool)
	Respond(ctx context.Context, identifier, action string) error
}

type Lifecycle interface {
	State() lifecycle.State
	NotificationState() model.NotificationState
	Cleanup(ctx context.Context) error
}

type Journal interface {
	Entries() []storage.JournalEntry
}

type Deps struct {
	Plants    Plants
	Scheduler Scheduler
	Responder Responder
	Lifecycle Lifecycle
	Journal   Journal
}

type Server struct {
	deps     Deps
	apiToken string
	router   chi.Router
	logger   *slog.Logger
	now      func() time.Time
}

// NewServer builds the router. An empty apiToken leaves the API open.
func NewServer(deps Deps, apiToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:     deps,
		apiToken: apiToken,
		router:   chi.NewRouter(),
		logger:   logger,
		now:      time.Now,
	}
	s.routes()
	return s
}

func (s *Server) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/state", s.handleState)
		r.Get("/logs", s.handleLogs)
		r.Post("/reschedule", s.handleReschedule)
		r.Post("/cleanup", s.handleCleanup)

		r.Route("/plants", func(r chi.Router) {
			r.Get("/", s.handleListPlants)
			r.Post("/", s.handleCreatePlant)
			r.Route("/{plantID}", func(r chi.Router) {
				r.Get("/", s.handleGetPlant)
				r.Put("/", s.handleUpdatePlant)
				r.Delete("/", s.handleDeletePlant)
				r.Get("/status", s.handlePlantStatus)
				r.Post("/schedule", s.handleSchedulePlant)
				r.Delete("/notifications", s.handleCancelPlant)
			})
		})

		r.Get("/notifications", s.handleListNotifications)
		r.Get("/notifications/{notificationID}/actions/{action}", s.handleActionConfirm)
		r.Post("/notifications/{notificationID}/actions/{action}", s.handleAction)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// authMiddleware accepts "Authorization: Bearer <token>" or a token query
// parameter, which is what action links carry.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.URL.Query().Get("token")
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
