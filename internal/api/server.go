// Package api serves the onboarding view over HTTP: session mount and
// unmount, the reconciled view, retry actions, and the callback endpoint
// external jobs report progress to.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/monitoring"
	"github.com/sells-group/onboard-cli/internal/notify"
	"github.com/sells-group/onboard-cli/internal/phase"
	"github.com/sells-group/onboard-cli/internal/session"
	"github.com/sells-group/onboard-cli/internal/trigger"
)

// Publisher fans a change out to other instances.
type Publisher interface {
	Publish(ctx context.Context, workspaceID, table string) error
}

// Pinger reports whether the status store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the handlers' dependencies.
type Server struct {
	Sessions       *session.Manager
	Registry       *phase.Registry
	Writer         trigger.StatusWriter
	Store          Pinger
	Hub            *notify.Hub
	Publisher      Publisher
	AllowedOrigins []string
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", monitoring.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
			r.Post("/session", s.mount)
			r.Delete("/session", s.unmount)
			r.Get("/onboarding", s.onboarding)
			r.Post("/tracks/{workflow}/retry", s.retryTrack)
			r.Post("/tracks/{workflow}/dispatch/retry", s.retryDispatch)
			r.Post("/skip", s.skip)
		})
		r.Post("/callbacks/{workspaceID}/{workflow}", s.callback)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Store.Ping(ctx); err != nil {
			zap.L().Warn("api: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.Sessions.Len(),
	})
}

// lookup returns the mounted session for the request's workspace or writes 404.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	ws := chi.URLParam(r, "workspaceID")
	sess, ok := s.Sessions.Get(ws)
	if !ok {
		writeError(w, http.StatusNotFound, "no onboarding session mounted for workspace")
		return nil, false
	}
	return sess, true
}

func (s *Server) errStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrUnknownTrack), errors.Is(err, trigger.ErrNoTrigger):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotFailed), errors.Is(err, trigger.ErrNothingToRetry):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

