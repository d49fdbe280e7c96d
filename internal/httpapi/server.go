// Package httpapi serves the JSON polling API and stored media.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"iganalyzer/pkg/analyzer"
	"iganalyzer/pkg/logger"
	"iganalyzer/pkg/session"
	"iganalyzer/pkg/storage"
)

// MediaCacheControl is sent with every media file
const MediaCacheControl = "public, max-age=86400"

// Server exposes the analysis service over HTTP
type Server struct {
	analyzer *analyzer.Service
	sessions *session.Store
	media    *storage.Manager
	logger   logger.Logger
	jobs     JobStats
	now      func() time.Time
	router   chi.Router
}

// JobStats is the worker pool view reported by /health
type JobStats interface {
	Workers() int
	ActiveWorkers() int
	QueueSize() int
	Completed() int64
}

// Option configures a Server
type Option func(*Server)

// WithClock sets the clock used for minutes_left
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithJobStats adds pool counters to /health
func WithJobStats(jobs JobStats) Option {
	return func(s *Server) { s.jobs = jobs }
}

// NewServer builds the router. The returned Server is an http.Handler.
func NewServer(svc *analyzer.Service, sessions *session.Store, media *storage.Manager, log logger.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Server{
		analyzer: svc,
		sessions: sessions,
		media:    media,
		logger:   log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/analyze-profile", s.handleAnalyze)
	r.Get("/get-session-data/{sessionID}", s.handleSessionData)
	r.Get("/check-session/{sessionID}", s.handleCheckSession)
	r.Post("/cleanup-session/{sessionID}", s.handleCleanup)
	r.Get(storage.URLPrefix+"{filename}", s.handleMedia)
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// logRequests feeds every served request to logger.LogRequest
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.LogRequest(s.logger, r.Method, r.URL.Path, status, time.Since(start), middleware.GetReqID(r.Context()))
		}()
		next.ServeHTTP(ww, r)
	})
}
