// Package api serves the assessment engine and stored samples over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/sells-group/metalsense/internal/engine"
	"github.com/sells-group/metalsense/internal/store"
	"github.com/sells-group/metalsense/internal/worker"
)

// Options configures the router.
type Options struct {
	CORSOrigins []string
	RateLimit   float64 // requests per second across /v1; 0 disables limiting
	RateBurst   int
}

// Server holds the collaborators behind the HTTP handlers.
type Server struct {
	store      store.Store
	engine     *engine.Engine
	dispatcher worker.Dispatcher
	now        func() time.Time
}

// NewServer creates a Server.
func NewServer(st store.Store, eng *engine.Engine, d worker.Dispatcher) *Server {
	return &Server{store: st, engine: eng, dispatcher: d, now: time.Now}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler(opts Options) http.Handler {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		if opts.RateLimit > 0 {
			burst := opts.RateBurst
			if burst <= 0 {
				burst = int(opts.RateLimit)
			}
			r.Use(rateLimit(rate.NewLimiter(rate.Limit(opts.RateLimit), burst)))
		}

		r.Get("/standards", s.handleStandards)
		r.Post("/assess", s.handleAssess)

		r.Route("/samples", func(r chi.Router) {
			r.Post("/", s.handleCreateSample)
			r.Get("/", s.handleListSamples)
			r.Get("/{id}", s.handleGetSample)
			r.Get("/{id}/assessment", s.handleGetAssessment)
			r.Post("/{id}/reassess", s.handleReassess)
		})

		r.Get("/alerts", s.handleAlerts)
	})

	return r
}
