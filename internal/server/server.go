package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/ingest"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CommitmentSink stores items from the commitment-tracking collaborator.
type CommitmentSink interface {
	SaveCommitment(ctx context.Context, userID string, c engine.Commitment) (engine.Commitment, error)
}

// Pinger reports storage health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures a Server. Ingest and Engine are required.
type Options struct {
	Ingest      *ingest.Service
	Engine      *engine.Engine
	Commitments CommitmentSink
	DB          Pinger
	Log         *zap.Logger
	Version     string

	// IngestRate and IngestBurst bound interactions accepted per user.
	// A zero rate disables limiting.
	IngestRate   float64
	IngestBurst  int
	MaxBodyBytes int64

	// Now supplies the default "now" for reads. Defaults to time.Now.
	Now func() time.Time
}

// Server is the rapport HTTP API server.
type Server struct {
	ingest      *ingest.Service
	engine      *engine.Engine
	commitments CommitmentSink
	db          Pinger
	log         *zap.Logger
	version     string
	maxBody     int64
	now         func() time.Time
	limiter     *userLimiter
	validate    *validator.Validate
	router      chi.Router
	started     time.Time
}

// New creates a new Server.
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4 << 20
	}
	s := &Server{
		ingest:      opts.Ingest,
		engine:      opts.Engine,
		commitments: opts.Commitments,
		db:          opts.DB,
		log:         opts.Log.Named("server"),
		version:     opts.Version,
		maxBody:     opts.MaxBodyBytes,
		now:         opts.Now,
		validate:    newValidator(),
		started:     time.Now(),
	}
	if opts.IngestRate > 0 {
		s.limiter = newUserLimiter(rate.Limit(opts.IngestRate), opts.IngestBurst)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/interactions", s.handleIngest)
			r.Post("/commitments", s.handleCommitments)

			r.Route("/relationships", func(r chi.Router) {
				r.Get("/graph", s.handleGraph)
				r.Get("/tone-shifts", s.handleToneShifts)
				r.Get("/neglected", s.handleNeglected)
				r.Get("/key-contacts", s.handleKeyContacts)
				r.Get("/clusters", s.handleClusters)
				r.Get("/attention", s.handleAttention)
				r.Get("/contacts/{contactID}", s.handleContactDetail)
				r.Patch("/contacts/{contactID}", s.handlePatchContact)
				r.Delete("/contacts/{contactID}", s.handleRemoveContact)
				r.Post("/adjust-importance", s.handleAdjustImportance)
			})
		})
	})

	s.router = r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			dbOK = false
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"users":   s.ingest.Registry().Len(),
	})
}
