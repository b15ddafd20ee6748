package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
	"github.com/couchcryptid/park-waits-etl/internal/observability"
	"github.com/couchcryptid/park-waits-etl/internal/posted"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HoursSource resolves the hours valid for a park day at an instant.
type HoursSource interface {
	GetHours(parkDate time.Time, parkCode string, asOf time.Time) (domain.ParkHoursVersion, bool)
}

// PostedSource predicts the posted wait for an entity, park day and hour.
type PostedSource interface {
	PredictedPosted(entityCode string, parkDate time.Time, hour int) (posted.Prediction, bool)
}

// Server exposes health, readiness, metrics and lookup HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	hours      HoursSource
	posted     PostedSource
	metrics    *observability.Metrics
}

// Option configures optional lookup routes.
type Option func(*Server)

// WithHours enables GET /v1/hours/{park}/{date}.
func WithHours(src HoursSource) Option {
	return func(s *Server) { s.hours = src }
}

// WithPosted enables GET /v1/posted/{entity}/{date}/{hour}. Lookups are
// counted by fallback level when metrics is non-nil.
func WithPosted(src PostedSource, metrics *observability.Metrics) Option {
	return func(s *Server) {
		s.posted = src
		s.metrics = metrics
	}
}

// NewServer creates an HTTP server with /healthz, /readyz and /metrics routes
// plus whichever lookup routes the options enable.
func NewServer(addr string, ready sharedobs.ReadinessChecker, logger *slog.Logger, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.hours != nil {
		mux.HandleFunc("GET /v1/hours/{park}/{date}", s.handleHours)
	}
	if s.posted != nil {
		mux.HandleFunc("GET /v1/posted/{entity}/{date}/{hour}", s.handlePosted)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type hoursResponse struct {
	domain.ParkHoursVersion
	AsOf time.Time `json:"as_of"`
}

func (s *Server) handleHours(w http.ResponseWriter, r *http.Request) {
	date, err := domain.ParseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	asOf := domain.Now()
	if q := r.URL.Query().Get("as_of"); q != "" {
		if asOf, err = domain.ParseTimestamp(q, time.UTC); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	park := r.PathValue("park")
	v, ok := s.hours.GetHours(date, park, asOf)
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{
			"error": "no hours for " + park + " on " + date.Format(domain.DateLayout),
		})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, hoursResponse{ParkHoursVersion: v, AsOf: asOf.UTC()})
}

type postedResponse struct {
	EntityCode string  `json:"entity_code"`
	ParkDate   string  `json:"park_date"`
	Hour       int     `json:"hour"`
	Value      float64 `json:"predicted_posted"`
	Level      string  `json:"level"`
	SampleSize int     `json:"sample_size"`
}

func (s *Server) handlePosted(w http.ResponseWriter, r *http.Request) {
	date, err := domain.ParseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	hour, err := strconv.Atoi(r.PathValue("hour"))
	if err != nil || hour < 0 || hour > 23 {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "hour must be 0-23"})
		return
	}

	entity := r.PathValue("entity")
	p, ok := s.posted.PredictedPosted(entity, date, hour)
	if s.metrics != nil {
		s.metrics.PostedLookups.WithLabelValues(p.Level.String()).Inc()
	}
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no posted data for " + entity})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, postedResponse{
		EntityCode: entity,
		ParkDate:   date.Format(domain.DateLayout),
		Hour:       hour,
		Value:      p.Value,
		Level:      p.Level.String(),
		SampleSize: p.SampleSize,
	})
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
