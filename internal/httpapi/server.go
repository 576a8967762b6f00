// Package httpapi serves the daemon's REST surface: channel creation,
// action submission, derivation reads and settlement facts.
package httpapi

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"clearline/go-engine/internal/events"
	"clearline/go-engine/internal/fold"
	"clearline/go-engine/internal/metrics"
	"clearline/go-engine/internal/platform/ratelimiter"
	"clearline/go-engine/internal/settlement"
)

// Info describes the daemon for GET /v1/info.
type Info struct {
	Service           string   `json:"service"`
	Version           string   `json:"version"`
	ProtocolVersion   string   `json:"protocol_version"`
	SupportedVersions []string `json:"supported_versions"`
	Advertise         []string `json:"advertise,omitempty"`
}

// Server wires the fold service and settlement recorder to HTTP.
type Server struct {
	svc     *fold.Service
	facts   settlement.Recorder
	limiter *ratelimiter.MapLimiter
	hub     *events.Hub
	logger  *slog.Logger
	metrics *metrics.Set
	info    Info
	now     func() time.Time
}

type Option func(*Server)

// WithSubmitLimiter bounds action submission per channel. A nil
// limiter disables the check.
func WithSubmitLimiter(l *ratelimiter.MapLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

func WithMetrics(set *metrics.Set) Option {
	return func(s *Server) { s.metrics = set }
}

// WithEvents enables the GET /v1/events stream.
func WithEvents(hub *events.Hub) Option {
	return func(s *Server) { s.hub = hub }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(svc *fold.Service, facts settlement.Recorder, logger *slog.Logger, info Info, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		facts:  facts,
		logger: logger,
		info:   info,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi mux. Metrics are mounted only when a set is
// configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", s.handleInfo)
		if s.hub != nil {
			r.Get("/events", s.handleEvents)
		}
		r.Route("/channels", func(r chi.Router) {
			r.Get("/", s.handleListChannels)
			r.Post("/", s.handleCreateChannel)
			r.Route("/{channel}", func(r chi.Router) {
				r.Get("/", s.handleDerive)
				r.Get("/actions", s.handleListActions)
				r.Post("/actions", s.handleSubmitAction)
				r.Get("/payments", s.handleChannelPayments)
			})
		})
		r.Post("/payments", s.handleRecordPayment)
	})

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps the event stream working through the middleware wrap.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := s.now()
		if s.metrics != nil {
			s.metrics.HTTPInFlight.Inc()
			defer s.metrics.HTTPInFlight.Dec()
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}
		s.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration_ms", s.now().Sub(started).Milliseconds(),
		)
	})
}

// submitKey scopes the rate limit: per channel for follow-up actions,
// per caller host for creations.
func submitKey(r *http.Request) string {
	if channel := chi.URLParam(r, "channel"); channel != "" {
		return channel
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
