// Package metrics exposes the daemon's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set owns a private registry so daemons and tests never collide on
// collector names.
type Set struct {
	registry *prometheus.Registry

	ActionsApplied  *prometheus.CounterVec
	ActionsRejected *prometheus.CounterVec
	FoldDuration    prometheus.Histogram
	HTTPRequests    *prometheus.CounterVec
	HTTPInFlight    prometheus.Gauge
}

func New() *Set {
	s := &Set{
		registry: prometheus.NewRegistry(),
		ActionsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clearline_actions_applied_total",
				Help: "Actions that passed the reducer, by action name.",
			},
			[]string{"action"},
		),
		ActionsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clearline_actions_rejected_total",
				Help: "Actions the reducer rejected, by error code.",
			},
			[]string{"code"},
		),
		FoldDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clearline_fold_duration_seconds",
				Help:    "Time spent folding a channel into a request.",
				Buckets: prometheus.DefBuckets,
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clearline_http_requests_total",
				Help: "HTTP requests served, by route and status.",
			},
			[]string{"route", "status"},
		),
		HTTPInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clearline_http_in_flight",
				Help: "HTTP requests currently being served.",
			},
		),
	}
	s.registry.MustRegister(s.ActionsApplied, s.ActionsRejected, s.FoldDuration, s.HTTPRequests, s.HTTPInFlight)
	return s
}

// Handler serves the set's registry in the prometheus text format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
