package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the service's collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rescue",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rescue",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	// Reservations counts reservation attempts by outcome
	// (ok, sold_out, failed, partial, rejected).
	Reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rescue",
			Subsystem: "reservation",
			Name:      "attempts_total",
			Help:      "Reservation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	CatalogFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rescue",
			Subsystem: "catalog",
			Name:      "failures_total",
			Help:      "Catalog reads that failed against the store.",
		},
	)

	ConsumedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rescue",
			Subsystem: "worker",
			Name:      "events_total",
			Help:      "Events handled by the worker.",
		},
		[]string{"type", "result"},
	)
)

func init() {
	Registry.MustRegister(httpRequests, httpDuration, Reservations, CatalogFailures, ConsumedEvents)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHTTP records count and latency per chi route pattern.
func InstrumentHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
