package observability

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomsync", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roomsync", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomsync", Name: "external_requests_total", Help: "Outbound CRS requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roomsync", Name: "external_request_duration_seconds",
			Help:    "Outbound CRS request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	BookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomsync", Name: "booking_transitions_total", Help: "Booking status transitions."},
		[]string{"from", "to"},
	)
	SweepOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomsync", Name: "sweep_outcomes_total", Help: "Watchdog sweep per-booking outcomes."},
		[]string{"outcome"}, // confirmed|noop|degraded|unavailable
	)
	AtRiskBookings = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "roomsync", Name: "at_risk_bookings", Help: "Bookings at or above the retry ceiling."},
	)
	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomsync", Name: "rate_limit_decisions_total", Help: "Rate limiter allow/deny decisions."},
		[]string{"decision"},
	)
)

func Serve() {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency,
		BookingTransitions, SweepOutcomes, AtRiskBookings, RateLimitDecisions)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveTransition(from, to string) {
	BookingTransitions.WithLabelValues(from, to).Inc()
}

func ObserveSweep(outcome string) {
	SweepOutcomes.WithLabelValues(outcome).Inc()
}

func SetAtRisk(n int) {
	AtRiskBookings.Set(float64(n))
}

func ObserveRateLimit(decision string) {
	RateLimitDecisions.WithLabelValues(decision).Inc()
}

func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}
