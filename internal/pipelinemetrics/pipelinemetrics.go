// Package pipelinemetrics exposes Prometheus counters and a run-duration
// histogram tracking the analysis pipeline's own throughput and findings,
// grounded on the teacher's cmd/metrics Prometheus exporter: one set of
// collectors in the default registry, a sync.Once guarding lazy
// registration, and an HTTP server serving /metrics.
package pipelinemetrics

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "cachesight_"

var (
	once sync.Once

	hotspotsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "hotspots_total",
		Help: "Total hotspots aggregated by the sample ingester across all runs.",
	})
	antipatternsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "antipatterns_total",
		Help: "Classified anti-patterns, labeled by kind.",
	}, []string{"antipattern"})
	recommendationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "recommendations_total",
		Help: "Optimization recommendations emitted by the recommendation engine.",
	})
	falseSharingCandidatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "false_sharing_candidates_total",
		Help: "Cache-line buckets confirmed as false sharing by the false-sharing detector.",
	})
	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    metricPrefix + "run_duration_seconds",
		Help:    "Wall-clock duration of a full analysis run.",
		Buckets: prometheus.DefBuckets,
	})
)

func register() {
	once.Do(func() {
		prometheus.MustRegister(hotspotsTotal, antipatternsTotal, recommendationsTotal, falseSharingCandidatesTotal, runDuration)
	})
}

// ObserveHotspots records the number of hotspots produced by one run.
func ObserveHotspots(n int) {
	register()
	hotspotsTotal.Add(float64(n))
}

// ObserveAntipattern increments the per-kind classified-antipattern counter.
func ObserveAntipattern(kind string) {
	register()
	antipatternsTotal.WithLabelValues(kind).Inc()
}

// ObserveRecommendations records the number of recommendations emitted by
// one run.
func ObserveRecommendations(n int) {
	register()
	recommendationsTotal.Add(float64(n))
}

// ObserveFalseSharingCandidates records the number of false-sharing
// candidates confirmed in one run.
func ObserveFalseSharingCandidates(n int) {
	register()
	falseSharingCandidatesTotal.Add(float64(n))
}

// ObserveRunDuration records one run's wall-clock duration.
func ObserveRunDuration(d time.Duration) {
	register()
	runDuration.Observe(d.Seconds())
}

// Serve starts the Prometheus /metrics HTTP endpoint in the background,
// mirroring the teacher's startPrometheusServer.
func Serve(listenAddr string) {
	register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("starting pipeline metrics server", slog.String("address", listenAddr))
	go func() {
		server := &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("pipeline metrics server stopped", slog.String("error", err.Error()))
		}
	}()
}
