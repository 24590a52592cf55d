// Package metrics exposes Prometheus instrumentation for playlist fetches,
// segment downloads and finished jobs. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/heyjunin/HLSgrab/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hlsgrab"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	playlistFetches *prometheus.CounterVec
	segmentFetches  *prometheus.CounterVec
	segmentBytes    prometheus.Counter
	segmentSeconds  prometheus.Histogram
	jobs            *prometheus.CounterVec
	jobSeconds      prometheus.Histogram
	fallbacks       prometheus.Counter
}

// New registers the collectors on reg. Passing nil uses a fresh private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		playlistFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playlist_fetches_total",
			Help:      "Playlist requests by result.",
		}, []string{"result"}),
		segmentFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_fetches_total",
			Help:      "Segment requests by result.",
		}, []string{"result"}),
		segmentBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_bytes_total",
			Help:      "Bytes written for downloaded segments.",
		}),
		segmentSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_fetch_duration_seconds",
			Help:      "Wall time of a single segment download.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished jobs by outcome and path.",
		}, []string{"outcome", "path"}),
		jobSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of a whole acquisition job.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remux_fallbacks_total",
			Help:      "Remux attempts that stopped and switched to segment download.",
		}),
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// PlaylistFetched counts one playlist request.
func (m *Metrics) PlaylistFetched(ok bool) {
	if m == nil {
		return
	}
	m.playlistFetches.WithLabelValues(result(ok)).Inc()
}

// SegmentFetched counts one segment request and, on success, its size and duration.
func (m *Metrics) SegmentFetched(ok bool, bytes int64, d time.Duration) {
	if m == nil {
		return
	}
	m.segmentFetches.WithLabelValues(result(ok)).Inc()
	if ok {
		m.segmentBytes.Add(float64(bytes))
		m.segmentSeconds.Observe(d.Seconds())
	}
}

// FallbackTriggered counts a stopped remux that switched to segment download.
func (m *Metrics) FallbackTriggered() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// JobFinished records a job's outcome ("succeeded", "failed", "cancelled") and duration.
func (m *Metrics) JobFinished(outcome string, usedFallback bool, d time.Duration) {
	if m == nil {
		return
	}
	path := "remux"
	if usedFallback {
		path = "segments"
	}
	m.jobs.WithLabelValues(outcome, path).Inc()
	m.jobSeconds.Observe(d.Seconds())
}

// Handler returns the /metrics HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes g on addr at /metrics until ctx ends.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", "metrics", map[string]interface{}{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
