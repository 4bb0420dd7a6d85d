// Package metrics summarises feeds and exposes Prometheus instruments
// for probe runs, feed builds and the sample store.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hostfeed/internal/models"
)

// Registry holds every hostfeed instrument. It is served on /metrics and
// written to textfiles after one-shot runs.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	probeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hostfeed_probe_duration_seconds",
			Help:    "Time taken by individual probes",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"probe"},
	)

	probeStatus = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hostfeed_probe_status",
			Help: "Last status reported by a probe (0 ok, 1 warn, 2 bad)",
		},
		[]string{"probe"},
	)

	feedBuildsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostfeed_feed_builds_total",
			Help: "Total number of feed build attempts",
		},
		[]string{"result"}, // success or error
	)

	feedLastSuccess = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostfeed_feed_last_success_timestamp_seconds",
			Help: "Unix time of the last successfully persisted feed",
		},
	)

	samplesRecordedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostfeed_samples_recorded_total",
			Help: "Total number of metric sample recording attempts",
		},
		[]string{"result"},
	)

	samplesPrunedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "hostfeed_samples_pruned_total",
			Help: "Total number of samples deleted by retention",
		},
	)

	statsRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostfeed_stats_requests_total",
			Help: "Total number of live stats requests",
		},
		[]string{"transport", "result"}, // http or ws; served or limited
	)
)

// RegisterRuntimeCollectors adds Go runtime and process metrics. Only the
// long-running server wants them.
func RegisterRuntimeCollectors() error {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := Registry.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return fmt.Errorf("register collector: %w", err)
		}
	}
	return nil
}

// ObserveProbe records how long a probe took and what it reported.
func ObserveProbe(name string, status models.Status, took time.Duration) {
	probeDuration.WithLabelValues(name).Observe(took.Seconds())
	probeStatus.WithLabelValues(name).Set(float64(status.Rank()))
}

// ObserveFeedBuild counts a feed build and, on success, its completion time.
func ObserveFeedBuild(at time.Time, err error) {
	if err != nil {
		feedBuildsTotal.WithLabelValues("error").Inc()
		return
	}
	feedBuildsTotal.WithLabelValues("success").Inc()
	feedLastSuccess.Set(float64(at.Unix()))
}

// ObserveRecord counts a sample recording and the rows it pruned.
func ObserveRecord(pruned int, err error) {
	if err != nil {
		samplesRecordedTotal.WithLabelValues("error").Inc()
		return
	}
	samplesRecordedTotal.WithLabelValues("success").Inc()
	if pruned > 0 {
		samplesPrunedTotal.Add(float64(pruned))
	}
}

// ObserveStatsRequest counts a live stats request. limited marks
// requests rejected by the rate limiter.
func ObserveStatsRequest(transport string, limited bool) {
	result := "served"
	if limited {
		result = "limited"
	}
	statsRequestsTotal.WithLabelValues(transport, result).Inc()
}

// WriteTextfile writes the registry in text exposition format for the
// node_exporter textfile collector. The file is replaced atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
