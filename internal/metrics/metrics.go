// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pipelinePagesTotal        *prometheus.CounterVec
	pipelineReviewsTotal      *prometheus.CounterVec
	pipelineSinkDocsTotal     *prometheus.CounterVec
	pipelinePageDelaySeconds  prometheus.Histogram
	pipelineRunDurationSecond *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pipelinePagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_pages_total",
				Help: "Total listing pages fetched, labeled by HTTP status.",
			},
			[]string{"status"},
		)

		pipelineReviewsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_reviews_total",
				Help: "Total reviews processed, labeled by pipeline stage.",
			},
			[]string{"stage"},
		)

		pipelineSinkDocsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_sink_documents_total",
				Help: "Documents handed to a sink, labeled by sink and outcome.",
			},
			[]string{"sink", "outcome"},
		)

		pipelinePageDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_page_delay_seconds",
				Help:    "Histogram of inter-page politeness delays.",
				Buckets: []float64{0.5, 1, 1.5, 2, 2.5, 3, 3.5, 5, 10, 30},
			},
		)

		pipelineRunDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Histogram of stage durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900},
			},
			[]string{"stage"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one fetched page by HTTP status.
func ObservePage(status int) {
	pipelinePagesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ObserveReviews counts reviews passing through a stage.
func ObserveReviews(stage string, n int) {
	if n > 0 {
		pipelineReviewsTotal.WithLabelValues(stage).Add(float64(n))
	}
}

// ObserveSinkDocs counts documents by sink and outcome.
func ObserveSinkDocs(sink, outcome string, n int) {
	if n > 0 {
		pipelineSinkDocsTotal.WithLabelValues(sink, outcome).Add(float64(n))
	}
}

// ObservePageDelay records one inter-page politeness delay.
func ObservePageDelay(d time.Duration) {
	pipelinePageDelaySeconds.Observe(d.Seconds())
}

// ObserveStageDuration records the wall time of one pipeline stage.
func ObserveStageDuration(stage string, d time.Duration) {
	pipelineRunDurationSecond.WithLabelValues(stage).Observe(d.Seconds())
}
