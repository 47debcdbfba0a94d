// Package metrics exposes pipeline counters for the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsIngested counts raw rows written, labelled by dataset and
	// validation outcome.
	RowsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coverlake_rows_ingested_total",
		Help: "Raw rows appended to the RAW layer by dataset and status.",
	}, []string{"dataset", "status"})

	// RowsFiltered counts staging rows dropped by transform filters.
	RowsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coverlake_rows_filtered_total",
		Help: "Rows dropped by transform numeric filters by dataset.",
	}, []string{"dataset"})

	// TransformDuration observes transform batch durations.
	TransformDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coverlake_transform_duration_seconds",
		Help:    "Duration of transform batches.",
		Buckets: prometheus.DefBuckets,
	}, []string{"dataset"})

	// WatermarkSeq reports the committed RAW→STAGING watermark.
	WatermarkSeq = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coverlake_watermark_seq",
		Help: "Committed raw-to-staging watermark sequence by dataset.",
	}, []string{"dataset"})

	// RunsTotal counts completed pipeline runs by terminal status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coverlake_runs_total",
		Help: "Completed pipeline runs by dataset and status.",
	}, []string{"dataset", "status"})
)
