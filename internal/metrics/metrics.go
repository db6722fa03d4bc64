package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OpenMeteoCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mosweather_openmeteo_api_calls_total",
			Help: "Total Open-Meteo API calls",
		},
		[]string{"endpoint", "status"},
	)

	OpenMeteoLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mosweather_openmeteo_api_latency_seconds",
			Help:    "Open-Meteo API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	RowsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mosweather_rows_ingested_total",
			Help: "Total rows ingested into the store",
		},
		[]string{"kind"},
	)

	TrainingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mosweather_training_runs_total",
			Help: "Training runs by outcome",
		},
		[]string{"status"},
	)

	ValidationMAE = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mosweather_validation_mae",
			Help: "Validation MAE of the most recently trained bundle",
		},
		[]string{"target"},
	)

	QuantileCrossingsCorrected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mosweather_quantile_crossings_corrected_total",
			Help: "Quantile pairs that crossed and were sorted before reporting",
		},
	)

	ForecastsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mosweather_forecasts_generated_total",
			Help: "Inference runs that produced a forecast artifact",
		},
	)
)
