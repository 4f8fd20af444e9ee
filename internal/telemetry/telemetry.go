package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal tracks periodic loop executions by loop name and outcome.
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatcher_ticks_total",
			Help: "Total number of periodic tick executions",
		},
		[]string{"loop", "status"},
	)

	// ReadingsGeneratedTotal counts synthetic readings produced.
	ReadingsGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridwatcher_readings_generated_total",
			Help: "Total number of synthetic readings generated",
		},
	)

	// AlertsEmittedTotal counts fault alerts by subsystem and severity.
	AlertsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatcher_alerts_emitted_total",
			Help: "Total number of fault alerts emitted",
		},
		[]string{"subsystem", "severity"},
	)

	// BatteryLevelWh exposes the latest generated battery level.
	BatteryLevelWh = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridwatcher_battery_level_wh",
			Help: "Battery level of the most recent synthetic reading",
		},
	)

	// DBQueriesTotal tracks the total number of database queries.
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatcher_db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"query_type", "table", "status"},
	)

	// DBQueryDuration tracks the duration of database queries.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridwatcher_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type", "table"},
	)

	// AppStartTime records when the application started.
	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridwatcher_app_start_time_seconds",
			Help: "Unix timestamp of when the application started",
		},
	)
)

func init() {
	AppStartTime.SetToCurrentTime()
}

// RecordTick records one periodic loop execution.
func RecordTick(loop string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	TicksTotal.WithLabelValues(loop, status).Inc()
}

// RecordDBQuery records a database query execution.
func RecordDBQuery(queryType, table string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DBQueriesTotal.WithLabelValues(queryType, table, status).Inc()
	DBQueryDuration.WithLabelValues(queryType, table).Observe(duration.Seconds())
}
