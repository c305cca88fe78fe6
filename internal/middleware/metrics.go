package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

// PrometheusMetrics holds all Prometheus metrics
type PrometheusMetrics struct {
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec
	HttpRequestSize     *prometheus.HistogramVec
	HttpResponseSize    *prometheus.HistogramVec

	// Refresh run metrics
	RefreshTotal        *prometheus.CounterVec
	RefreshDuration     *prometheus.HistogramVec
	RefreshRows         *prometheus.CounterVec
	RefreshErrors       *prometheus.CounterVec
	TableBusyRejections *prometheus.CounterVec
	LastRefreshTime     *prometheus.GaugeVec

	// Partition metrics
	PartitionsCreated  *prometheus.CounterVec
	PartitionsSwitched *prometheus.CounterVec
	PartitionsStranded *prometheus.CounterVec

	// Connection pool metrics
	ConnectionPoolActive *prometheus.GaugeVec
	ConnectionPoolIdle   *prometheus.GaugeVec
	DatabaseUp           *prometheus.GaugeVec
}

var (
	metrics *PrometheusMetrics
)

// Bulk refreshes run for minutes, not milliseconds.
var refreshDurationBuckets = []float64{1, 5, 15, 60, 300, 900, 1800, 3600}

// InitMetrics initializes all Prometheus metrics
func InitMetrics() {
	metrics = &PrometheusMetrics{
		// HTTP request metrics
		HttpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datarefresh_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HttpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datarefresh_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		HttpRequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datarefresh_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "endpoint"},
		),
		HttpResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datarefresh_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "endpoint"},
		),

		// Refresh run metrics
		RefreshTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datarefresh_refreshes_total",
				Help: "Total number of table refreshes",
			},
			[]string{"table", "strategy", "status"},
		),
		RefreshDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datarefresh_refresh_duration_seconds",
				Help:    "Table refresh duration in seconds",
				Buckets: refreshDurationBuckets,
			},
			[]string{"table", "strategy"},
		),
		RefreshRows: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datarefresh_rows_processed_total",
				Help: "Total number of rows copied into the target",
			},
			[]string{"table"},
		),
		RefreshErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datarefresh_refresh_errors_total",
				Help: "Total number of failed refreshes by error kind",
			},
			[]string{"table", "error_kind"},
		),
		TableBusyRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datarefresh_table_busy_rejections_total",
				Help: "Refresh requests rejected because the table was already refreshing",
			},
			[]string{"table"},
		),
		LastRefreshTime: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "datarefresh_last_refresh_timestamp_seconds",
				Help: "Unix time of the last successful refresh per table",
			},
			[]string{"table"},
		),

		// Partition metrics
		PartitionsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datarefresh_partitions_created_total",
				Help: "Total number of partition boundaries created",
			},
			[]string{"table"},
		),
		PartitionsSwitched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datarefresh_partitions_switched_total",
				Help: "Total number of partitions switched into the target",
			},
			[]string{"table"},
		),
		PartitionsStranded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datarefresh_partitions_stranded_total",
				Help: "Partitions left unswitched after a partial switch failure",
			},
			[]string{"table"},
		),

		// Connection pool metrics
		ConnectionPoolActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "datarefresh_connection_pool_active",
				Help: "Number of active connections in the pool",
			},
			[]string{"role"},
		),
		ConnectionPoolIdle: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "datarefresh_connection_pool_idle",
				Help: "Number of idle connections in the pool",
			},
			[]string{"role"},
		),
		DatabaseUp: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "datarefresh_database_up",
				Help: "Whether the database endpoint is reachable (1=up, 0=down)",
			},
			[]string{"role"},
		),
	}
}

// GetMetrics returns the initialized metrics
func GetMetrics() *PrometheusMetrics {
	return metrics
}

// PrometheusMiddleware is a Gin middleware that records HTTP metrics
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}

		// Start timer
		start := time.Now()

		// Process request
		c.Next()

		// Calculate metrics
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		endpoint := c.FullPath()

		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		// Record metrics
		metrics.HttpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		metrics.HttpRequestDuration.WithLabelValues(method, endpoint).Observe(duration)

		// Record request size if available
		if c.Request.ContentLength > 0 {
			metrics.HttpRequestSize.WithLabelValues(method, endpoint).Observe(float64(c.Request.ContentLength))
		}

		// Record response size if available
		if c.Writer.Size() > 0 {
			metrics.HttpResponseSize.WithLabelValues(method, endpoint).Observe(float64(c.Writer.Size()))
		}
	}
}

// RecordRefreshMetrics records the outcome of one table refresh. Dry runs
// are not recorded.
func RecordRefreshMetrics(result *model.RefreshResult) {
	if metrics == nil || result == nil || result.DryRun {
		return
	}

	table := result.Table
	strategy := string(result.Strategy)

	metrics.RefreshTotal.WithLabelValues(table, strategy, string(result.Status)).Inc()
	metrics.RefreshDuration.WithLabelValues(table, strategy).Observe(result.DurationSeconds)

	if result.RowsAffected > 0 {
		metrics.RefreshRows.WithLabelValues(table).Add(float64(result.RowsAffected))
	}
	if len(result.PartitionsCreated) > 0 {
		metrics.PartitionsCreated.WithLabelValues(table).Add(float64(len(result.PartitionsCreated)))
	}
	if len(result.PartitionsSwitched) > 0 {
		metrics.PartitionsSwitched.WithLabelValues(table).Add(float64(len(result.PartitionsSwitched)))
	}
	if len(result.PartitionsUnswitched) > 0 {
		metrics.PartitionsStranded.WithLabelValues(table).Add(float64(len(result.PartitionsUnswitched)))
	}

	switch {
	case result.ErrorKind == utils.ErrCodeTableBusy:
		metrics.TableBusyRejections.WithLabelValues(table).Inc()
	case result.Status == model.RunStatusFailed:
		metrics.RefreshErrors.WithLabelValues(table, result.ErrorKind).Inc()
	case result.Status == model.RunStatusSuccess:
		metrics.LastRefreshTime.WithLabelValues(table).Set(float64(result.FinishedAt.Unix()))
	}
}

// UpdateConnectionPoolMetrics updates connection pool metrics for a role
func UpdateConnectionPoolMetrics(role string, active, idle int) {
	if metrics == nil {
		return
	}

	metrics.ConnectionPoolActive.WithLabelValues(role).Set(float64(active))
	metrics.ConnectionPoolIdle.WithLabelValues(role).Set(float64(idle))
}

// UpdateDatabaseHealth updates endpoint reachability metrics for a role
func UpdateDatabaseHealth(role string, up bool) {
	if metrics == nil {
		return
	}

	upValue := 0.0
	if up {
		upValue = 1.0
	}
	metrics.DatabaseUp.WithLabelValues(role).Set(upValue)
}
