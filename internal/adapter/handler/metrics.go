package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors shared by the HTTP and gRPC handlers
// and the movement workers.
type Metrics struct {
	requestCounter   *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
	grpcRequests     *prometheus.CounterVec
	movements        *prometheus.CounterVec
	movementUnits    *prometheus.CounterVec
	publishResults   *prometheus.CounterVec
	workbookSaves    *prometheus.CounterVec
	totalProducts    prometheus.Gauge
	lowStockProducts prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeflow_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storeflow_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		grpcRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeflow_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method", "status_code"},
		),
		movements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeflow_stock_movements_total",
				Help: "Recorded stock movements",
			},
			[]string{"type"},
		),
		movementUnits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeflow_stock_movement_units_total",
				Help: "Units moved by recorded stock movements",
			},
			[]string{"type"},
		),
		publishResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeflow_movement_events_total",
				Help: "Movement events handed to the publisher",
			},
			[]string{"result"},
		),
		workbookSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storeflow_workbook_saves_total",
				Help: "Workbook save requests by outcome",
			},
			[]string{"outcome"},
		),
		totalProducts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "storeflow_products",
				Help: "Number of products in the inventory",
			},
		),
		lowStockProducts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "storeflow_low_stock_products",
				Help: "Number of products at or below their minimum level",
			},
		),
	}

	reg.MustRegister(
		m.requestCounter,
		m.requestLatency,
		m.grpcRequests,
		m.movements,
		m.movementUnits,
		m.publishResults,
		m.workbookSaves,
		m.totalProducts,
		m.lowStockProducts,
	)
	return m
}

func (m *Metrics) RecordMovement(typ string, quantity int) {
	m.movements.WithLabelValues(typ).Inc()
	m.movementUnits.WithLabelValues(typ).Add(float64(quantity))
}

// RecordPublish counts one movement event by publish outcome.
func (m *Metrics) RecordPublish(err error) {
	result := "published"
	if err != nil {
		result = "failed"
	}
	m.publishResults.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordSave(outcome string) {
	m.workbookSaves.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetInventory(products, lowStock int) {
	m.totalProducts.Set(float64(products))
	m.lowStockProducts.Set(float64(lowStock))
}

func (m *Metrics) recordGRPC(method, code string) {
	m.grpcRequests.WithLabelValues(method, code).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrument wraps next with request counting and latency.
func (m *Metrics) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.requestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(rw.statusCode)).Inc()
		m.requestLatency.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
