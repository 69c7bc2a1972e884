package services

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chachabrian/parkit-backend/internal/parking"
)

// Metrics holds the Prometheus collectors of the API
type Metrics struct {
	EventsTotal     *prometheus.CounterVec
	RevenueTotal    prometheus.Counter
	AvailableSlots  prometheus.Gauge
	OccupiedSlots   prometheus.Gauge
	RequestDuration *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parkit_events_total",
			Help: "Total number of parking events by type",
		}, []string{"type"}),

		RevenueTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "parkit_payments_amount_total",
			Help: "Sum of recorded payment amounts",
		}),

		AvailableSlots: factory.NewGauge(prometheus.GaugeOpts{
			Name: "parkit_slots_available",
			Help: "Number of free parking slots",
		}),

		OccupiedSlots: factory.NewGauge(prometheus.GaugeOpts{
			Name: "parkit_slots_occupied",
			Help: "Number of occupied parking slots",
		}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parkit_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parkit_errors_total",
			Help: "Total number of failed operations by kind",
		}, []string{"kind"}),
	}
}

// Publish counts core events and tracks occupancy
func (m *Metrics) Publish(_ context.Context, event parking.Event) error {
	if m == nil {
		return nil
	}
	m.EventsTotal.WithLabelValues(string(event.Type)).Inc()
	if event.Status != nil {
		m.ObserveStatus(*event.Status)
	}
	if event.Type == parking.EventPaymentCompleted && event.Payment != nil {
		m.RevenueTotal.Add(event.Payment.Amount)
	}
	return nil
}

// ObserveStatus updates the slot gauges
func (m *Metrics) ObserveStatus(rec parking.StatusRecord) {
	if m == nil {
		return
	}
	m.AvailableSlots.Set(float64(rec.AvailableCount))
	m.OccupiedSlots.Set(float64(len(rec.Slots) - rec.AvailableCount))
}

// CountError records a failed operation
func (m *Metrics) CountError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// Middleware records the duration of every request
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
