package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/parkit-backend/internal/parking"
)

func TestMetricsPublish(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	rec := parking.NewStatusRecord(5, time.Now())
	rec.Slots[0].Sensed = true
	rec.AvailableCount = 4
	require.NoError(t, m.Publish(ctx, parking.Event{Type: parking.EventStatusChanged, Status: &rec}))
	require.NoError(t, m.Publish(ctx, parking.Event{Type: parking.EventPaymentCompleted, Payment: &parking.Payment{Amount: 12.5}}))
	require.NoError(t, m.Publish(ctx, parking.Event{Type: parking.EventPaymentCompleted, Payment: &parking.Payment{Amount: 2}}))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.AvailableSlots))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OccupiedSlots))
	assert.Equal(t, 14.5, testutil.ToFloat64(m.RevenueTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("payment.completed")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Publish(context.Background(), parking.Event{Type: parking.EventBookingCreated}))
	m.CountError("transport")
	m.ObserveStatus(parking.StatusRecord{})
}

func TestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/slots", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/slots", nil))

	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}
