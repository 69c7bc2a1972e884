package handlers

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chachabrian/parkit-backend/internal/identity"
	"github.com/chachabrian/parkit-backend/internal/middleware"
	"github.com/chachabrian/parkit-backend/internal/parking"
	"github.com/chachabrian/parkit-backend/internal/services"
)

// Deps holds everything the routes need. Optional integrations are left as
// nil interfaces when they are not configured.
type Deps struct {
	Service  *parking.Service
	Verifier identity.Verifier
	Hub      *services.Hub
	Cache    SnapshotCache
	Tokens   TokenRegistry
	Topics   AvailabilitySubscriber
	Metrics  *services.Metrics
	Gatherer prometheus.Gatherer
	Origins  []string
}

// NewRouter builds the gin engine serving the parking API
func NewRouter(deps Deps) *gin.Engine {
	RegisterValidators()

	r := gin.Default()

	// Configure CORS
	config := cors.DefaultConfig()
	if len(deps.Origins) == 0 || (len(deps.Origins) == 1 && deps.Origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = deps.Origins
	}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(config))

	r.Use(deps.Metrics.Middleware(), countErrors(deps.Metrics))

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	} else {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	var clients func() int
	if deps.Hub != nil {
		clients = deps.Hub.GetConnectedClients
	}

	// Routes
	api := r.Group("/api")
	{
		api.GET("/health", HealthCheck(clients))
		api.GET("/slots", GetSlots(deps.Service, deps.Cache))

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(deps.Verifier))
		{
			if deps.Hub != nil {
				protected.GET("/ws", WebSocketHandler(deps.Hub, deps.Verifier))
			}

			bookings := protected.Group("/bookings")
			{
				bookings.POST("", CreateBooking(deps.Service))
				bookings.GET("", GetUserBookings(deps.Service))
				bookings.GET("/active", GetActiveBooking(deps.Service))
				bookings.GET("/:id", GetBooking(deps.Service))
				bookings.POST("/:id/exit", ExitBooking(deps.Service))
				bookings.POST("/:id/payment", ProcessPayment(deps.Service))
				bookings.GET("/:id/payments", GetBookingPayments(deps.Service))
			}

			notifications := protected.Group("/notifications")
			{
				notifications.POST("/register-token", RegisterFCMToken(deps.Tokens, deps.Topics))
				notifications.DELETE("/remove-token", RemoveFCMToken(deps.Tokens, deps.Topics))
			}
		}
	}

	return r
}

// countErrors feeds errors attached by respondError into errors_total
func countErrors(m *services.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		for _, e := range c.Errors {
			m.CountError(errorKind(e.Err))
		}
	}
}
