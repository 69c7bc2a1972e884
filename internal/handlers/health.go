package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports liveness and the number of WebSocket clients
func HealthCheck(clients func() int) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := gin.H{
			"status": "ok",
			"time":   time.Now().UTC(),
		}
		if clients != nil {
			data["websocketClients"] = clients()
		}
		respondOK(c, http.StatusOK, data)
	}
}
