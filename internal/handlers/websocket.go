package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/chachabrian/parkit-backend/internal/identity"
	"github.com/chachabrian/parkit-backend/internal/middleware"
	"github.com/chachabrian/parkit-backend/internal/services"
)

// WebSocketHandler handles WebSocket connections. The connection keeps its
// own session so a client can refresh its token without reconnecting.
func WebSocketHandler(hub *services.Hub, verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := identity.NewSession(verifier, middleware.CurrentIdentity(c))
		services.HandleWebSocket(hub, c.Writer, c.Request, session)
	}
}
