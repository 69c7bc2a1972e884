package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/parkit-backend/internal/identity"
	"github.com/chachabrian/parkit-backend/pkg/utils"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(identity.JWTVerifier{Secret: "k"}), func(c *gin.Context) {
		c.JSON(200, gin.H{"userId": CurrentIdentity(c).UserID})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newAuthRouter()
	token, err := utils.GenerateToken("k", "u7", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		url    string
		header string
		code   int
	}{
		{"header", "/me", "Bearer " + token, http.StatusOK},
		{"query parameter", "/me?token=" + token, "", http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"u7"`)
			}
		})
	}
}
