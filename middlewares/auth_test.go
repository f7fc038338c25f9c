package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkout-pipeline/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(PrometheusMiddleware())

	api := r.Group("/api", AuthMiddleware(secret))
	api.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, CurrentClaims(c).Subject)
	})
	api.GET("/admin", RequireRole(utils.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	return r
}

func token(t *testing.T, subject, role string) string {
	t.Helper()
	tok, err := utils.GenerateToken(secret, subject, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	tests := []struct {
		name       string
		path       string
		auth       string
		wantStatus int
		wantBody   string
	}{
		{name: "no header", path: "/api/me", wantStatus: http.StatusUnauthorized},
		{name: "not bearer", path: "/api/me", auth: "Basic Zm9vOmJhcg==", wantStatus: http.StatusUnauthorized},
		{name: "bad token", path: "/api/me", auth: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "customer", path: "/api/me", auth: token(t, "alice", utils.RoleCustomer), wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "customer on admin route", path: "/api/admin", auth: token(t, "alice", utils.RoleCustomer), wantStatus: http.StatusForbidden},
		{name: "admin on admin route", path: "/api/admin", auth: token(t, "root", utils.RoleAdmin), wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}
