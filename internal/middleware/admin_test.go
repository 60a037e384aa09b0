package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/artisanhq/atelier/internal/auth"
	"github.com/artisanhq/atelier/internal/models"
)

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "admin-mw-secret", AccessTokenTTL: time.Hour})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/admin-only", Auth(jwtSvc), RequireAdmin(), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	adminToken, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:   "admin-1",
		Metadata: map[string]any{"role": models.RoleAdmin},
	})
	require.NoError(t, err)

	userToken, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:   "user-1",
		Metadata: map[string]any{"role": models.RoleUser},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
