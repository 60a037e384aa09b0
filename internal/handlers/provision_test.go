package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artisanhq/atelier/internal/handlers"
	"github.com/artisanhq/atelier/internal/handlers/testutil"
	"github.com/artisanhq/atelier/internal/models"
)

func provisionRequest(t *testing.T, env *testutil.Env, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, "/api/provision-admin", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(handlers.ProvisionTokenHeader, token)
	}

	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	return w
}

func TestProvisionAdminRejectsBadToken(t *testing.T) {
	env := testutil.NewEnv(t)

	body := `{"email":"admin@example.com","password":"password-123"}`

	w := provisionRequest(t, env, "", body)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = provisionRequest(t, env, "wrong-token", body)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	var count int64
	require.NoError(t, env.DB.Model(&models.User{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestProvisionAdminCreatesOnce(t *testing.T) {
	env := testutil.NewEnv(t)

	body := `{"email":"admin@example.com","password":"password-123"}`

	w := provisionRequest(t, env, env.ProvisionToken(), body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var payload struct {
		Created bool `json:"created"`
	}
	testutil.DecodeInto(t, resp.Data, &payload)
	require.True(t, payload.Created)

	var admin models.User
	require.NoError(t, env.DB.First(&admin, "email = ?", "admin@example.com").Error)
	require.Equal(t, models.RoleAdmin, admin.Role)
	require.NotNil(t, admin.EmailVerifiedAt)

	// A second call is idempotent.
	w = provisionRequest(t, env, env.ProvisionToken(), body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &payload)
	require.False(t, payload.Created)

	// The provisioned admin can log in and reach admin endpoints.
	token := env.Login("admin@example.com", "password-123").Tokens.AccessToken
	lw := env.Request(http.MethodGet, "/api/admin/invites", nil, token)
	require.Equal(t, http.StatusOK, lw.Code, lw.Body.String())
}

func TestProvisionAdminPromotesExistingUser(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")

	body := `{"email":"` + user.Email + `"}`
	w := provisionRequest(t, env, env.ProvisionToken(), body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var promoted models.User
	require.NoError(t, env.DB.First(&promoted, "id = ?", user.ID).Error)
	require.Equal(t, models.RoleAdmin, promoted.Role)
}
