package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artisanhq/atelier/internal/handlers/testutil"
)

func resolveRoute(t *testing.T, env *testutil.Env, token string) string {
	t.Helper()

	w := env.Request(http.MethodGet, "/api/flow/route", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var payload struct {
		Route string `json:"route"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &payload)
	return payload.Route
}

func TestFlowRouteAnonymous(t *testing.T) {
	env := testutil.NewEnv(t)
	require.Equal(t, "/login", resolveRoute(t, env, ""))
}

func TestFlowRouteIgnoresGarbageToken(t *testing.T) {
	env := testutil.NewEnv(t)
	require.Equal(t, "/login", resolveRoute(t, env, "not-a-jwt"))
}

func TestFlowRouteNewUserGoesToOnboarding(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")
	token := env.Login(user.Email, "password-123").Tokens.AccessToken

	require.Equal(t, "/onboarding/2", resolveRoute(t, env, token))
}

func TestFlowRouteOnboardedUserGoesToDashboard(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")
	token := env.Login(user.Email, "password-123").Tokens.AccessToken

	w := env.MultipartRequest(http.MethodPost, "/api/profile/avatar", nil, map[string]testutil.FilePart{
		"avatar": {Name: "me.png", Content: []byte("png")},
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPatch, "/api/profile", map[string]string{"location": "Goa"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/profile/onboarding/complete", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Equal(t, "/dashboard", resolveRoute(t, env, token))
}

func TestFlowRouteAdminGoesToAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateAdmin("password-123")
	token := env.Login(admin.Email, "password-123").Tokens.AccessToken

	require.Equal(t, "/admin", resolveRoute(t, env, token))
}
