package handlers_test

import (
	"encoding/json"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artisanhq/atelier/internal/handlers/testutil"
	"github.com/artisanhq/atelier/internal/models"
)

var tokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

func TestSignupRequiresInvite(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/signup", map[string]string{
		"email":    "outsider@example.com",
		"password": "password-123",
		"name":     "Outsider",
	}, "")

	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.Equal(t, "INVITE_REQUIRED", resp.Error.Code)

	// The attempt is recorded for admin review.
	var attempts []models.AttemptedSignup
	require.NoError(t, env.DB.Find(&attempts).Error)
	require.Len(t, attempts, 1)
	require.Equal(t, "outsider@example.com", attempts[0].Email)
}

func TestSignupWithPendingInvite(t *testing.T) {
	env := testutil.NewEnv(t)

	require.NoError(t, env.DB.Create(&models.Invite{
		Email:  "painter@example.com",
		Status: models.InviteStatusPending,
	}).Error)

	w := env.Request(http.MethodPost, "/api/auth/signup", map[string]string{
		"email":    "painter@example.com",
		"password": "password-123",
		"name":     "Painter",
		"phone":    "+91 99999 11111",
	}, "")

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.True(t, resp.Success)

	var invite models.Invite
	require.NoError(t, env.DB.First(&invite, "email = ?", "painter@example.com").Error)
	require.Equal(t, models.InviteStatusUsed, invite.Status)
	require.NotNil(t, invite.UsedAt)

	var user models.User
	require.NoError(t, env.DB.Preload("Profile").First(&user, "email = ?", "painter@example.com").Error)
	require.Equal(t, models.RoleUser, user.Role)
	require.Nil(t, user.EmailVerifiedAt)
	require.NotNil(t, user.Profile)
	require.Equal(t, "Painter", user.Profile.Name)

	sent := env.Mailer.Sent()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].To, "painter@example.com")
	require.Regexp(t, tokenPattern, sent[0].Body)

	// The same invite cannot be used twice.
	w = env.Request(http.MethodPost, "/api/auth/signup", map[string]string{
		"email":    "painter@example.com",
		"password": "password-456",
		"name":     "Painter Again",
	}, "")
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}

func TestVerifyEmailFlow(t *testing.T) {
	env := testutil.NewEnv(t)

	require.NoError(t, env.DB.Create(&models.Invite{
		Email:  "verify@example.com",
		Status: models.InviteStatusPending,
	}).Error)

	w := env.Request(http.MethodPost, "/api/auth/signup", map[string]string{
		"email":    "verify@example.com",
		"password": "password-123",
		"name":     "Verify Me",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Unverified accounts cannot log in yet.
	w = env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "verify@example.com",
		"password": "password-123",
	}, "")
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	sent := env.Mailer.Sent()
	require.Len(t, sent, 1)
	match := tokenPattern.FindStringSubmatch(sent[0].Body)
	require.Len(t, match, 2)

	w = env.Request(http.MethodPost, "/api/auth/verify-email", map[string]string{
		"token": match[1],
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := env.Login("verify@example.com", "password-123")
	require.NotEmpty(t, result.Tokens.AccessToken)
}

func TestVerifyEmailRejectsUnknownToken(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/verify-email", map[string]string{
		"token": "definitely-not-issued",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestLoginAndMe(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")

	result := env.Login(user.Email, "password-123")

	w := env.Request(http.MethodGet, "/api/auth/me", nil, result.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var payload struct {
		User struct {
			ID            string `json:"id"`
			Email         string `json:"email"`
			Role          string `json:"role"`
			EmailVerified bool   `json:"email_verified"`
		} `json:"user"`
	}
	testutil.DecodeInto(t, resp.Data, &payload)
	require.Equal(t, user.ID, payload.User.ID)
	require.Equal(t, user.Email, payload.User.Email)
	require.Equal(t, models.RoleUser, payload.User.Role)
	require.True(t, payload.User.EmailVerified)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    user.Email,
		"password": "wrong",
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
}

func TestRefreshRotatesTokens(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")
	result := env.Login(user.Email, "password-123")

	w := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": result.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var rotated testutil.TokenPair
	testutil.DecodeInto(t, resp.Data, &rotated)
	require.NotEmpty(t, rotated.AccessToken)
	require.NotEqual(t, result.Tokens.RefreshToken, rotated.RefreshToken)

	// The old refresh token is dead after rotation.
	w = env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": result.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
}

func TestLogoutRevokesSession(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")
	result := env.Login(user.Email, "password-123")

	w := env.Request(http.MethodPost, "/api/auth/logout", nil, result.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": result.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
}

func TestResendVerificationDoesNotRevealAccounts(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/resend-verification", map[string]string{
		"email": "ghost@example.com",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Empty(t, env.Mailer.Sent())

	var body map[string]json.RawMessage
	resp := testutil.DecodeResponse(t, w)
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	require.Contains(t, body, "sent")
}
