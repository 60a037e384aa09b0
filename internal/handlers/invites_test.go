package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artisanhq/atelier/internal/handlers/testutil"
	"github.com/artisanhq/atelier/internal/models"
)

func TestPreSignupUnknownEmail(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/invites/pre-signup", map[string]string{
		"email": "curious@example.com",
		"name":  "Curious",
		"phone": "+91 12345 67890",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var payload struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	}
	testutil.DecodeInto(t, resp.Data, &payload)
	require.False(t, payload.Allowed)
	require.Equal(t, "not_invited", payload.Reason)

	var attempts []models.AttemptedSignup
	require.NoError(t, env.DB.Find(&attempts).Error)
	require.Len(t, attempts, 1)
	require.Equal(t, "curious@example.com", attempts[0].Email)
	require.Equal(t, "Curious", attempts[0].Name)
}

func TestPreSignupPendingInvite(t *testing.T) {
	env := testutil.NewEnv(t)

	require.NoError(t, env.DB.Create(&models.Invite{
		Email:  "invited@example.com",
		Status: models.InviteStatusPending,
	}).Error)

	w := env.Request(http.MethodPost, "/api/invites/pre-signup", map[string]string{
		"email": "Invited@Example.com",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var payload struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	}
	testutil.DecodeInto(t, resp.Data, &payload)
	require.True(t, payload.Allowed)
	require.Empty(t, payload.Reason)
}

func TestConsumeInvite(t *testing.T) {
	env := testutil.NewEnv(t)

	require.NoError(t, env.DB.Create(&models.Invite{
		Email:  "consume@example.com",
		Status: models.InviteStatusPending,
	}).Error)

	w := env.Request(http.MethodPost, "/api/invites/consume", map[string]string{
		"email": "consume@example.com",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Second consume fails: the invite is single-use.
	w = env.Request(http.MethodPost, "/api/invites/consume", map[string]string{
		"email": "consume@example.com",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestAdminSendsInvite(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateAdmin("password-123")
	token := env.Login(admin.Email, "password-123").Tokens.AccessToken

	w := env.Request(http.MethodPost, "/api/admin/invites", map[string]string{
		"email": "newcomer@example.com",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var invite models.Invite
	require.NoError(t, env.DB.First(&invite, "email = ?", "newcomer@example.com").Error)
	require.Equal(t, models.InviteStatusPending, invite.Status)
	require.Equal(t, admin.ID, invite.InvitedBy)

	sent := env.Mailer.Sent()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].To, "newcomer@example.com")
	require.Contains(t, sent[0].Body, "https://atelier.test/signup")
}

func TestInviteAdminEndpointsRejectNonAdmins(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")
	token := env.Login(user.Email, "password-123").Tokens.AccessToken

	w := env.Request(http.MethodPost, "/api/admin/invites", map[string]string{
		"email": "sneaky@example.com",
	}, token)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/admin/invites", nil, token)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/admin/invites/attempts", nil, token)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}

func TestAdminListsInvitesAndAttempts(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateAdmin("password-123")
	token := env.Login(admin.Email, "password-123").Tokens.AccessToken

	require.NoError(t, env.DB.Create(&models.Invite{
		Email:  "listed@example.com",
		Status: models.InviteStatusPending,
	}).Error)
	require.NoError(t, env.DB.Create(&models.AttemptedSignup{
		Email: "rejected@example.com",
	}).Error)

	w := env.Request(http.MethodGet, "/api/admin/invites", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	var invitesPayload struct {
		Invites []models.Invite `json:"invites"`
	}
	testutil.DecodeInto(t, resp.Data, &invitesPayload)
	require.Len(t, invitesPayload.Invites, 1)

	w = env.Request(http.MethodGet, "/api/admin/invites/attempts", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = testutil.DecodeResponse(t, w)
	var attemptsPayload struct {
		Attempts []models.AttemptedSignup `json:"attempts"`
	}
	testutil.DecodeInto(t, resp.Data, &attemptsPayload)
	require.Len(t, attemptsPayload.Attempts, 1)
	require.Equal(t, "rejected@example.com", attemptsPayload.Attempts[0].Email)
}
