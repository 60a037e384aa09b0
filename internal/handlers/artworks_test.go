package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artisanhq/atelier/internal/handlers/testutil"
	"github.com/artisanhq/atelier/internal/models"
)

type artworkView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ImagePath string `json:"image_path"`
	ImageURL  string `json:"image_url"`
	Products  []struct {
		ProductID  string  `json:"product_id"`
		Enabled    bool    `json:"enabled"`
		Margin     float64 `json:"margin"`
		FinalPrice float64 `json:"final_price"`
	} `json:"products"`
}

func decodeArtwork(t *testing.T, raw json.RawMessage) artworkView {
	t.Helper()
	var payload struct {
		Artwork artworkView `json:"artwork"`
	}
	testutil.DecodeInto(t, raw, &payload)
	return payload.Artwork
}

func seededProduct(t *testing.T, env *testutil.Env, name string) models.Product {
	t.Helper()
	var product models.Product
	require.NoError(t, env.DB.First(&product, "name = ?", name).Error)
	return product
}

func TestArtworkCreateWithProductSelections(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")
	token := env.Login(user.Email, "password-123").Tokens.AccessToken

	canvas := seededProduct(t, env, "Canvas")

	selections := fmt.Sprintf(`[{"product_id":%q,"enabled":true,"margin":250}]`, canvas.ID)
	w := env.MultipartRequest(http.MethodPost, "/api/artworks", map[string]string{
		"title":       "Monsoon Study",
		"description": "Ink on handmade paper",
		"products":    selections,
	}, map[string]testutil.FilePart{
		"image": {Name: "monsoon.png", Content: []byte("image-bytes")},
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	artwork := decodeArtwork(t, resp.Data)
	require.Equal(t, "Monsoon Study", artwork.Title)
	require.NotEmpty(t, artwork.ImagePath)
	require.NotEmpty(t, artwork.ImageURL)
	require.Len(t, artwork.Products, 1)
	require.Equal(t, canvas.ID, artwork.Products[0].ProductID)
	require.True(t, artwork.Products[0].Enabled)
	require.InDelta(t, 2050, artwork.Products[0].FinalPrice, 0.001)

	stored, ok := env.Objects.Object("artworks", artwork.ImagePath)
	require.True(t, ok)
	require.Equal(t, []byte("image-bytes"), stored)
}

func TestArtworkCreateRejectsNegativeMargin(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")
	token := env.Login(user.Email, "password-123").Tokens.AccessToken

	canvas := seededProduct(t, env, "Canvas")

	selections := fmt.Sprintf(`[{"product_id":%q,"enabled":true,"margin":-10}]`, canvas.ID)
	w := env.MultipartRequest(http.MethodPost, "/api/artworks", map[string]string{
		"title":    "Bad Margin",
		"products": selections,
	}, map[string]testutil.FilePart{
		"image": {Name: "art.png", Content: []byte("x")},
	}, token)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	require.Zero(t, env.Objects.Len())
}

func TestArtworkCreateRequiresImageAndTitle(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")
	token := env.Login(user.Email, "password-123").Tokens.AccessToken

	w := env.MultipartRequest(http.MethodPost, "/api/artworks", map[string]string{
		"title": "No Image",
	}, nil, token)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.MultipartRequest(http.MethodPost, "/api/artworks", nil, map[string]testutil.FilePart{
		"image": {Name: "art.png", Content: []byte("x")},
	}, token)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestArtworkListAndGetScopedToOwner(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.CreateUser("password-123")
	other := env.CreateUser("password-123")
	ownerToken := env.Login(owner.Email, "password-123").Tokens.AccessToken
	otherToken := env.Login(other.Email, "password-123").Tokens.AccessToken

	w := env.MultipartRequest(http.MethodPost, "/api/artworks", map[string]string{
		"title": "Private Piece",
	}, map[string]testutil.FilePart{
		"image": {Name: "p.png", Content: []byte("x")},
	}, ownerToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeArtwork(t, testutil.DecodeResponse(t, w).Data)

	w = env.Request(http.MethodGet, "/api/artworks", nil, ownerToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var listPayload struct {
		Artworks []artworkView `json:"artworks"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &listPayload)
	require.Len(t, listPayload.Artworks, 1)

	// Another user sees an empty list and cannot fetch the artwork.
	w = env.Request(http.MethodGet, "/api/artworks", nil, otherToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &listPayload)
	require.Empty(t, listPayload.Artworks)

	w = env.Request(http.MethodGet, "/api/artworks/"+created.ID, nil, otherToken)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestArtworkUpdateReplacesSelections(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")
	token := env.Login(user.Email, "password-123").Tokens.AccessToken

	canvas := seededProduct(t, env, "Canvas")
	postcard := seededProduct(t, env, "Postcard Set")

	selections := fmt.Sprintf(`[{"product_id":%q,"enabled":true,"margin":100}]`, canvas.ID)
	w := env.MultipartRequest(http.MethodPost, "/api/artworks", map[string]string{
		"title":    "Evolving Work",
		"products": selections,
	}, map[string]testutil.FilePart{
		"image": {Name: "e.png", Content: []byte("x")},
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeArtwork(t, testutil.DecodeResponse(t, w).Data)

	w = env.Request(http.MethodPatch, "/api/artworks/"+created.ID, map[string]any{
		"title": "Evolved Work",
		"products": []map[string]any{
			{"product_id": postcard.ID, "enabled": true, "margin": 50},
		},
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	updated := decodeArtwork(t, testutil.DecodeResponse(t, w).Data)
	require.Equal(t, "Evolved Work", updated.Title)
	require.Len(t, updated.Products, 1)
	require.Equal(t, postcard.ID, updated.Products[0].ProductID)
	require.InDelta(t, 300, updated.Products[0].FinalPrice, 0.001)
}

func TestArtworkReplaceImageSwapsStoredObject(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")
	token := env.Login(user.Email, "password-123").Tokens.AccessToken

	w := env.MultipartRequest(http.MethodPost, "/api/artworks", map[string]string{
		"title": "Reworked Piece",
	}, map[string]testutil.FilePart{
		"image": {Name: "draft.png", Content: []byte("first-draft")},
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeArtwork(t, testutil.DecodeResponse(t, w).Data)

	w = env.MultipartRequest(http.MethodPost, "/api/artworks/"+created.ID+"/image", nil, map[string]testutil.FilePart{
		"image": {Name: "final.jpg", Content: []byte("final-version")},
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	replaced := decodeArtwork(t, testutil.DecodeResponse(t, w).Data)
	require.NotEqual(t, created.ImagePath, replaced.ImagePath)
	require.Equal(t, ".jpg", replaced.ImagePath[len(replaced.ImagePath)-4:])

	_, oldExists := env.Objects.Object("artworks", created.ImagePath)
	require.False(t, oldExists)
	content, newExists := env.Objects.Object("artworks", replaced.ImagePath)
	require.True(t, newExists)
	require.Equal(t, []byte("final-version"), content)
}

func TestArtworkDeleteRemovesImageAndRows(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")
	token := env.Login(user.Email, "password-123").Tokens.AccessToken

	w := env.MultipartRequest(http.MethodPost, "/api/artworks", map[string]string{
		"title": "Ephemeral",
	}, map[string]testutil.FilePart{
		"image": {Name: "g.png", Content: []byte("x")},
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeArtwork(t, testutil.DecodeResponse(t, w).Data)
	require.Equal(t, 1, env.Objects.Len())

	w = env.Request(http.MethodDelete, "/api/artworks/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Zero(t, env.Objects.Len())

	var count int64
	require.NoError(t, env.DB.Model(&models.Artwork{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestArtworkServingKeepsSignedURLWarmUntilDelete(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("password-123")
	token := env.Login(user.Email, "password-123").Tokens.AccessToken

	w := env.MultipartRequest(http.MethodPost, "/api/artworks", map[string]string{
		"title": "Warm Cache",
	}, map[string]testutil.FilePart{
		"image": {Name: "w.png", Content: []byte("x")},
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeArtwork(t, testutil.DecodeResponse(t, w).Data)

	require.True(t, env.Refresher.Tracking("artworks", created.ImagePath),
		"serving an artwork must register its image for renewal")

	w = env.Request(http.MethodDelete, "/api/artworks/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.False(t, env.Refresher.Tracking("artworks", created.ImagePath),
		"deleting an artwork must release the renewal watch")
}
