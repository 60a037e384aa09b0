package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/artisanhq/atelier/internal/middleware"
	"github.com/artisanhq/atelier/internal/models"
	"github.com/artisanhq/atelier/internal/services"
	"github.com/artisanhq/atelier/internal/storage"
	"github.com/artisanhq/atelier/pkg/errors"
	"github.com/artisanhq/atelier/pkg/response"
)

// maxArtworkSize bounds artwork image uploads to 20 MiB.
const maxArtworkSize = 20 << 20

// ArtworkHandler exposes artwork upload and management for sellers.
type ArtworkHandler struct {
	artworks  *services.ArtworkService
	signer    *storage.URLSigner
	refresher *storage.Refresher
}

func NewArtworkHandler(artworks *services.ArtworkService, signer *storage.URLSigner, refresher *storage.Refresher) *ArtworkHandler {
	return &ArtworkHandler{artworks: artworks, signer: signer, refresher: refresher}
}

type artworkProductRequest struct {
	ProductID string  `json:"product_id" validate:"required"`
	Enabled   bool    `json:"enabled"`
	Margin    float64 `json:"margin"`
}

// GET /api/artworks
func (h *ArtworkHandler) List(c *gin.Context) {
	ctx := requestContext(c)

	artworks, err := h.artworks.List(ctx, c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]gin.H, 0, len(artworks))
	for i := range artworks {
		items = append(items, h.artworkPayload(c, &artworks[i]))
	}

	response.Success(c, http.StatusOK, gin.H{"artworks": items})
}

// GET /api/artworks/:id
func (h *ArtworkHandler) Get(c *gin.Context) {
	artwork, err := h.artworks.GetByID(requestContext(c), c.GetString(middleware.CtxUserIDKey), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"artwork": h.artworkPayload(c, artwork)})
}

// POST /api/artworks
//
// Accepts a multipart form: "image" file part, "title" and "description"
// fields, and an optional "products" field carrying a JSON array of
// {product_id, enabled, margin} selections.
func (h *ArtworkHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	header, err := c.FormFile("image")
	if err != nil {
		response.Error(c, errors.NewBadRequest("image file is required"))
		return
	}
	if header.Size > maxArtworkSize {
		response.Error(c, errors.NewBadRequest("image must be 20MB or smaller"))
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		response.Error(c, errors.NewBadRequest("title is required"))
		return
	}

	products, ok := parseProductSelections(c)
	if !ok {
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}
	defer file.Close()

	artwork, err := h.artworks.Create(requestContext(c), userID, services.CreateArtworkInput{
		Title:       title,
		Description: strings.TrimSpace(c.PostForm("description")),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
		Products:    products,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"artwork": h.artworkPayload(c, artwork)})
}

type updateArtworkRequest struct {
	Title       *string                 `json:"title"`
	Description *string                 `json:"description"`
	Products    []artworkProductRequest `json:"products"`
}

// PATCH /api/artworks/:id
func (h *ArtworkHandler) Update(c *gin.Context) {
	var req updateArtworkRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.UpdateArtworkInput{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Products != nil {
		input.Products = make([]services.ArtworkProductInput, 0, len(req.Products))
		for _, p := range req.Products {
			input.Products = append(input.Products, services.ArtworkProductInput{
				ProductID: p.ProductID,
				Enabled:   p.Enabled,
				Margin:    p.Margin,
			})
		}
	}

	artwork, err := h.artworks.Update(requestContext(c), c.GetString(middleware.CtxUserIDKey), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"artwork": h.artworkPayload(c, artwork)})
}

// POST /api/artworks/:id/image
//
// Replaces the artwork image with the uploaded "image" file part. The old
// object is removed once the artwork points at the new one.
func (h *ArtworkHandler) ReplaceImage(c *gin.Context) {
	header, err := c.FormFile("image")
	if err != nil {
		response.Error(c, errors.NewBadRequest("image file is required"))
		return
	}
	if header.Size > maxArtworkSize {
		response.Error(c, errors.NewBadRequest("image must be 20MB or smaller"))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}
	defer file.Close()

	userID := c.GetString(middleware.CtxUserIDKey)
	previous, err := h.artworks.GetByID(requestContext(c), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	artwork, err := h.artworks.ReplaceImage(requestContext(c), userID, c.Param("id"), services.ReplaceImageInput{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if previous.ImagePath != "" && previous.ImagePath != artwork.ImagePath {
		h.refresher.Untrack(h.artworks.Bucket(), previous.ImagePath)
	}

	response.Success(c, http.StatusOK, gin.H{"artwork": h.artworkPayload(c, artwork)})
}

// DELETE /api/artworks/:id
func (h *ArtworkHandler) Delete(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	artwork, err := h.artworks.GetByID(requestContext(c), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.artworks.Delete(requestContext(c), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	if artwork.ImagePath != "" {
		h.refresher.Untrack(h.artworks.Bucket(), artwork.ImagePath)
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// artworkPayload shapes one artwork for API responses, attaching a signed
// image URL and the computed sale price for each enabled pairing.
func (h *ArtworkHandler) artworkPayload(c *gin.Context, artwork *models.Artwork) gin.H {
	ctx := requestContext(c)

	payload := gin.H{
		"id":                 artwork.ID,
		"title":              artwork.Title,
		"description":        artwork.Description,
		"original_file_name": artwork.OriginalFileName,
		"image_path":         artwork.ImagePath,
		"created_at":         artwork.CreatedAt,
		"updated_at":         artwork.UpdatedAt,
	}

	if artwork.ImagePath != "" {
		if signed, err := h.signer.Get(ctx, h.artworks.Bucket(), artwork.ImagePath); err == nil {
			payload["image_url"] = signed.URL
			payload["image_url_expires_at"] = signed.ExpiresAt
			h.refresher.Track(h.artworks.Bucket(), artwork.ImagePath)
		}
	}

	pairings := make([]gin.H, 0, len(artwork.Products))
	for _, link := range artwork.Products {
		item := gin.H{
			"product_id": link.ProductID,
			"enabled":    link.Enabled,
			"margin":     link.Margin,
		}
		if link.Product != nil {
			item["product"] = link.Product
			item["final_price"] = link.FinalPrice(link.Product.BasePrice)
		}
		pairings = append(pairings, item)
	}
	payload["products"] = pairings

	return payload
}

// parseProductSelections decodes the optional "products" multipart field.
func parseProductSelections(c *gin.Context) ([]services.ArtworkProductInput, bool) {
	raw := strings.TrimSpace(c.PostForm("products"))
	if raw == "" {
		return nil, true
	}

	var selections []artworkProductRequest
	if err := json.Unmarshal([]byte(raw), &selections); err != nil {
		response.Error(c, errors.NewBadRequest("products must be a JSON array"))
		return nil, false
	}

	inputs := make([]services.ArtworkProductInput, 0, len(selections))
	for _, p := range selections {
		if strings.TrimSpace(p.ProductID) == "" {
			response.Error(c, errors.NewBadRequest("product_id is required for each product selection"))
			return nil, false
		}
		inputs = append(inputs, services.ArtworkProductInput{
			ProductID: p.ProductID,
			Enabled:   p.Enabled,
			Margin:    p.Margin,
		})
	}
	return inputs, true
}
