package handlers

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/artisanhq/atelier/internal/middleware"
	"github.com/artisanhq/atelier/internal/services"
	"github.com/artisanhq/atelier/internal/storage"
	"github.com/artisanhq/atelier/pkg/errors"
	"github.com/artisanhq/atelier/pkg/response"
)

// DefaultAvatarBucket is the object storage bucket holding profile avatars.
const DefaultAvatarBucket = "avatars"

// maxAvatarSize bounds avatar uploads to 5 MiB.
const maxAvatarSize = 5 << 20

// ProfileHandler exposes the seller profile: read, update, avatar upload
// and the onboarding completion step.
type ProfileHandler struct {
	profiles  *services.ProfileService
	objects   services.ObjectStorage
	signer    *storage.URLSigner
	refresher *storage.Refresher
	bucket    string
}

func NewProfileHandler(profiles *services.ProfileService, objects services.ObjectStorage, signer *storage.URLSigner, refresher *storage.Refresher) *ProfileHandler {
	return &ProfileHandler{
		profiles:  profiles,
		objects:   objects,
		signer:    signer,
		refresher: refresher,
		bucket:    DefaultAvatarBucket,
	}
}

// GET /api/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	ctx := requestContext(c)

	profile, err := h.profiles.Get(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{"profile": profile}
	if profile.AvatarPath != "" {
		if signed, err := h.signer.Get(ctx, h.bucket, profile.AvatarPath); err == nil {
			payload["avatar_url"] = signed.URL
			h.refresher.Track(h.bucket, profile.AvatarPath)
		}
	}

	response.Success(c, http.StatusOK, payload)
}

// GET /api/profile/summary
func (h *ProfileHandler) Summary(c *gin.Context) {
	summary, err := h.profiles.Summary(requestContext(c), c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

type updateProfileRequest struct {
	Name           *string `json:"name"`
	Phone          *string `json:"phone"`
	Location       *string `json:"location"`
	Pronoun        *string `json:"pronoun"`
	Bio            *string `json:"bio"`
	AddressLine1   *string `json:"address_line1"`
	AddressLine2   *string `json:"address_line2"`
	AddressPincode *string `json:"address_pincode"`
}

// PATCH /api/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	profile, err := h.profiles.Update(requestContext(c), c.GetString(middleware.CtxUserIDKey), services.UpdateProfileInput{
		Name:           req.Name,
		Phone:          req.Phone,
		Location:       req.Location,
		Pronoun:        req.Pronoun,
		Bio:            req.Bio,
		AddressLine1:   req.AddressLine1,
		AddressLine2:   req.AddressLine2,
		AddressPincode: req.AddressPincode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"profile": profile})
}

// POST /api/profile/avatar
//
// Accepts a multipart form with an "avatar" file part. The previous avatar
// object, if any, is overwritten in place and its signed URL invalidated.
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	ctx := requestContext(c)

	header, err := c.FormFile("avatar")
	if err != nil {
		response.Error(c, errors.NewBadRequest("avatar file is required"))
		return
	}
	if header.Size > maxAvatarSize {
		response.Error(c, errors.NewBadRequest("avatar must be 5MB or smaller"))
		return
	}

	ext := strings.ToLower(path.Ext(header.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp":
	default:
		response.Error(c, errors.NewBadRequest("avatar must be a png, jpg or webp image"))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}
	defer file.Close()

	objectPath := fmt.Sprintf("users/%s/avatar%s", userID, ext)
	contentType := header.Header.Get("Content-Type")

	previous, err := h.profiles.Get(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.objects.Upload(ctx, h.bucket, objectPath, file, header.Size, contentType); err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	if err := h.profiles.SetAvatar(ctx, userID, objectPath); err != nil {
		response.Error(c, err)
		return
	}
	if previous.AvatarPath != "" && previous.AvatarPath != objectPath {
		h.refresher.Untrack(h.bucket, previous.AvatarPath)
	}

	// The object changed under the cached URL; force a fresh one.
	signed, err := h.signer.Refresh(ctx, h.bucket, objectPath)
	if err != nil {
		response.Success(c, http.StatusOK, gin.H{"avatar_path": objectPath})
		return
	}
	h.refresher.Track(h.bucket, objectPath)

	response.Success(c, http.StatusOK, gin.H{
		"avatar_path": objectPath,
		"avatar_url":  signed.URL,
	})
}

// POST /api/profile/onboarding/complete
func (h *ProfileHandler) CompleteOnboarding(c *gin.Context) {
	if err := h.profiles.CompleteOnboarding(requestContext(c), c.GetString(middleware.CtxUserIDKey)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"onboarding_step2_done": true})
}
