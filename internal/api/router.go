package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/artisanhq/atelier/internal/app"
	iauth "github.com/artisanhq/atelier/internal/auth"
	"github.com/artisanhq/atelier/internal/cache"
	"github.com/artisanhq/atelier/internal/handlers"
	"github.com/artisanhq/atelier/internal/middleware"
	"github.com/artisanhq/atelier/internal/monitoring"
	"github.com/artisanhq/atelier/internal/services"
	"github.com/artisanhq/atelier/internal/storage"
	"github.com/artisanhq/atelier/pkg/mail"
)

// Dependencies carries the shared infrastructure the router wires handlers to.
type Dependencies struct {
	DB       *gorm.DB
	Config   *app.Config
	JWT      *iauth.JWTService
	Sessions *iauth.SessionService
	Store    cache.Store
	Objects  services.ObjectStorage
	Signer   *storage.URLSigner
	Mailer   mail.Mailer

	// Refresher is optional; when nil one is built over Signer. Served
	// media URLs are tracked on it so renewals land in the cache ahead of
	// expiry.
	Refresher *storage.Refresher

	// Health is optional; when nil the probe endpoints report success with
	// no checks.
	Health *monitoring.HealthManager
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("cache store must be provided")
	}
	if deps.Objects == nil {
		return nil, fmt.Errorf("object storage must be provided")
	}
	if deps.Signer == nil {
		return nil, fmt.Errorf("url signer must be provided")
	}
	if deps.Mailer == nil {
		return nil, fmt.Errorf("mailer must be provided")
	}

	users, err := services.NewUserService(deps.DB)
	if err != nil {
		return nil, err
	}
	invites, err := services.NewInviteService(deps.DB, deps.Mailer,
		services.WithInviteBaseURL(deps.Config.Invites.BaseURL))
	if err != nil {
		return nil, err
	}
	verifications, err := services.NewEmailVerificationService(deps.DB, deps.Mailer,
		services.WithVerificationBaseURL(deps.Config.Invites.BaseURL+"/verify-email"))
	if err != nil {
		return nil, err
	}
	profiles, err := services.NewProfileService(deps.DB, deps.Store)
	if err != nil {
		return nil, err
	}
	products, err := services.NewProductService(deps.DB, deps.Store)
	if err != nil {
		return nil, err
	}
	artworks, err := services.NewArtworkService(deps.DB, deps.Objects, deps.Store,
		services.WithArtworkBucket(deps.Config.Storage.ArtworkBucket))
	if err != nil {
		return nil, err
	}
	provision, err := services.NewProvisionService(deps.DB)
	if err != nil {
		return nil, err
	}

	refresher := deps.Refresher
	if refresher == nil {
		refresher = storage.NewRefresher(deps.Signer)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	// Basic rate limiting: 100 requests/minute per IP+path, counted in the
	// shared cache store so limits hold across instances.
	r.Use(middleware.RateLimitWithStore(middleware.NewDatabaseRateStore(deps.Store), 100, time.Minute))

	// Health endpoints (public)
	health := deps.Health
	if health == nil {
		health = monitoring.NewHealthManager()
	}
	healthHandler := handlers.NewHealthHandler(health)
	r.GET("/health", handlers.Health())
	r.GET("/health/live", healthHandler.Live)
	r.GET("/health/ready", healthHandler.Ready)

	authHandler := handlers.NewAuthHandler(users, invites, verifications, deps.Sessions)
	inviteHandler := handlers.NewInviteHandler(invites)
	profileHandler := handlers.NewProfileHandler(profiles, deps.Objects, deps.Signer, refresher)
	productHandler := handlers.NewProductHandler(products)
	artworkHandler := handlers.NewArtworkHandler(artworks, deps.Signer, refresher)
	provisionHandler := handlers.NewProvisionHandler(provision, deps.Config.Provision.Token)
	flowHandler := handlers.NewFlowHandler(profiles)

	// Public routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/verify-email", authHandler.VerifyEmail)
		auth.POST("/resend-verification", authHandler.ResendVerification)
	}

	r.POST("/api/invites/pre-signup", inviteHandler.PreSignup)
	r.POST("/api/invites/consume", inviteHandler.Consume)
	r.POST("/api/provision-admin", provisionHandler.ProvisionAdmin)

	// Route resolution adapts to the caller's auth state, so it only parses
	// credentials when present.
	r.GET("/api/flow/route", middleware.OptionalAuth(deps.JWT), flowHandler.Route)

	// Protected routes
	requireAuth := middleware.Auth(deps.JWT)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/logout", authHandler.Logout)

	profile := api.Group("/profile")
	{
		profile.GET("", profileHandler.Get)
		profile.PATCH("", profileHandler.Update)
		profile.GET("/summary", profileHandler.Summary)
		profile.POST("/avatar", profileHandler.UploadAvatar)
		profile.POST("/onboarding/complete", profileHandler.CompleteOnboarding)
	}

	artworkRoutes := api.Group("/artworks")
	{
		artworkRoutes.GET("", artworkHandler.List)
		artworkRoutes.POST("", artworkHandler.Create)
		artworkRoutes.GET("/:id", artworkHandler.Get)
		artworkRoutes.PATCH("/:id", artworkHandler.Update)
		artworkRoutes.POST("/:id/image", artworkHandler.ReplaceImage)
		artworkRoutes.DELETE("/:id", artworkHandler.Delete)
	}

	api.GET("/products", productHandler.List)

	// Admin routes
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.POST("/invites", inviteHandler.Send)
		admin.GET("/invites", inviteHandler.List)
		admin.GET("/invites/attempts", inviteHandler.ListAttempts)
		admin.POST("/products", productHandler.Create)
		admin.PATCH("/products/:id", productHandler.UpdateBasePrice)
	}

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Everything else is the embedded frontend.
	spa, err := spaFallback()
	if err != nil {
		return nil, err
	}
	r.NoRoute(spa)

	return r, nil
}
