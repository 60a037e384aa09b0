package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/artisanhq/atelier/internal/api"
	"github.com/artisanhq/atelier/internal/app"
	"github.com/artisanhq/atelier/internal/app/maintenance"
	iauth "github.com/artisanhq/atelier/internal/auth"
	"github.com/artisanhq/atelier/internal/cache"
	"github.com/artisanhq/atelier/internal/database"
	"github.com/artisanhq/atelier/internal/monitoring"
	"github.com/artisanhq/atelier/internal/storage"
	"github.com/artisanhq/atelier/pkg/logger"
	"github.com/artisanhq/atelier/pkg/mail"
)

const bucketSetupTimeout = 30 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Store      cache.Store
	Objects    *storage.ObjectStore
	Signer     *storage.URLSigner
	Refresher  *storage.Refresher
	SessionSvc *iauth.SessionService
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, cache, object store, services
// and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Store = cache.NewDatabaseStore(stack.DB)

	stack.Objects, err = storage.New(cfg.Storage.ObjectStoreConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise object storage: %w", err)
	}

	bucketCtx, cancel := context.WithTimeout(ctx, bucketSetupTimeout)
	defer cancel()
	for _, bucket := range []string{cfg.Storage.ArtworkBucket, cfg.Storage.AvatarBucket} {
		if err := stack.Objects.EnsureBucket(bucketCtx, bucket); err != nil {
			return nil, fmt.Errorf("ensure bucket %q: %w", bucket, err)
		}
	}

	stack.Signer = storage.NewURLSigner(stack.Objects, stack.Store,
		storage.WithSignTTL(cfg.Storage.SignTTL))
	stack.Refresher = storage.NewRefresher(stack.Signer)

	jwtService, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.SessionSvc, err = iauth.NewSessionService(stack.DB, jwtService, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  cfg.Email.SMTP.Enabled,
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
		UseTLS:   cfg.Email.SMTP.UseTLS,
		Timeout:  cfg.Email.SMTP.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, stack.SessionSvc)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	health := monitoring.NewHealthManager()
	health.RegisterReadiness(monitoring.DatabaseCheck(stack.DB, 0))
	health.RegisterReadiness(monitoring.CacheCheck(stack.Store, 0))
	health.RegisterReadiness(monitoring.BucketsCheck(stack.Objects, 0,
		cfg.Storage.ArtworkBucket, cfg.Storage.AvatarBucket))

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:        stack.DB,
		Config:    cfg,
		JWT:       jwtService,
		Sessions:  stack.SessionSvc,
		Store:     stack.Store,
		Objects:   stack.Objects,
		Signer:    stack.Signer,
		Mailer:    mailer,
		Refresher: stack.Refresher,
		Health:    health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown releases resources owned by the stack in reverse start order.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s.Refresher != nil {
		s.Refresher.Close()
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	closeDatabase(s.DB, log)
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("obtain database handle for close", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
