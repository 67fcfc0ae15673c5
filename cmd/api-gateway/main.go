package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/faculty-ledger-api/api/swagger"
	"github.com/noah-isme/faculty-ledger-api/internal/handler"
	"github.com/noah-isme/faculty-ledger-api/internal/middleware"
	"github.com/noah-isme/faculty-ledger-api/internal/models"
	"github.com/noah-isme/faculty-ledger-api/internal/repository"
	"github.com/noah-isme/faculty-ledger-api/internal/service"
	"github.com/noah-isme/faculty-ledger-api/pkg/cache"
	"github.com/noah-isme/faculty-ledger-api/pkg/config"
	"github.com/noah-isme/faculty-ledger-api/pkg/database"
	"github.com/noah-isme/faculty-ledger-api/pkg/jobs"
	"github.com/noah-isme/faculty-ledger-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/faculty-ledger-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/faculty-ledger-api/pkg/middleware/requestid"
	"github.com/noah-isme/faculty-ledger-api/pkg/notify"
	"github.com/noah-isme/faculty-ledger-api/pkg/storage"
)

// @title Faculty Credit & Appeal Ledger API
// @version 1.0.0
// @description Credit record review, appeals and ledger aggregation
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Ledger.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, ledger cache disabled", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Ledger.CacheTTL, logr, cacheRepo != nil)

	validate := validator.New()
	userRepo := repository.NewUserRepository(db)
	creditRepo := repository.NewCreditRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "faculty-ledger-api",
	})

	var notifSvc *service.NotificationService
	if cfg.Notifications.Enabled {
		mailer := notify.NewMailer(notify.SMTPConfig{
			Host:          cfg.Notifications.SMTPHost,
			Port:          cfg.Notifications.SMTPPort,
			Username:      cfg.Notifications.SMTPUser,
			Password:      cfg.Notifications.SMTPPassword,
			From:          cfg.Notifications.SMTPFrom,
			SkipTLSVerify: cfg.Notifications.SkipTLSVerify,
		})
		notifSvc = service.NewNotificationService(userRepo, mailer, jobs.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			MaxRetries: cfg.Notifications.MaxRetries,
			RetryDelay: cfg.Notifications.RetryDelay,
		}, logr)
		notifSvc.Start(ctx)
		defer notifSvc.Stop()
	}

	ledgerSvc := service.NewLedgerService(creditRepo, cacheSvc, cfg.Ledger.CacheTTL, logr)
	creditSvc := service.NewCreditService(creditRepo, notifSvc, ledgerSvc, validate, logr)
	appealSvc := service.NewAppealService(creditRepo, notifSvc, ledgerSvc, service.AppealPolicyConfig{
		Window:     cfg.Ledger.AppealWindow,
		MaxAppeals: cfg.Ledger.MaxAppeals,
	}, logr)

	store, err := storage.NewLocalStorage(cfg.Statements.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init statement storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Statements.SignedURLSecret, cfg.Statements.SignedURLTTL)
	stmtSvc := service.NewStatementService(creditRepo, store, signer, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	creditHandler := handler.NewCreditHandler(creditSvc)
	appealHandler := handler.NewAppealHandler(appealSvc)
	ledgerHandler := handler.NewLedgerHandler(ledgerSvc, stmtSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)

		authed := auth.Group("")
		authed.Use(middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	credits := api.Group("/credits")
	credits.Use(middleware.JWT(authSvc))
	{
		credits.POST("",
			middleware.Audit(userRepo, models.AuditActionCreditCreate, "credit_record"),
			creditHandler.Create)
		credits.GET("", creditHandler.List)
		credits.GET("/:id", creditHandler.Get)
		credits.POST("/:id/decision",
			middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionCreditDecide, "credit_record"),
			creditHandler.Decide)
		credits.POST("/:id/appeal",
			middleware.RequireRoles(models.RoleFaculty),
			middleware.Audit(userRepo, models.AuditActionAppealCreate, "appeal"),
			appealHandler.Create)
	}

	appeals := api.Group("/appeals")
	appeals.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		appeals.POST("/:id/decision",
			middleware.Audit(userRepo, models.AuditActionAppealDecide, "appeal"),
			appealHandler.Decide)
	}

	ledger := api.Group("/ledger")
	ledger.Use(middleware.JWT(authSvc), middleware.WithResponseMeta())
	{
		ledger.GET("/:facultyId/balance", ledgerHandler.Balance)
		ledger.GET("/:facultyId/years/:year", ledgerHandler.YearStats)
		ledger.GET("/:facultyId/series", ledgerHandler.Series)
		ledger.GET("/:facultyId/statement", ledgerHandler.Statement)
	}

	api.GET("/statements/download", ledgerHandler.Download)

	admin := api.Group("/admin")
	admin.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/metrics", metricsHandler.Snapshot)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
