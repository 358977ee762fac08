package main

import (
	"context"
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
	"go.uber.org/zap"

	_ "github.com/uclouvain/osis-score-encoding/api/swagger"
	"github.com/uclouvain/osis-score-encoding/internal/handler"
	internalmiddleware "github.com/uclouvain/osis-score-encoding/internal/middleware"
	"github.com/uclouvain/osis-score-encoding/internal/models"
	"github.com/uclouvain/osis-score-encoding/internal/queue"
	"github.com/uclouvain/osis-score-encoding/internal/repository"
	"github.com/uclouvain/osis-score-encoding/internal/service"
	"github.com/uclouvain/osis-score-encoding/pkg/cache"
	"github.com/uclouvain/osis-score-encoding/pkg/config"
	"github.com/uclouvain/osis-score-encoding/pkg/database"
	"github.com/uclouvain/osis-score-encoding/pkg/jobs"
	"github.com/uclouvain/osis-score-encoding/pkg/logger"
	"github.com/uclouvain/osis-score-encoding/pkg/mailer"
	corsmiddleware "github.com/uclouvain/osis-score-encoding/pkg/middleware/cors"
	reqidmiddleware "github.com/uclouvain/osis-score-encoding/pkg/middleware/requestid"
)

// @title OSIS Score Encoding API
// @version 1.0.0
// @description Score encoding and deliberation subsystem
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("postgres connection failed", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	// Repositories.
	sessionExamRepo := repository.NewSessionExamRepository(db)
	enrolmentRepo := repository.NewEnrolmentRepository(db)
	attributionRepo := repository.NewAttributionRepository(db)
	offerRepo := repository.NewOfferRepository(db)
	userRepo := repository.NewUserRepository(db)
	fieldRepo := repository.NewFieldReferenceRepository(db)

	// Outbound mail rides on the in-memory job queue.
	var outboundMailer mailer.Mailer
	if cfg.Mailer.Driver == "sendgrid" {
		outboundMailer = mailer.NewSendgrid(cfg.Mailer)
	} else {
		outboundMailer = mailer.NewConsole(logr)
	}
	mailQueue := jobs.NewQueue("mail", service.MailHandler(outboundMailer, logr), jobs.QueueConfig{
		Workers: cfg.Mailer.Workers,
		Logger:  logr,
	})
	mailQueue.Start(ctx)
	defer mailQueue.Stop()

	// Services.
	metrics := service.NewMetricsService()
	calendar := service.NewCalendarService(sessionExamRepo, cfg.Now(), logr)
	policy := service.NewPermissionPolicy()
	notifications := service.NewNotificationService(mailQueue, cfg.Mailer.SubjectPrefix, logr).
		WithToggles(cfg.Notify.TutorSubmissionEnabled, cfg.Notify.ManagerCompletedEnabled)
	encodings := service.NewEncodingService(enrolmentRepo, attributionRepo, calendar, policy, validate, logr).
		WithNotifier(notifications)
	submissions := service.NewSubmissionService(enrolmentRepo, attributionRepo, calendar, notifications, validate, logr)
	uploads := service.NewUploadService(enrolmentRepo, encodings, calendar, logr)
	scoreSheets := service.NewScoreSheetService(enrolmentRepo, attributionRepo, offerRepo, calendar, logr)
	addresses := service.NewAddressService(offerRepo, attributionRepo, fieldRepo, calendar, validate, logr)
	auth := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "osis-score-encoding",
	})

	// Score sheet bridge for the legacy PDF pipeline.
	bridge := queue.NewBridge(redisClient, scoreSheets, metrics, queue.BridgeConfig{
		RequestQueue:    cfg.Queues.ScoreEncodingPDFRequest,
		ConsumerTimeout: cfg.Queues.ConsumerTimeout,
		BackoffMin:      cfg.Queues.RestartBackoffMin,
		BackoffMax:      cfg.Queues.RestartBackoffMax,
	}, logr)
	go bridge.Supervise(ctx)

	// Handlers.
	authHandler := handler.NewAuthHandler(auth)
	sessionHandler := handler.NewSessionHandler(calendar)
	encodingHandler := handler.NewEncodingHandler(encodings, submissions, uploads, metrics)
	scoreSheetHandler := handler.NewScoreSheetHandler(scoreSheets, metrics)
	addressHandler := handler.NewAddressHandler(addresses)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/refresh", authHandler.Refresh)

		secured := api.Group("")
		secured.Use(internalmiddleware.JWT(auth))
		secured.POST("/auth/logout", authHandler.Logout)
		secured.GET("/auth/me", authHandler.Me)

		encoderRoles := internalmiddleware.RequireRoles(models.RoleTutor, models.RoleProgramManager, models.RoleAdmin)
		managerRoles := internalmiddleware.RequireRoles(models.RoleProgramManager, models.RoleAdmin)

		secured.GET("/sessions", encoderRoles, sessionHandler.Calendar)
		secured.GET("/sessions/current", encoderRoles, sessionHandler.Current)

		secured.GET("/encodings", encoderRoles, encodingHandler.List)
		secured.POST("/encodings", encoderRoles, encodingHandler.Encode)
		secured.GET("/encodings/progress", encoderRoles, encodingHandler.Progress)
		secured.POST("/encodings/submit", encoderRoles, encodingHandler.Submit)
		secured.POST("/encodings/double", managerRoles, encodingHandler.Double)
		secured.POST("/encodings/upload", encoderRoles, encodingHandler.Upload)
		secured.GET("/encodings/template", encoderRoles, encodingHandler.Template)

		secured.GET("/score-sheets", encoderRoles, scoreSheetHandler.List)
		secured.GET("/score-sheets/pdf", encoderRoles, scoreSheetHandler.PDF)

		secured.GET("/offers/:acronym/score-sheet-address", managerRoles, addressHandler.Get)
		secured.PUT("/offers/:acronym/score-sheet-address", managerRoles, addressHandler.Update)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
}
