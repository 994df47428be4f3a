package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifeline/internal/config"
	"lifeline/internal/handlers"
	"lifeline/internal/middleware"
	"lifeline/internal/repositories/mongodb"
	"lifeline/internal/services"
	"lifeline/internal/utils"
	"lifeline/pkg/cache"
	"lifeline/pkg/database"
	"lifeline/pkg/logger"
	"lifeline/pkg/mailer"
	"lifeline/pkg/maps"
	"lifeline/pkg/push"
	"lifeline/pkg/sms"
	"lifeline/pkg/storage"
	"lifeline/pkg/websocket"
	"lifeline/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.App.LogLevel),
		Format: cfg.App.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	// Mongo
	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		log.Fatalf("failed to connect to MongoDB: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(ctx); err != nil {
		cancel()
		log.Fatalf("failed to ensure indexes: %v", err)
	}
	cancel()

	// Redis, optional: repositories degrade to uncached reads
	var redisCache *cache.RedisCache
	redisCache, err = cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.WithError(err).Warn("redis unavailable, running without cache")
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	var repoCache mongodb.CacheService
	if redisCache != nil {
		repoCache = redisCache
	}

	// Geocoding
	var geocodeProvider maps.GeocodeProvider
	if cfg.Maps.GoogleAPIKey != "" {
		provider, err := maps.NewGoogleMapsProvider(cfg.Maps.GoogleAPIKey)
		if err != nil {
			log.WithError(err).Warn("google maps client init failed, addresses will use the fallback")
		} else {
			geocodeProvider = provider
		}
	}
	geocoder := maps.NewGateway(geocodeProvider, cfg.Maps.RequestTimeout, utils.AddressUnavailable)

	// Push, SMS and mail, all optional
	pushProvider := buildPushProvider(cfg, log)
	smsProvider := buildSMSProvider(cfg, log)

	var mailProvider mailer.MailProvider
	if cfg.SMTP.Username != "" {
		mailProvider = mailer.NewSMTPMailer(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Username,
			cfg.SMTP.Password,
			cfg.SMTP.FromEmail,
			cfg.SMTP.FromName,
		)
	}

	// Attachment storage
	storageProvider, err := buildStorageProvider(cfg)
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}

	// Websocket hub
	wsHandler := websocket.NewHandler(cfg.Security.JWTSecret, log)

	// Repositories
	alertRepo := mongodb.NewAlertRepository(db.Database, repoCache)
	conversationRepo := mongodb.NewConversationRepository(db.Database, repoCache)
	messageRepo := mongodb.NewMessageRepository(db.Database)
	userRepo := mongodb.NewUserRepository(db.Database, repoCache)

	// Services
	alertService := services.NewAlertService(alertRepo, userRepo, geocoder, wsHandler, pushProvider, smsProvider, mailProvider, log)
	conversationService := services.NewConversationService(conversationRepo, messageRepo, wsHandler, log)
	mediaService := services.NewMediaService(storageProvider, log)
	userService := services.NewUserService(userRepo, log)

	// Handlers
	alertHandler := handlers.NewAlertHandler(alertService)
	conversationHandler := handlers.NewConversationHandler(conversationService)
	mediaHandler := handlers.NewMediaHandler(mediaService)
	userHandler := handlers.NewUserHandler(userService, cfg.Security.JWTSecret, cfg.Security.JWTAccessTokenTTL, cfg.Security.JWTRefreshTokenTTL)

	// Router
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))

	v1 := router.Group("/api/v1")
	{
		routes.SetupAlertRoutes(v1, alertHandler, cfg.Security.JWTSecret)
		routes.SetupConversationRoutes(v1, conversationHandler, cfg.Security.JWTSecret)
		routes.SetupMediaRoutes(v1, mediaHandler, cfg.Security.JWTSecret)
		routes.SetupUserRoutes(v1, userHandler, cfg.Security.JWTSecret)
	}

	router.GET("/ws", wsHandler.HandleWebSocket)

	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK
		if err := db.Ping(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": cfg.App.Version,
		})
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.Infof("starting server on port %d", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("forced shutdown: %v", err)
	}
}

func buildPushProvider(cfg *config.Config, log *logger.Logger) push.PushProvider {
	switch cfg.Push.Provider {
	case "fcm":
		if cfg.Push.FCM.Credentials == "" {
			log.Warn("FCM credentials not configured, push disabled")
			return nil
		}
		provider, err := push.NewFCMProvider(cfg.Push.FCM.Credentials)
		if err != nil {
			log.WithError(err).Warn("FCM init failed, push disabled")
			return nil
		}
		return provider
	case "apns":
		provider, err := push.NewAPNSProvider(
			cfg.Push.APNS.KeyFile,
			cfg.Push.APNS.KeyID,
			cfg.Push.APNS.TeamID,
			cfg.Push.APNS.BundleID,
			cfg.Push.APNS.Production,
		)
		if err != nil {
			log.WithError(err).Warn("APNs init failed, push disabled")
			return nil
		}
		return provider
	default:
		return nil
	}
}

func buildSMSProvider(cfg *config.Config, log *logger.Logger) sms.SMSProvider {
	switch cfg.SMS.Provider {
	case "twilio":
		if cfg.SMS.Twilio.AccountSID == "" {
			log.Warn("twilio not configured, SMS disabled")
			return nil
		}
		return sms.NewTwilioProvider(cfg.SMS.Twilio.AccountSID, cfg.SMS.Twilio.AuthToken, cfg.SMS.Twilio.FromNumber)
	case "aws":
		provider, err := sms.NewAWSSNSProvider(cfg.SMS.AWS.Region)
		if err != nil {
			log.WithError(err).Warn("SNS init failed, SMS disabled")
			return nil
		}
		return provider
	default:
		return nil
	}
}

func buildStorageProvider(cfg *config.Config) (storage.StorageProvider, error) {
	switch cfg.Storage.Provider {
	case "aws":
		return storage.NewAWSS3Storage(cfg.Storage.AWS.Region, cfg.Storage.AWS.Bucket, cfg.Storage.AWS.CDNDomain)
	case "gcp":
		return storage.NewGCPStorage(cfg.Storage.GCP.Bucket, cfg.Storage.GCP.CredentialsFile, cfg.Storage.GCP.CDNDomain)
	default:
		return storage.NewLocalStorage(cfg.Storage.Local.BasePath, cfg.Storage.Local.BaseURL)
	}
}
