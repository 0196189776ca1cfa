package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/PabloG6/medscan-intellibus/internal/config"
	"github.com/PabloG6/medscan-intellibus/internal/db"
	"github.com/PabloG6/medscan-intellibus/internal/handlers"
	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/middleware"
	"github.com/PabloG6/medscan-intellibus/internal/repos"
	"github.com/PabloG6/medscan-intellibus/internal/server"
	"github.com/PabloG6/medscan-intellibus/internal/services"
	"github.com/PabloG6/medscan-intellibus/internal/socket"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Port = port
		}
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "listen port, overrides PORT")
}

func serve(cfg *config.Config) error {
	// Logger Setup
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Sync()
	if cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database Setup
	log.Info("Setting up database", "driver", cfg.DBDriver)
	store, err := db.Open(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.AutoMigrateAll(); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	theDB := store.DB()

	// Repositories Setup
	userRepo := repos.NewUserRepo(theDB, log)
	userTokenRepo := repos.NewUserTokenRepo(theDB, log)
	chatRepo := repos.NewChatRepo(theDB, log)
	chatMessageRepo := repos.NewChatMessageRepo(theDB, log)

	// Websocket Setup
	wsHub := socket.NewHub(log)
	var redisPubSub *socket.RedisPubSub
	if cfg.RedisEnabled() {
		redisPubSub, err = socket.NewRedisPubSub(log, cfg.RedisAddress, cfg.RedisPassword, cfg.RedisChannel)
		if err != nil {
			log.Warn("Failed to init redis pubsub, continuing with local fan-out only", "error", err)
			redisPubSub = nil
		} else {
			wsHub.SetRedisPubSub(redisPubSub)
		}
	}

	// Services Setup
	var bucketService services.BucketService
	if cfg.BucketEnabled() {
		bs, err := services.NewBucketService(ctx, log, cfg.GCSBucketName, cfg.GCSCredentialsFile)
		if err != nil {
			log.Warn("Could not init BucketService", "error", err)
		} else {
			bucketService = bs
			defer bs.Close()
		}
	}
	var emailService services.EmailService
	if cfg.EmailEnabled() {
		es, err := services.NewEmailService(log, cfg.SendgridAPIKey, cfg.SendgridFromEmail)
		if err != nil {
			log.Warn("Could not init EmailService", "error", err)
		} else {
			emailService = es
		}
	}
	avatarService, err := services.NewAvatarService(log, bucketService)
	if err != nil {
		return err
	}

	var inference services.InferenceProvider
	switch cfg.InferenceProvider {
	case "cxr":
		inference, err = services.NewCXRProvider(log, cfg.VisionAPIURL, cfg.InferenceTimeout)
		if err != nil {
			return err
		}
	default:
		if cfg.GeminiAPIKey == "" {
			log.Warn("GOOGLE_GENERATIVE_AI_API_KEY is not set, image analysis will degrade to apologies")
		}
		inference = services.NewGeminiProvider(log, cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	imageLoader := services.NewImageLoader(log, bucketService)
	metadataGenerator := services.NewChatMetadataGenerator(log, cfg.AnthropicAPIKey, cfg.AnthropicModel)

	authService := services.NewAuthService(theDB, log, userRepo, userTokenRepo, avatarService, emailService,
		cfg.JWTSecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	meService := services.NewMeService(log, userRepo)
	chatService := services.NewChatService(theDB, log, chatRepo, chatMessageRepo, inference, imageLoader,
		metadataGenerator, wsHub, cfg.InferenceTimeout)
	overlayService, err := services.NewOverlayService(log, chatService, imageLoader)
	if err != nil {
		return err
	}
	uploadService := services.NewUploadService(log, bucketService, cfg.MaxUploadBytes)

	// Router Setup
	router := server.NewRouter(server.RouterConfig{
		Log:            log,
		AllowedOrigins: cfg.AllowedOrigins,
		AuthHandler:    handlers.NewAuthHandler(log, authService),
		AuthMiddleware: middleware.NewAuthMiddleware(log, authService),
		MeHandler:      handlers.NewMeHandler(log, meService),
		HealthHandler:  handlers.NewHealthHandler(store),
		ChatHandler:    handlers.NewChatHandler(log, chatService, overlayService),
		UploadHandler:  handlers.NewUploadHandler(log, uploadService, cfg.MaxUploadBytes),
		WsHandler:      handlers.WsHandler(wsHub, log, cfg.AllowedOrigins),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if redisPubSub != nil {
		g.Go(func() error {
			if err := redisPubSub.Run(gCtx, wsHub); err != nil {
				log.Warn("Redis pubsub stopped, continuing with local fan-out only", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if redisPubSub != nil {
			if err := redisPubSub.Stop(); err != nil {
				log.Warn("Failed to stop redis pubsub", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
