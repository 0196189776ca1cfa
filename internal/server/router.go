package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/PabloG6/medscan-intellibus/internal/handlers"
	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/middleware"
)

type RouterConfig struct {
	Log            *logger.Logger
	AllowedOrigins []string
	AuthHandler    *handlers.AuthHandler
	AuthMiddleware *middleware.AuthMiddleware
	MeHandler      *handlers.MeHandler
	HealthHandler  *handlers.HealthHandler
	ChatHandler    *handlers.ChatHandler
	UploadHandler  *handlers.UploadHandler
	WsHandler      gin.HandlerFunc
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(cfg.Log), middleware.RequestLogger(cfg.Log))

	//-----------------------------------------
	// Cors Setup
	//-----------------------------------------
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", handlers.ChatIDHeader},
		ExposeHeaders:    []string{handlers.ChatIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	//-----------------------------------------
	// Health Routes
	//-----------------------------------------
	router.GET("/healthz", cfg.HealthHandler.Healthz)

	//-----------------------------------------
	// Public Routes
	//-----------------------------------------
	api := router.Group("/api")
	{
		api.POST("/register", cfg.AuthHandler.Register)
		api.POST("/login", cfg.AuthHandler.Login)
		api.POST("/refresh", cfg.AuthHandler.Refresh)
	}

	//------------------------------------------
	// Protected Routes
	//------------------------------------------
	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	protected.POST("/logout", cfg.AuthHandler.Logout)
	protected.GET("/ws", cfg.WsHandler)

	//ME
	protected.GET("/me", cfg.MeHandler.GetMe)

	//Chat
	protected.POST("/chat", cfg.ChatHandler.Submit)
	protected.POST("/chat/new", cfg.ChatHandler.New)
	protected.PATCH("/chat/message", cfg.ChatHandler.PatchMessage)
	protected.GET("/chats", cfg.ChatHandler.List)
	protected.GET("/chats/:chatId/messages", cfg.ChatHandler.Transcript)
	protected.GET("/chats/:chatId/messages/:messageId/overlay", cfg.ChatHandler.Overlay)

	//Uploads
	protected.POST("/uploads", cfg.UploadHandler.Upload)

	return router
}
