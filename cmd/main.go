package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/giziai/digital-human/internal/api"
	"github.com/giziai/digital-human/internal/app"
	"github.com/giziai/digital-human/internal/auth"
	"github.com/giziai/digital-human/internal/chat"
	"github.com/giziai/digital-human/internal/config"
	"github.com/giziai/digital-human/internal/logging"
	"github.com/giziai/digital-human/internal/websocket"
	"github.com/giziai/digital-human/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize adapters
	chatBackend, err := app.NewChatBackend(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create chat backend", zap.Error(err))
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	transcripts, closeTranscripts, err := app.NewTranscripts(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		logger.Fatal("Failed to create transcript store", zap.Error(err))
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.ClientID, cfg.ClientKey)
	if err != nil {
		logger.Fatal("Failed to create token issuer", zap.Error(err))
	}
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, tokens will not survive a restart")
	}

	// Initialize WebSocket hub; every connection gets its own chat surface
	hub := websocket.NewHub(chatBackend, transcripts, websocket.HubConfig{
		Conversation: usecase.ConversationConfig{RequestTimeout: cfg.RequestTimeout},
		Surface: chat.Config{
			BubbleInterval: cfg.BubbleInterval,
			BubbleDwell:    cfg.BubbleDwell,
		},
		IdleTimeout: cfg.IdleTimeout,
	}, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.AllowedOrigin},
	}))

	// Initialize API routes
	api.InitRoutes(e, hub, issuer, transcripts, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("backendMode", cfg.BackendMode))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Hijacked websocket connections are not covered by e.Shutdown
	stopHub()
	<-hubDone

	if err := closeTranscripts(ctx); err != nil {
		logger.Error("Failed to close transcript store", zap.Error(err))
	}

	logger.Info("Server exited")
}
