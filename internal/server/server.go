package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"casebridge/config"
	"casebridge/internal/auth"
	"casebridge/internal/handler"
	"casebridge/internal/middleware"
	"casebridge/internal/transport/httpdto"
	"casebridge/internal/websocket"
	"casebridge/pkg/database"
	"casebridge/pkg/logger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	db         *gorm.DB
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Conversations *handler.ConversationHandler
	Notifications *handler.NotificationHandler
	Templates     *handler.TemplateHandler
	Attachments   *handler.AttachmentHandler
	Realtime      *websocket.Handler
}

func New(cfg *config.Config, l *logger.Logger, db *gorm.DB) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
		db:     db,
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) SetupRoutes(h *Handlers, verifier auth.Verifier, limiter middleware.MessageLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := database.HealthCheck(c.Request.Context(), s.db); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	// The realtime endpoint authenticates itself, during the handshake or with the first frame.
	s.engine.GET("/v1/ws", h.Realtime.ServeWS)

	v1 := s.engine.Group("/v1", middleware.AuthMiddleware(verifier))

	conversations := v1.Group("/conversations")
	{
		conversations.POST("", h.Conversations.Create)
		conversations.GET("", h.Conversations.List)
		conversations.GET("/:id", h.Conversations.Get)
		conversations.GET("/:id/messages", h.Conversations.Messages)
		conversations.POST("/:id/messages", middleware.MessageRateLimitMiddleware(limiter, s.logger), h.Conversations.SendMessage)
		conversations.POST("/:id/read", h.Conversations.MarkRead)
		conversations.POST("/:id/participants", h.Conversations.AddParticipant)
		conversations.DELETE("/:id/participants/me", h.Conversations.Leave)
	}

	notifications := v1.Group("/notifications")
	{
		notifications.GET("", h.Notifications.List)
		notifications.GET("/unread-count", h.Notifications.UnreadCount)
		notifications.POST("/read-all", h.Notifications.MarkAllRead)
		notifications.POST("/:id/read", h.Notifications.MarkRead)
		notifications.GET("/preferences", h.Notifications.GetPreferences)
		notifications.PUT("/preferences", h.Notifications.UpdatePreferences)
		notifications.POST("/schedules", h.Notifications.Schedule)
		notifications.DELETE("/schedules/:id", h.Notifications.CancelSchedule)
	}

	templates := v1.Group("/templates")
	{
		templates.POST("", h.Templates.Create)
		templates.GET("", h.Templates.List)
	}

	v1.POST("/attachments/presign", h.Attachments.Presign)
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if s.logger != nil {
			s.logger.Errorf("Error in starting the server: %s", err)
		}
		return err
	case <-quit:
	}

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}
