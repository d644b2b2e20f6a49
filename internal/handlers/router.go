package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/services"
	"github.com/SAP-F-2025/form-exam-service/internal/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterOptions struct {
	AllowedOrigins []string
	Identity       IdentityResolver
	Health         HealthChecker
}

type HandlerManager struct {
	sessionHandler *SessionHandler
	exportHandler  *ExportHandler
	logger         utils.Logger
	opts           RouterOptions
}

func NewHandlerManager(
	sessionService services.SessionService,
	exportService services.ExportService,
	logger utils.Logger,
	opts RouterOptions,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(sessionService, logger),
		exportHandler:  NewExportHandler(exportService, logger),
		logger:         logger,
		opts:           opts,
	}
}

// CORSConfig allows any origin unless a list is configured
func CORSConfig(allowedOrigins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", utils.RequestIDHeader}
	cfg.ExposeHeaders = []string{utils.RequestIDHeader, "Content-Disposition"}
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

// SetupRoutes sets up middleware and all routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.Use(
		RequestIDMiddleware(),
		utils.LoggerMiddleware(hm.logger),
		utils.ContextLogger(hm.logger),
		cors.New(CORSConfig(hm.opts.AllowedOrigins)),
		IdentityMiddleware(hm.opts.Identity, hm.logger),
	)

	router.GET("/health", hm.healthCheck)

	// Public respondent routes
	public := router.Group("/f/:slug")
	{
		public.POST("/start", hm.sessionHandler.StartSession)
		public.PUT("/answers", hm.sessionHandler.SaveAnswer)
		public.POST("/submit", hm.sessionHandler.SubmitSession)
		public.POST("/violation", hm.sessionHandler.RecordViolation)
		public.GET("/results", hm.sessionHandler.GetResults)
		public.GET("/sessions/:session_id", hm.sessionHandler.GetSession)
	}

	v1 := router.Group("/api/v1")
	if hm.opts.Identity != nil {
		v1.Use(RequireIdentity())
	}
	{
		v1.GET("/forms/:id/results/export", hm.exportHandler.ExportResults)
	}
}

func (hm *HandlerManager) healthCheck(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "healthy", "service": "form-exam-service"}

	if hm.opts.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := hm.opts.Health.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["error"] = err.Error()
		}
	}
	c.JSON(status, body)
}
