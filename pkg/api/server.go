package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/atriumhq/atrium/pkg/airlock"
	"github.com/atriumhq/atrium/pkg/config"
	"github.com/atriumhq/atrium/pkg/engine"
	"github.com/atriumhq/atrium/pkg/policy"
	"github.com/atriumhq/atrium/pkg/telemetry"
)

// Store is the persistence surface the HTTP layer needs beyond what the
// engine interfaces already cover. *stores.SQLiteStore satisfies it.
type Store interface {
	engine.ResourceStore
	airlock.Store

	UpdateResource(ctx context.Context, resource *engine.Resource, etag string) (*engine.Resource, error)
	ResourceHasDeployedOperation(ctx context.Context, resourceID string) (bool, error)
	GetOperationByID(ctx context.Context, operationID string) (*engine.Operation, error)
	ListOperationsByResourceID(ctx context.Context, resourceID string) ([]*engine.Operation, error)
	ListCurrentTemplates(ctx context.Context, resourceType engine.ResourceType) ([]*engine.ResourceTemplate, error)
	ListRequestsByWorkspaceID(ctx context.Context, workspaceID string) ([]*airlock.AirlockRequest, error)
	HealthCheck(ctx context.Context) error
}

// StepResultPublisher publishes the step-result event emitted after a scan
// verdict was applied. *bus.AirlockPublisher satisfies it.
type StepResultPublisher interface {
	PublishStepResult(ctx context.Context, event airlock.StepResultEvent) error
}

// Deps are the wired components the server routes to.
type Deps struct {
	Store      Store
	Dispatcher *engine.Dispatcher
	Resolver   *engine.TemplateResolver
	Machine    *airlock.StateMachine
	Scans      *airlock.ScanProcessor
	Policy     *policy.Engine
	Results    StepResultPublisher
	Metrics    *telemetry.Metrics

	// ScanningEnabled mirrors the airlock config: when false, submitted
	// requests skip straight to in_review.
	ScanningEnabled bool

	Logger zerolog.Logger
}

// Server is the control plane HTTP server.
type Server struct {
	cfg    config.ServerConfig
	router *gin.Engine
	logger zerolog.Logger
}

// NewServer builds the router and binds all handlers.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Logger))

	s := &Server{
		cfg:    cfg,
		router: router,
		logger: deps.Logger.With().Str("component", "api").Logger(),
	}

	router.GET("/healthz", func(c *gin.Context) {
		if err := deps.Store.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	v1 := router.Group("/api")

	templates := newTemplateHandler(deps)
	v1.POST("/templates/:resourceType", templates.Register)
	v1.GET("/templates/:resourceType", templates.ListCurrent)

	resources := newResourceHandler(deps)
	v1.POST("/resources", resources.Create)
	v1.PATCH("/resources/:id", resources.ToggleEnabled)
	v1.POST("/resources/:id/invoke", resources.InvokeAction)
	v1.GET("/resources/:id/operations", resources.ListOperations)
	v1.GET("/operations/:id", resources.GetOperation)

	requests := newAirlockHandler(deps)
	v1.POST("/workspaces/:workspaceId/requests", requests.CreateDraft)
	v1.GET("/workspaces/:workspaceId/requests", requests.ListByWorkspace)
	v1.GET("/requests/:id", requests.Get)
	v1.POST("/requests/:id/submit", requests.Submit)
	v1.POST("/requests/:id/review", requests.Review)
	v1.POST("/requests/:id/cancel", requests.Cancel)

	v1.POST("/events/scan-result", requests.ScanResult)
	v1.POST("/events/step-result", resources.StepResult)

	return s
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.ListenAddress,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", s.cfg.ListenAddress).Msg("api server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// requestLogger logs one line per request.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}
