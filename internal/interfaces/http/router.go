// Package http assembles the gin engine and HTTP server: global middleware,
// the OAuth provider dispatcher, the built-in operational routes, and the
// optional demo host application.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/cawinkelmann/rack-oauth2-server/internal/config"
	"github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/monitoring"
	"github.com/cawinkelmann/rack-oauth2-server/internal/interfaces/http/handlers"
	"github.com/cawinkelmann/rack-oauth2-server/internal/interfaces/http/middleware"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// Router owns the gin engine and the HTTP server lifecycle.
type Router struct {
	engine   *gin.Engine
	config   *config.Config
	log      logger.Logger
	provider *middleware.Provider
	tracer   trace.Tracer
	metrics  *monitoring.Metrics
	gatherer prometheus.Gatherer
	health   *handlers.HealthHandler
	demo     *handlers.DemoHandler
	server   *http.Server
}

// NewRouter creates the router. demo may be nil to disable the demo host
// application; gatherer backs the /metrics endpoint.
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	provider *middleware.Provider,
	tracer trace.Tracer,
	metrics *monitoring.Metrics,
	gatherer prometheus.Gatherer,
	health *handlers.HealthHandler,
	demo *handlers.DemoHandler,
) *Router {
	gin.SetMode(cfg.Server.Mode)

	return &Router{
		engine:   gin.New(),
		config:   cfg,
		log:      log,
		provider: provider,
		tracer:   tracer,
		metrics:  metrics,
		gatherer: gatherer,
		health:   health,
		demo:     demo,
	}
}

// SetupRoutes installs the middleware chain and the built-in routes. The
// provider dispatcher is global, so every route below it runs behind the
// resource gate; routes that take no bearer token pass through untouched.
func (r *Router) SetupRoutes() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.RequestLogger(r.log))
	r.engine.Use(middleware.Observability(r.tracer, r.metrics,
		r.config.OAuth.AuthorizePath, r.config.OAuth.AccessTokenPath))

	// CORS runs ahead of the dispatcher so preflight requests are answered
	// before the token endpoint's method check sees them.
	if len(r.config.CORS.AllowedOrigins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:     r.config.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
			ExposeHeaders:    []string{middleware.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.engine.Use(r.provider.Handler())

	r.engine.GET("/health", r.health.Liveness)
	r.engine.GET("/ready", r.health.Readiness)

	if r.config.Monitoring.MetricsEnabled {
		r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}
	if r.config.Monitoring.PprofEnabled {
		pprof.Register(r.engine)
	}

	if r.demo != nil {
		r.engine.GET(r.config.OAuth.AuthorizePath, r.demo.Consent)
		r.engine.POST("/oauth/grant", r.demo.Decide)

		api := r.engine.Group("/api")
		{
			api.GET("/profile", r.demo.Profile)
			api.GET("/admin", r.demo.Admin)
		}
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "The requested resource was not found",
		})
	})
}

// Engine exposes the assembled engine for in-process tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Start runs the HTTP server until Stop is called or the listener fails.
func (r *Router) Start() error {
	addr := r.config.Server.Addr()
	r.server = &http.Server{
		Addr:              addr,
		Handler:           r.engine,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	r.log.Info(context.Background(), "http server listening", logger.String("addr", addr))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.log.Info(ctx, "http server stopping")
	return r.server.Shutdown(ctx)
}
