package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/creditledger/internal/authorization"
	billingdomain "github.com/smallbiznis/creditledger/internal/billing/domain"
	"github.com/smallbiznis/creditledger/internal/config"
	"github.com/smallbiznis/creditledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/creditledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/creditledger/internal/observability/tracing"
	"github.com/smallbiznis/creditledger/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metricsHandler(httpMetrics)))

	return r
}

// metricsHandler serves the HTTP registry together with the default one,
// where the GORM pool collectors live.
func metricsHandler(httpMetrics *obsmetrics.HTTPMetrics) http.Handler {
	if httpMetrics == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(
		prometheus.Gatherers{httpMetrics.Registry(), prometheus.DefaultGatherer},
		promhttp.HandlerOpts{},
	)
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	billingSvc   billingdomain.Service
	authzSvc     authorization.Service
	obsMetrics   *obsmetrics.Metrics
	usageLimiter *ratelimit.UsageRecordLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	BillingSvc   billingdomain.Service
	AuthzSvc     authorization.Service
	ObsMetrics   *obsmetrics.Metrics           `optional:"true"`
	UsageLimiter *ratelimit.UsageRecordLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		billingSvc:   p.BillingSvc,
		authzSvc:     p.AuthzSvc,
		obsMetrics:   p.ObsMetrics,
		usageLimiter: p.UsageLimiter,
	}
	svc.registerBillingRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerBillingRoutes() {
	billing := s.engine.Group("/billing", IdentityRequired())

	billing.POST("/credits", s.AddCredits)
	billing.GET("/info", s.GetBillingInfo)
	billing.GET("/usage", s.ListUsage)
	billing.POST("/usage", s.UsageRecordRateLimit(), s.RecordUsage)
	billing.GET("/transactions", s.ListTransactions)
	billing.GET("/pricing", s.ListPricing)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", IdentityRequired())

	// -------- Pricing --------
	admin.POST("/pricing", s.authorizeAction(authorization.ObjectPricing, authorization.ActionPricingCreate), s.CreatePricingRule)
	admin.DELETE("/pricing/:id", s.authorizeAction(authorization.ObjectPricing, authorization.ActionPricingDeactivate), s.DeactivatePricingRule)

	// -------- Accounts --------
	admin.POST("/accounts/:userId/adjustments", s.authorizeAction(authorization.ObjectAccount, authorization.ActionAccountAdjust), s.AdjustBalance)
	admin.GET("/accounts/:userId/reconcile", s.authorizeAction(authorization.ObjectAccount, authorization.ActionAccountReconcile), s.ReconcileAccount)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
