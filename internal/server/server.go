package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/retaillens/internal/config"
	forecastdomain "github.com/smallbiznis/retaillens/internal/forecast/domain"
	insightsdomain "github.com/smallbiznis/retaillens/internal/insights/domain"
	"github.com/smallbiznis/retaillens/internal/observability"
	obsmiddleware "github.com/smallbiznis/retaillens/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/retaillens/internal/observability/metrics"
	obstracing "github.com/smallbiznis/retaillens/internal/observability/tracing"
	pipelinedomain "github.com/smallbiznis/retaillens/internal/pipeline/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics     `optional:"true"`
	Pipeline    *obsmetrics.PipelineMetrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(p.Pipeline.Gatherer(), promhttp.HandlerOpts{})))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
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
	engine      *gin.Engine
	log         *zap.Logger
	insightsSvc insightsdomain.Service
	artifacts   forecastdomain.Repository
	pipelineSvc pipelinedomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Log         *zap.Logger
	InsightsSvc insightsdomain.Service
	Artifacts   forecastdomain.Repository
	PipelineSvc pipelinedomain.Service `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		log:         p.Log.Named("http.server"),
		insightsSvc: p.InsightsSvc,
		artifacts:   p.Artifacts,
		pipelineSvc: p.PipelineSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/sales", s.ListSales)
	api.GET("/kpis", s.GetKPIs)
	api.GET("/top-products", s.ListTopProducts)
	api.GET("/top-countries", s.ListTopCountries)
	api.GET("/monthly-revenue", s.ListMonthlyRevenue)
	api.GET("/revenue-trend", s.ListRevenueTrend)

	api.GET("/forecast", s.GetForecast)
	api.GET("/segments", s.GetSegments)

	if s.pipelineSvc != nil {
		api.GET("/runs", s.ListRuns)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
