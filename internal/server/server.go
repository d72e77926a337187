package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pulseledger/xrpwatch/internal/account"
	accountdomain "github.com/pulseledger/xrpwatch/internal/account/domain"
	"github.com/pulseledger/xrpwatch/internal/asset"
	assetdomain "github.com/pulseledger/xrpwatch/internal/asset/domain"
	"github.com/pulseledger/xrpwatch/internal/config"
	"github.com/pulseledger/xrpwatch/internal/observability"
	obsmiddleware "github.com/pulseledger/xrpwatch/internal/observability/logger"
	obsmetrics "github.com/pulseledger/xrpwatch/internal/observability/metrics"
	obstracing "github.com/pulseledger/xrpwatch/internal/observability/tracing"
	"github.com/pulseledger/xrpwatch/internal/payment"
	paymentdomain "github.com/pulseledger/xrpwatch/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	account.Module,
	asset.Module,
	payment.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(obsCfg, m)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine   *gin.Engine
	cfg      config.Config
	db       *gorm.DB
	accounts accountdomain.Repository
	assets   assetdomain.Repository
	payments paymentdomain.Queries
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	DB       *gorm.DB
	Accounts accountdomain.Repository
	Assets   assetdomain.Repository
	Payments paymentdomain.Queries
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		db:       p.DB,
		accounts: p.Accounts,
		assets:   p.Assets,
		payments: p.Payments,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.GET("/payments", s.listPayments)
	api.GET("/payments/:hash", s.getPayment)
	api.GET("/accounts", s.listAccounts)
	api.GET("/assets", s.listAssets)
}
