package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reelcomic/reelcomic/internal/auth"
	authdomain "github.com/reelcomic/reelcomic/internal/auth/domain"
	authoauth "github.com/reelcomic/reelcomic/internal/auth/oauth"
	"github.com/reelcomic/reelcomic/internal/auth/session"
	"github.com/reelcomic/reelcomic/internal/billing"
	billingdomain "github.com/reelcomic/reelcomic/internal/billing/domain"
	"github.com/reelcomic/reelcomic/internal/config"
	"github.com/reelcomic/reelcomic/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	auth.Module,
	session.Module,
	billing.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	authsvc    authdomain.Service
	oauthsvc   authoauth.Service
	billingsvc billingdomain.Service
	sessions   *session.Manager
	metrics    *telemetry.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Authsvc    authdomain.Service
	OAuthsvc   authoauth.Service
	Billingsvc billingdomain.Service
	Sessions   *session.Manager
	Metrics    *telemetry.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		authsvc:    p.Authsvc,
		oauthsvc:   p.OAuthsvc,
		billingsvc: p.Billingsvc,
		sessions:   p.Sessions,
		metrics:    p.Metrics,
	}

	svc.registerAuthRoutes()
	svc.registerBillingRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.GET("/session", s.Session)
	auth.POST("/logout", s.Logout)

	oauth := auth.Group("/oauth/:provider")
	{
		oauth.GET("/start", s.OAuthStart)
		oauth.GET("/callback", s.OAuthCallback)
		// Apple posts the callback when the name/email scope is requested.
		oauth.POST("/callback", s.OAuthCallback)
	}
}

func (s *Server) registerBillingRoutes() {
	api := s.engine.Group("/api/billing")

	api.GET("/plans", s.ListPlans)
	api.GET("/status", s.AuthRequired(), s.BillingStatus)
	api.POST("/checkout", s.AuthRequired(), s.CreateCheckout)
	api.POST("/portal", s.AuthRequired(), s.CreatePortal)
	api.POST("/webhook", s.StripeWebhook)
}
