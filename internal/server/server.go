package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/orgaccess/internal/config"
	"github.com/smallbiznis/orgaccess/internal/datastore"
	invitedomain "github.com/smallbiznis/orgaccess/internal/invite/domain"
	membershipdomain "github.com/smallbiznis/orgaccess/internal/membership/domain"
	"github.com/smallbiznis/orgaccess/internal/observability"
	obsmiddleware "github.com/smallbiznis/orgaccess/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/orgaccess/internal/observability/metrics"
	obstracing "github.com/smallbiznis/orgaccess/internal/observability/tracing"
	"github.com/smallbiznis/orgaccess/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const functionsPrefix = "/.netlify/functions"

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic recovered", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: msgInternal, Code: ErrInternal.Error()})
	}))
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
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics, log)
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
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	engine        *gin.Engine
	cfg           config.Config
	connector     datastore.Connector
	inviteSvc     invitedomain.Service
	membershipSvc membershipdomain.Service
	limiter       *ratelimit.Limiter
	metrics       *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Connector     datastore.Connector
	InviteSvc     invitedomain.Service
	MembershipSvc membershipdomain.Service
	Limiter       *ratelimit.Limiter  `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		connector:     p.Connector,
		inviteSvc:     p.InviteSvc,
		membershipSvc: p.MembershipSvc,
		limiter:       p.Limiter,
		metrics:       p.ObsMetrics,
	}

	svc.registerFunctionRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerFunctionRoutes() {
	fn := s.engine.Group(functionsPrefix, CORS(s.cfg.CORSAllowedOrigins))

	// -------- Invites --------
	s.handle(fn, http.MethodPost, "/createInvite", s.RateLimit(ratelimit.EndpointInvite), s.CreateInvite)
	s.handle(fn, http.MethodGet, "/acceptInvite", s.RateLimit(ratelimit.EndpointAccept), s.AcceptInvite)
	s.handle(fn, http.MethodPost, "/invites-resend", s.ResendInvite)
	s.handle(fn, http.MethodPost, "/invites-revoke", s.RevokeInvite)

	// -------- Memberships --------
	s.handle(fn, http.MethodGet, "/listMemberships", s.ListMemberships)
	s.handle(fn, http.MethodPost, "/updateMemberRole", s.UpdateMemberRole)
	s.handle(fn, http.MethodPost, "/deleteMember", s.DeleteMember)
	s.handle(fn, http.MethodGet, "/listMyOrganizations", s.ListMyOrganizations)
	s.handle(fn, http.MethodGet, "/checkPermission", s.CheckPermission)
}

// handle registers an authenticated function and its preflight responder.
func (s *Server) handle(group *gin.RouterGroup, method, path string, handlers ...gin.HandlerFunc) {
	group.OPTIONS(path, preflight(method))
	chain := append([]gin.HandlerFunc{s.BearerRequired()}, handlers...)
	group.Handle(method, path, chain...)
}
