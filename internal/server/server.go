package server

import (
	"context"
	"net/http"
	"time"

	"github.com/astralhq/keychain/internal/apikey"
	apikeydomain "github.com/astralhq/keychain/internal/apikey/domain"
	"github.com/astralhq/keychain/internal/authorization"
	"github.com/astralhq/keychain/internal/clock"
	"github.com/astralhq/keychain/internal/config"
	"github.com/astralhq/keychain/internal/migration"
	"github.com/astralhq/keychain/internal/observability"
	obsmetrics "github.com/astralhq/keychain/internal/observability/metrics"
	"github.com/astralhq/keychain/internal/owner"
	ownerdomain "github.com/astralhq/keychain/internal/owner/domain"
	"github.com/astralhq/keychain/internal/plan"
	plandomain "github.com/astralhq/keychain/internal/plan/domain"
	"github.com/astralhq/keychain/internal/project"
	projectdomain "github.com/astralhq/keychain/internal/project/domain"
	"github.com/astralhq/keychain/internal/ratelimit"
	"github.com/astralhq/keychain/internal/usage"
	usagedomain "github.com/astralhq/keychain/internal/usage/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	observability.Module,
	authorization.Module,
	apikey.Module,
	owner.Module,
	plan.Module,
	project.Module,
	ratelimit.Module,
	usage.Module,
	migration.Module,
	fx.Provide(newGenID),
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func newGenID() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func NewEngine(log *zap.Logger, genID *snowflake.Node) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware(genID))
	r.Use(RequestLogMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, genID *snowflake.Node) *gin.Engine {
	return NewEngine(log, genID)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http.listen", zap.String("addr", cfg.HTTPAddr))
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
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger

	apiKeySvc  apikeydomain.Service
	authzSvc   authorization.Service
	ownerSvc   ownerdomain.Service
	planSvc    plandomain.Service
	projectSvc projectdomain.Service
	usageSvc   usagedomain.Service

	obsMetrics    *obsmetrics.Metrics
	ingestLimiter *ratelimit.IngestLimiter
}

type ServerParams struct {
	fx.In

	Gin *gin.Engine
	Cfg config.Config
	DB  *gorm.DB
	Log *zap.Logger

	APIKeySvc  apikeydomain.Service
	AuthzSvc   authorization.Service
	OwnerSvc   ownerdomain.Service
	PlanSvc    plandomain.Service
	ProjectSvc projectdomain.Service
	UsageSvc   usagedomain.Service

	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
	IngestLimiter *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("http.server"),
		apiKeySvc:     p.APIKeySvc,
		authzSvc:      p.AuthzSvc,
		ownerSvc:      p.OwnerSvc,
		planSvc:       p.PlanSvc,
		projectSvc:    p.ProjectSvc,
		usageSvc:      p.UsageSvc,
		obsMetrics:    p.ObsMetrics,
		ingestLimiter: p.IngestLimiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Usage --------
	v1.POST("/usage", s.APIKeyRequired(apikeydomain.ScopeUsageWrite), s.IngestRateLimit(), s.RecordUsage)
	v1.GET("/usage/can-consume", s.APIKeyRequired(apikeydomain.ScopeUsageRead), s.CanConsume)
	v1.GET("/usage/records", s.IdentityRequired(), s.ListUsageRecords)
	v1.POST("/usage/counters/reset", s.IdentityRequired(), s.ResetCounter)

	// -------- Plans --------
	v1.GET("/plans", s.ListPlans)
	v1.GET("/plans/default", s.GetDefaultPlan)
	v1.POST("/plans/apply", s.IdentityRequired(), s.ApplyPlan)
	v1.GET("/tier", s.IdentityRequired(), s.GetOwnerTier)

	// -------- Projects --------
	v1.GET("/projects", s.IdentityRequired(), s.ListProjects)
	v1.POST("/projects", s.IdentityRequired(), s.CreateProject)
	v1.PATCH("/projects/:id", s.IdentityRequired(), s.UpdateProject)
	v1.POST("/projects/:id/archive", s.IdentityRequired(), s.ArchiveProject)
	v1.DELETE("/projects/:id", s.IdentityRequired(), s.DeleteProject)

	// -------- API Keys --------
	v1.POST("/api-keys", s.IdentityRequired(), s.CreateAPIKey)
	v1.GET("/api-keys", s.IdentityRequired(), s.ListAPIKeys)
	v1.POST("/api-keys/:key_id/revoke", s.IdentityRequired(), s.RevokeAPIKey)

	// -------- Organizations --------
	v1.POST("/organizations", s.IdentityRequired(), s.CreateOrganization)
	v1.GET("/organizations/:id", s.IdentityRequired(), s.requireOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationView), s.GetOrganization)
	v1.PATCH("/organizations/:id", s.IdentityRequired(), s.requireOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationUpdate), s.UpdateOrganization)
	v1.GET("/organizations/:id/members", s.IdentityRequired(), s.requireOrgAction(authorization.ObjectMember, authorization.ActionMemberView), s.ListMembers)
	v1.POST("/organizations/:id/members", s.IdentityRequired(), s.requireOrgAction(authorization.ObjectMember, authorization.ActionMemberAdd), s.AddMembers)
	v1.DELETE("/organizations/:id/members", s.IdentityRequired(), s.requireOrgAction(authorization.ObjectMember, authorization.ActionMemberRemove), s.RemoveMembers)
}
