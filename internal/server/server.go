package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/pasar/internal/audit"
	auditdomain "github.com/smallbiznis/pasar/internal/audit/domain"
	"github.com/smallbiznis/pasar/internal/authorization"
	"github.com/smallbiznis/pasar/internal/config"
	"github.com/smallbiznis/pasar/internal/group"
	groupdomain "github.com/smallbiznis/pasar/internal/group/domain"
	"github.com/smallbiznis/pasar/internal/identity"
	"github.com/smallbiznis/pasar/internal/membership"
	membershipdomain "github.com/smallbiznis/pasar/internal/membership/domain"
	"github.com/smallbiznis/pasar/internal/notification"
	notificationdomain "github.com/smallbiznis/pasar/internal/notification/domain"
	"github.com/smallbiznis/pasar/internal/notification/stream"
	"github.com/smallbiznis/pasar/internal/post"
	postdomain "github.com/smallbiznis/pasar/internal/post/domain"
	"github.com/smallbiznis/pasar/internal/post/expiry"
	"github.com/smallbiznis/pasar/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	identity.Module,
	ratelimit.Module,
	group.Module,
	membership.Module,
	post.Module,
	expiry.Module,
	notification.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log.Named("http")))
	r.Use(HTTPMetrics())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	verifier        identity.Verifier
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	groupSvc        groupdomain.Service
	membershipSvc   membershipdomain.Service
	postSvc         postdomain.Service
	notificationSvc notificationdomain.Service
	hub             *stream.Hub
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Verifier        identity.Verifier
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	GroupSvc        groupdomain.Service
	MembershipSvc   membershipdomain.Service
	PostSvc         postdomain.Service
	NotificationSvc notificationdomain.Service
	Hub             *stream.Hub
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("server"),
		genID:           p.GenID,
		verifier:        p.Verifier,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		groupSvc:        p.GroupSvc,
		membershipSvc:   p.MembershipSvc,
		postSvc:         p.PostSvc,
		notificationSvc: p.NotificationSvc,
		hub:             p.Hub,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerStreamRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Groups --------
	api.POST("/groups", s.CreateGroup)
	api.GET("/groups", s.ListGroups)
	api.GET("/groups/:id", s.GetGroupByID)
	api.PATCH("/groups/:id", s.UpdateGroup)
	api.DELETE("/groups/:id", s.DeleteGroup)
	api.PUT("/groups/:id/post-policy", s.SetGroupPostPolicy)

	// -------- Membership --------
	api.POST("/groups/:id/join", s.RequestJoin)
	api.DELETE("/groups/:id/join", s.CancelJoinRequest)
	api.POST("/groups/:id/leave", s.LeaveGroup)
	api.GET("/groups/:id/members", s.ListMembers)
	api.POST("/groups/:id/members/:user_id/approve", s.ApproveMember)
	api.POST("/groups/:id/members/:user_id/reject", s.RejectMember)
	api.DELETE("/groups/:id/members/:user_id", s.RemoveMember)
	api.POST("/groups/:id/transfer", s.TransferLeadership)
	api.POST("/groups/:id/invites", s.InviteMember)

	// -------- Posts --------
	api.POST("/groups/:id/posts", s.CreatePost)
	api.GET("/groups/:id/posts", s.ListPosts)
	// Without a group segment these operate on free-standing listings.
	api.POST("/posts", s.CreatePost)
	api.GET("/posts", s.ListPosts)
	api.GET("/posts/:id", s.GetPostByID)
	api.PATCH("/posts/:id", s.UpdatePost)
	api.DELETE("/posts/:id", s.HidePost)
	api.POST("/posts/:id/republish", s.RepublishPost)
	api.POST("/posts/:id/approve", s.ApprovePost)
	api.POST("/posts/:id/reject", s.RejectPost)
	api.POST("/posts/:id/sold", s.MarkPostSold)

	// -------- Notifications --------
	api.GET("/notifications", s.ListNotifications)
	api.GET("/notifications/unread-count", s.GetUnreadCount)
	api.POST("/notifications/:id/read", s.MarkNotificationRead)
	api.POST("/notifications/read-all", s.MarkAllNotificationsRead)
	api.DELETE("/notifications", s.DeleteAllNotifications)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AuthRequired())

	admin.POST("/posts/:id/status", s.AdminSetPostStatus)
	admin.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerStreamRoutes() {
	// Token also accepted via access_token query: browsers cannot set
	// headers on WebSocket upgrades.
	s.engine.GET("/ws/notifications", s.AuthRequired(), s.StreamNotifications)
}
