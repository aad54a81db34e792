package server

import (
	"net/http"
	"strings"
	"time"

	"gamification/internal/auth"
	"gamification/internal/config"
	"gamification/internal/imagecheck"
	"gamification/internal/logging"
	"gamification/internal/metrics"
	"gamification/internal/moderation"
	"gamification/internal/storage"
	"gamification/internal/tournament"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators of the HTTP server. Services are built from DB
// when left nil.
type Deps struct {
	DB         *gorm.DB
	Config     config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Auth       auth.Provider
	Store      storage.Store
	Tournament *tournament.Service
	Moderation *moderation.Service
}

type Server struct {
	db         *gorm.DB
	cfg        config.Config
	log        *zap.Logger
	metrics    *metrics.Metrics
	auth       auth.Provider
	store      storage.Store
	tournament *tournament.Service
	moderation *moderation.Service
}

func New(deps Deps) *Server {
	registerValidators()
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	store := deps.Store
	if store == nil {
		store = storage.NewLocalStore(deps.Config.MediaRoot, deps.Config.MediaURL)
	}
	srv := &Server{
		db:         deps.DB,
		cfg:        deps.Config,
		log:        log,
		metrics:    deps.Metrics,
		auth:       deps.Auth,
		store:      store,
		tournament: deps.Tournament,
		moderation: deps.Moderation,
	}
	if deps.DB != nil && srv.tournament == nil {
		srv.tournament = tournament.NewService(deps.DB, log, tournament.Options{
			ItemScope: deps.Config.SummaryItemScope,
			Metrics:   deps.Metrics,
		})
	}
	if deps.DB != nil && srv.moderation == nil {
		srv.moderation = moderation.NewService(deps.DB, log, store, imagecheck.New(deps.Config.MaxImageBytes), deps.Metrics, srv.tournament)
	}
	return srv
}

func (s *Server) Handler() http.Handler {
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(s.log))
	router.Use(s.metrics.Middleware())
	if len(s.cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(s.corsConfig()))
	}
	router.Use(s.identify())

	api := router.Group("/api")
	api.GET("/ping", named("system.ping"), s.handlePing)

	games := api.Group("/games")
	games.GET("", named("games.list"), s.requireDB, s.handleGameList)
	games.GET("/:id", named("games.detail"), s.requireDB, s.handleGameDetail)
	games.POST("/session", named("games.session_create"), s.requireDB, s.handleSessionCreate)
	games.POST("/worldcup/pick", named("games.worldcup_pick_create"), s.requireDB, s.handlePickCreate)
	games.GET("/worldcup/pick/summary", named("games.worldcup_pick_summary"), s.requireDB, s.handlePickSummary)
	games.POST("/result", named("games.result_create"), s.requireDB, s.handleResultCreate)
	games.GET("/result/detail", named("games.result_detail"), s.requireDB, s.handleResultDetail)
	games.POST("/edit_request", named("games.edit_request_submit"), s.requireDB, requireUser, s.handleEditRequestSubmit)
	games.GET("/edit_request", named("games.edit_request_mine"), s.requireDB, requireUser, s.handleEditRequestMine)
	games.GET("/worldcup/draft", named("games.worldcup_draft_detail"), s.requireDB, requireUser, s.handleDraftDetail)
	games.PUT("/worldcup/draft", named("games.worldcup_draft_save"), s.requireDB, requireUser, s.handleDraftSave)
	games.DELETE("/worldcup/draft", named("games.worldcup_draft_delete"), s.requireDB, requireUser, s.handleDraftDelete)

	admin := api.Group("/admin")
	admin.GET("/edit_requests", named("admin.edit_requests.list"), s.requireDB, requireStaff, s.handleAdminEditRequestList)
	admin.GET("/edit_requests/:id", named("admin.edit_requests.detail"), s.requireDB, requireStaff, s.handleAdminEditRequestDetail)
	admin.POST("/edit_requests/approve", named("admin.edit_requests.approve"), s.requireDB, requireStaff, s.handleAdminEditRequestApprove)
	admin.POST("/edit_requests/reject", named("admin.edit_requests.reject"), s.requireDB, requireStaff, s.handleAdminEditRequestReject)

	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.NoRoute(named("system.not_found"), func(c *gin.Context) {
		writeFailure(c, http.StatusNotFound, codeNotFound, "not found", nil)
	})
	return router
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range s.cfg.CORSAllowedOrigins {
		if strings.TrimSpace(origin) == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	cfg.AllowOrigins = s.cfg.CORSAllowedOrigins
	return cfg
}

// named tags the request with its API name for the envelope and request log.
func named(api string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(logging.APINameKey, api)
		c.Next()
	}
}

func (s *Server) requireDB(c *gin.Context) {
	if s.db == nil || s.tournament == nil || s.moderation == nil {
		writeFailure(c, http.StatusInternalServerError, codeServerError, "database not configured", nil)
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) handlePing(c *gin.Context) {
	status := "disabled"
	if s.db != nil {
		status = "up"
		if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = "down"
		}
	}
	writeData(c, http.StatusOK, gin.H{"status": "ok", "database": status})
}
