package main

import (
	"context"
	"fmt"
	"log"
	"os"

	apirest "github.com/fateforge/server/api/rest"
	"github.com/fateforge/server/api/sse"
	apiws "github.com/fateforge/server/api/ws"
	"github.com/fateforge/server/audit"
	"github.com/fateforge/server/broadcast"
	"github.com/fateforge/server/cache"
	"github.com/fateforge/server/config"
	dbadapter "github.com/fateforge/server/db"
	"github.com/fateforge/server/game/client"
	"github.com/fateforge/server/game/dice"
	"github.com/fateforge/server/game/entity"
	"github.com/fateforge/server/game/exploration"
	gsession "github.com/fateforge/server/game/session"
	mw "github.com/fateforge/server/middleware"
	"github.com/fateforge/server/model"
	"github.com/fateforge/server/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Game Engines ----
	bc := broadcast.New(pubsub, logger)
	roller := dice.NewRoller(nil)
	entitySvc := entity.NewService(db, bc, logger)
	sessionSvc := gsession.NewService(db, roller, bc, logger)
	explorationSvc := exploration.NewService(db, entitySvc, sessionSvc, nil, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker("stale_executions", cfg.Game.StaleCheckInterval, func() {
		explorationSvc.ReportStale(context.Background(), cfg.Game.StaleExecutionAge)
	})

	// ---- WS Router ----
	cm := client.NewManager(logger)
	wsRouter := apiws.NewRouter(logger)
	sessionH := apiws.NewSessionHandlers(pubsub, sessionSvc, logger)
	sessionH.RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	campaignH := apirest.NewCampaignHandler(db)
	sessH := apirest.NewSessionHandler(sessionSvc, cfg.Game)
	entityH := apirest.NewEntityHandler(entitySvc)
	exploH := apirest.NewExplorationHandler(explorationSvc)
	adminH := apirest.NewAdminHandler(db, cm, explorationSvc, cfg.Game)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		campG := api.Group("/campaigns")
		campG.Use(mw.Auth(cfg.Security, c), mw.Audit(auditSvc))
		campG.POST("", campaignH.Create)
		campG.GET("", campaignH.List)
		campG.GET("/:id", campaignH.Get)
		campG.POST("/:id/characters", campaignH.CreateCharacter)
		campG.GET("/:id/characters", campaignH.ListCharacters)

		sessG := api.Group("/sessions")
		sessG.Use(mw.Auth(cfg.Security, c), mw.Audit(auditSvc))
		sessG.POST("", sessH.Create)
		sessG.GET("/:id", sessH.Get)
		sessG.PUT("/:id/status", sessH.UpdateStatus)
		sessG.GET("/:id/chat", sessH.ChatLog)
		sessG.POST("/:id/chat", sessH.AppendChat)
		sessG.GET("/:id/dice", sessH.DiceLog)
		sessG.POST("/:id/dice", sessH.AppendDice)
		sessG.POST("/:id/combat/start", sessH.StartCombat)
		sessG.POST("/:id/combat/end", sessH.EndCombat)
		sessG.POST("/:id/combat/advance", sessH.AdvanceTurn)
		sessG.GET("/:id/locations/:location/entities", entityH.List)
		sessG.POST("/:id/locations/:location/entities", entityH.Generate)

		charG := api.Group("/characters")
		charG.Use(mw.Auth(cfg.Security, c))
		charG.GET("/:id", campaignH.GetCharacter)

		entG := api.Group("/entities")
		entG.Use(mw.Auth(cfg.Security, c), mw.Audit(auditSvc))
		entG.GET("/:id", entityH.Get)
		entG.PUT("/:id/status", entityH.SetStatus)
		entG.POST("/:id/discover", entityH.Discover)

		expG := api.Group("/explorations")
		expG.Use(mw.Auth(cfg.Security, c), mw.Audit(auditSvc))
		expG.POST("", exploH.Start)
		expG.GET("/:id", exploH.Get)
		expG.POST("/:id/input", exploH.ProvideInput)
		expG.POST("/:id/check", exploH.Resolve)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/stale-executions", adminH.StaleExecutions)
	}

	// ---- WebSocket ----
	wsH := apiws.NewHandler(c, cfg.Security, cm, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, sessionSvc, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
