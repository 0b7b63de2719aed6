package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/rotationbot/api/rest"
	"github.com/kasuganosora/rotationbot/api/sse"
	apiws "github.com/kasuganosora/rotationbot/api/ws"
	"github.com/kasuganosora/rotationbot/audit"
	"github.com/kasuganosora/rotationbot/cache"
	"github.com/kasuganosora/rotationbot/config"
	dbadapter "github.com/kasuganosora/rotationbot/db"
	"github.com/kasuganosora/rotationbot/game/bot"
	"github.com/kasuganosora/rotationbot/game/dispatch"
	"github.com/kasuganosora/rotationbot/game/fishing"
	"github.com/kasuganosora/rotationbot/game/rotation"
	"github.com/kasuganosora/rotationbot/game/script"
	"github.com/kasuganosora/rotationbot/game/sim"
	"github.com/kasuganosora/rotationbot/game/skill"
	"github.com/kasuganosora/rotationbot/game/target"
	"github.com/kasuganosora/rotationbot/game/world"
	"github.com/kasuganosora/rotationbot/logging"
	mw "github.com/kasuganosora/rotationbot/middleware"
	"github.com/kasuganosora/rotationbot/model"
	"github.com/kasuganosora/rotationbot/plugin/hook"
	"github.com/kasuganosora/rotationbot/resource"
	"github.com/kasuganosora/rotationbot/scheduler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	if len(os.Args) == 3 && os.Args[1] == "hash-key" {
		hash, err := mw.HashAdminKey(os.Args[2])
		if err != nil {
			log.Fatalf("hash-key: %v", err)
		}
		fmt.Println(hash)
		return
	}

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

	switch {
	case cfg.Server.AdminKeyHash != "":
	case cfg.Server.AdminKey != "":
		logger.Warn("server.admin_key is stored in plain text; prefer server.admin_key_hash (rotationbot hash-key <key>)")
	default:
		logger.Warn("server.admin_key_hash is not set; token issuing is disabled")
	}
	if cfg.Security.JWTSecret == "" {
		log.Fatalf("security.jwt_secret must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		KeyPrefix:       cfg.Cache.KeyPrefix,
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

	// ---- World provider ----
	if cfg.World.Provider != "sim" {
		log.Fatalf("world: unknown provider %q", cfg.World.Provider)
	}
	simWorld := sim.New()
	if cfg.World.SimScenario != "" {
		if err := simWorld.LoadScenarioFile(cfg.World.SimScenario); err != nil {
			log.Fatalf("world scenario: %v", err)
		}
		logger.Info("sim scenario loaded", zap.String("path", cfg.World.SimScenario))
	}

	faults := logging.NewLimiter(logger, cfg.Log.FaultRPS, cfg.Log.FaultBurst)
	hooks := hook.NewHookCenter()

	om := world.NewObjectManager(simWorld, cfg.World.RefreshInterval, faults, logger)
	om.SetHooks(hooks)
	defer om.Shutdown()
	gameState := world.NewGameState(simWorld)
	gameState.Update()

	// ---- Targeting ----
	auras := skill.NewAuraReader(simWorld)
	blacklist := target.NewBlacklist(cfg.Targeting.BlacklistNames, cfg.Targeting.BlacklistSubstrings)
	classifier := target.NewClassifier(om, auras, blacklist, cfg.Targeting.ReactionCacheSize, faults, logger)
	classifier.RegisterHooks(hooks)
	classifier.SetGroupContestMode(cfg.Targeting.GroupContestMode)
	finder := target.NewFinder(om, classifier)
	los := target.NewLineOfSight(simWorld, target.LOSConfig{
		NearThreshold: cfg.LOS.NearThreshold,
		FarThreshold:  cfg.LOS.FarThreshold,
		Band:          cfg.LOS.Band,
		ClearFraction: cfg.LOS.ClearFraction,
	})
	targetOpts := target.Options{
		Enemy: target.EnemyOptions{
			MaxRange:   float32(cfg.Targeting.MaxEnemyRange),
			OnlyCombat: cfg.Targeting.OnlyCombat,
			Tanking:    cfg.Targeting.Tanking,
		},
		Friendly: target.FriendlyOptions{MaxRange: float32(cfg.Targeting.MaxAnyRange)},
		Any:      target.AnyOptions{MaxRange: float32(cfg.Targeting.MaxAnyRange)},
	}

	// ---- Spells ----
	cooldowns := skill.NewCooldownTracker(c, simWorld, "local", cfg.Cooldown.GCD, logger)
	caster := skill.NewCaster(om, simWorld, cooldowns, hooks, logger)

	// ---- JS Sandbox ----
	sandbox := script.NewSandbox(cfg.Script.VMPoolSize, cfg.Script.Timeout, logger)

	// ---- Rotation ----
	engine := rotation.NewEngine(rotation.Deps{
		Objects:   om,
		Finder:    finder,
		LOS:       los,
		Auras:     auras,
		Cooldowns: cooldowns,
		Scripts:   sandbox,
		Hooks:     hooks,
		Faults:    faults,
		Logger:    logger,
	}, rotation.Options{Targeting: targetOpts, MeleeRange: float32(cfg.Targeting.MeleeRange)})
	engine.SetEnabled(cfg.Rotation.Enabled)

	store := rotation.NewStore(db)
	loader, err := resource.NewProfileLoader(cfg.Rotation.ProfilesDir, logger)
	if err != nil {
		log.Fatalf("profile loader: %v", err)
	}
	if n, err := loader.Import(ctx, store); err != nil {
		logger.Warn("profile import warning", zap.Int("imported", n), zap.Error(err))
	} else {
		logger.Info("rotation profiles imported", zap.Int("count", n))
	}
	if name := cfg.Rotation.ActiveProfile; name != "" {
		p, err := store.Get(ctx, name)
		if err == nil {
			err = engine.SetProfile(p)
		}
		if err != nil {
			logger.Warn("active profile not loaded", zap.String("profile", name), zap.Error(err))
		}
	}

	// ---- Workers ----
	queue := dispatch.NewQueue(cfg.Dispatch.QueueCap, logger)
	fishBot := fishing.NewBot(fishing.Deps{
		Objects:   om,
		Cooldowns: cooldowns,
		Caster:    caster,
		Queue:     queue,
		Audit:     auditSvc,
		Logger:    logger,
	}, fishing.Config{
		SpellID:        cfg.Fishing.SpellID,
		BobberName:     cfg.Fishing.BobberName,
		MaxDistance:    float32(cfg.Fishing.MaxDistance),
		BiteTimeoutMin: cfg.Fishing.BiteTimeoutMin,
		BiteTimeoutMax: cfg.Fishing.BiteTimeoutMax,
		PollInterval:   cfg.Fishing.PollInterval,
	})
	defer fishBot.Stop()

	controller := bot.NewController(bot.Deps{
		Objects:    om,
		Classifier: classifier,
		Engine:     engine,
		Caster:     caster,
		Cooldowns:  cooldowns,
		Queue:      queue,
		Audit:      auditSvc,
		PubSub:     pubsub,
		Logger:     logger,
	}, cfg.Dispatch.DrainPerTick)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker("bot_tick", time.Duration(cfg.Server.TickMs)*time.Millisecond, func() {
		controller.Tick(ctx)
	})
	sched.AddTicker("game_state", time.Second, func() {
		gameState.Update()
	})

	// ---- WS Router ----
	hub := apiws.NewHub(logger)
	defer hub.CloseAll()
	if err := hub.Start(ctx, pubsub); err != nil {
		log.Fatalf("ws hub: %v", err)
	}
	wsRouter := apiws.NewRouter(logger)
	apiws.NewCommands(ctx, engine, classifier, fishBot, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.IPWhitelist(cfg.Security.AllowedIPs))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "state": om.State().String()})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(c, cfg.Security)
	worldH := apirest.NewWorldHandler(om, gameState, auras, finder, los, targetOpts)
	rotH := apirest.NewRotationHandler(engine, store, loader, auditSvc, logger)
	ctlH := apirest.NewControlHandler(ctx, apirest.ControlDeps{
		Fishing:    fishBot,
		Controller: controller,
		Queue:      queue,
		Caster:     caster,
		Cooldowns:  cooldowns,
		Classifier: classifier,
		Scheduler:  sched,
		Audit:      auditSvc,
		Logger:     logger,
	})

	r.POST("/api/auth/token", mw.AdminAuth(cfg.Server.AdminKey, cfg.Server.AdminKeyHash), authH.Token)
	api := r.Group("/api")
	api.Use(mw.Auth(cfg.Security, c))
	{
		api.POST("/auth/revoke", authH.Revoke)

		api.GET("/world", worldH.World)
		api.GET("/objects", worldH.Objects)
		api.GET("/objects/:guid", worldH.Object)
		api.GET("/target", worldH.Target)
		api.GET("/reactions", worldH.Reactions)

		api.GET("/rotation", rotH.Status)
		api.POST("/rotation/enable", rotH.Enable)
		api.POST("/rotation/disable", rotH.Disable)
		api.PUT("/rotation/profile/:name", rotH.Activate)
		api.GET("/profiles", rotH.ListProfiles)
		api.POST("/profiles", rotH.SaveProfile)
		api.POST("/profiles/import", rotH.ImportProfiles)
		api.GET("/profiles/:name", rotH.GetProfile)
		api.DELETE("/profiles/:name", rotH.DeleteProfile)
		api.GET("/casts", rotH.Casts)

		api.POST("/cast", ctlH.Cast)
		api.GET("/cooldowns", ctlH.Cooldowns)
		api.GET("/fishing", ctlH.Fishing)
		api.POST("/fishing/start", ctlH.FishingStart)
		api.POST("/fishing/stop", ctlH.FishingStop)
		api.PUT("/targeting/group_mode", ctlH.GroupMode)
		api.GET("/scheduler", ctlH.Scheduler)
		api.GET("/stats", ctlH.Stats)
	}

	// ---- WebSocket ----
	wsH := apiws.NewHandler(c, cfg.Security, hub, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		fishBot.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}
