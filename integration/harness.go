package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/rotationbot/api/rest"
	"github.com/kasuganosora/rotationbot/api/sse"
	apiws "github.com/kasuganosora/rotationbot/api/ws"
	"github.com/kasuganosora/rotationbot/audit"
	"github.com/kasuganosora/rotationbot/cache"
	"github.com/kasuganosora/rotationbot/config"
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
	"github.com/kasuganosora/rotationbot/plugin/hook"
	"github.com/kasuganosora/rotationbot/resource"
	"github.com/kasuganosora/rotationbot/scheduler"
	"github.com/kasuganosora/rotationbot/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const AdminKey = "integration-admin-key"

// adminKeyHash configures the token endpoint the way production does, with a
// stored bcrypt hash rather than the key itself.
func adminKeyHash(t *testing.T) string {
	t.Helper()
	hash, err := mw.HashAdminKey(AdminKey)
	require.NoError(t, err)
	return hash
}

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB         *gorm.DB
	Cache      cache.Cache
	PubSub     cache.PubSub
	World      *sim.World
	Objects    *world.ObjectManager
	Engine     *rotation.Engine
	Controller *bot.Controller
	Audit      *audit.Service
	Hub        *apiws.Hub
	Server     *httptest.Server
	URL        string // http://127.0.0.1:<port>
	WSURL      string // ws://127.0.0.1:<port>/ws
	Sec        config.SecurityConfig

	ctx context.Context
}

// NewTestServer creates a fully wired bot for integration testing against
// the simulated world w. It mirrors the dependency wiring in main.go; the
// producer tick is driven by the test through Tick.
func NewTestServer(t *testing.T, w *sim.World) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	cfg := config.Default()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}

	ctx, cancel := context.WithCancel(context.Background())

	auditSvc := audit.New(db, logger)
	faults := logging.NewLimiter(logger, cfg.Log.FaultRPS, cfg.Log.FaultBurst)
	hooks := hook.NewHookCenter()

	// ---- World ----
	om := world.NewObjectManager(w, time.Millisecond, faults, logger)
	om.SetHooks(hooks)
	gameState := world.NewGameState(w)
	gameState.Update()

	// ---- Targeting ----
	auras := skill.NewAuraReader(w)
	classifier := target.NewClassifier(om, auras,
		target.NewBlacklist(cfg.Targeting.BlacklistNames, cfg.Targeting.BlacklistSubstrings),
		cfg.Targeting.ReactionCacheSize, faults, logger)
	classifier.RegisterHooks(hooks)
	finder := target.NewFinder(om, classifier)
	los := target.NewLineOfSight(w, target.DefaultLOSConfig())

	cooldowns := skill.NewCooldownTracker(c, w, "integration", cfg.Cooldown.GCD, logger)
	caster := skill.NewCaster(om, w, cooldowns, hooks, logger)

	engine := rotation.NewEngine(rotation.Deps{
		Objects:   om,
		Finder:    finder,
		LOS:       los,
		Auras:     auras,
		Cooldowns: cooldowns,
		Scripts:   script.NewSandbox(2, 100*time.Millisecond, logger),
		Hooks:     hooks,
		Faults:    faults,
		Logger:    logger,
	}, rotation.Options{})
	store := rotation.NewStore(db)
	loader, err := resource.NewProfileLoader(t.TempDir(), logger)
	require.NoError(t, err)

	// ---- Workers ----
	queue := dispatch.NewQueue(cfg.Dispatch.QueueCap, logger)
	fishBot := fishing.NewBot(fishing.Deps{
		Objects: om, Cooldowns: cooldowns, Caster: caster, Queue: queue, Audit: auditSvc, Logger: logger,
	}, fishing.Config{})
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
	sched := scheduler.New(logger)

	// ---- WS Router ----
	hub := apiws.NewHub(logger)
	require.NoError(t, hub.Start(ctx, pubsub))
	wsRouter := apiws.NewRouter(logger)
	apiws.NewCommands(ctx, engine, classifier, fishBot, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "state": om.State().String()})
	})

	// ---- REST API routes (mirrors main.go) ----
	authH := apirest.NewAuthHandler(c, sec)
	worldH := apirest.NewWorldHandler(om, gameState, auras, finder, los, target.Options{})
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

	r.POST("/api/auth/token", mw.AdminAuth("", adminKeyHash(t)), authH.Token)
	api := r.Group("/api")
	api.Use(mw.Auth(sec, c))
	{
		api.POST("/auth/revoke", authH.Revoke)
		api.GET("/world", worldH.World)
		api.GET("/objects", worldH.Objects)
		api.GET("/objects/:guid", worldH.Object)
		api.GET("/target", worldH.Target)
		api.GET("/rotation", rotH.Status)
		api.POST("/rotation/enable", rotH.Enable)
		api.POST("/rotation/disable", rotH.Disable)
		api.PUT("/rotation/profile/:name", rotH.Activate)
		api.POST("/profiles", rotH.SaveProfile)
		api.GET("/profiles/:name", rotH.GetProfile)
		api.GET("/casts", rotH.Casts)
		api.POST("/cast", ctlH.Cast)
		api.GET("/cooldowns", ctlH.Cooldowns)
		api.GET("/stats", ctlH.Stats)
	}

	// ---- WebSocket / SSE ----
	r.GET("/ws", apiws.NewHandler(c, sec, hub, wsRouter, logger).ServeWS)
	r.GET("/sse", sse.NewHandler(pubsub, c, sec, logger).ServeSSE)

	// ---- Start server ----
	server := httptest.NewServer(r)
	ts := &TestServer{
		DB:         db,
		Cache:      c,
		PubSub:     pubsub,
		World:      w,
		Objects:    om,
		Engine:     engine,
		Controller: controller,
		Audit:      auditSvc,
		Hub:        hub,
		Server:     server,
		URL:        server.URL,
		WSURL:      "ws" + server.URL[len("http"):] + "/ws",
		Sec:        sec,
		ctx:        ctx,
	}
	t.Cleanup(func() {
		cancel()
		fishBot.Stop()
		hub.CloseAll()
		server.Close()
		sched.Stop()
		auditSvc.Stop(context.Background())
	})
	return ts
}

// Tick runs one producer cycle, as the bot_tick scheduler task does.
func (ts *TestServer) Tick() {
	ts.Controller.Tick(ts.ctx)
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body and Bearer token.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", data)
}

// Token issues an operator token through the admin endpoint.
func (ts *TestServer) Token(t *testing.T, operator string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/auth/token",
		bytes.NewBufferString(`{"operator":"`+operator+`"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(mw.AdminKeyHeader, AdminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	ReadJSON(t, resp, &out)
	require.NotEmpty(t, out.Token)
	return out.Token
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// Reads go through a background loop so a timed-out wait does not poison
// the connection.
type WSClient struct {
	Conn *websocket.Conn
	t    *testing.T
	msgs chan apiws.Packet
	seq  uint64
}

// ConnectWS dials the control channel with the given token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	wc := &WSClient{Conn: conn, t: t, msgs: make(chan apiws.Packet, 64)}
	go wc.readLoop()
	t.Cleanup(wc.Close)
	return wc
}

func (wc *WSClient) readLoop() {
	defer close(wc.msgs)
	for {
		_, data, err := wc.Conn.ReadMessage()
		if err != nil {
			return
		}
		var p apiws.Packet
		if json.Unmarshal(data, &p) == nil {
			wc.msgs <- p
		}
	}
}

// Send writes a packet with the next sequence number.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	wc.seq++
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(wc.t, err)
		raw = b
	}
	data, err := json.Marshal(apiws.Packet{Seq: wc.seq, Type: msgType, Payload: raw})
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// RecvType reads packets until one with the given type arrives.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) apiws.Packet {
	wc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case p, ok := <-wc.msgs:
			if !ok {
				wc.t.Fatalf("ws closed while waiting for %q", msgType)
			}
			if p.Type == msgType {
				return p
			}
		case <-deadline:
			wc.t.Fatalf("timed out waiting for message type %q", msgType)
			return apiws.Packet{}
		}
	}
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}
