package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rotationbot/api/rest"
	"github.com/kasuganosora/rotationbot/audit"
	"github.com/kasuganosora/rotationbot/config"
	"github.com/kasuganosora/rotationbot/game/dispatch"
	"github.com/kasuganosora/rotationbot/game/fishing"
	"github.com/kasuganosora/rotationbot/game/rotation"
	"github.com/kasuganosora/rotationbot/game/sim"
	"github.com/kasuganosora/rotationbot/game/skill"
	"github.com/kasuganosora/rotationbot/game/target"
	"github.com/kasuganosora/rotationbot/game/world"
	mw "github.com/kasuganosora/rotationbot/middleware"
	"github.com/kasuganosora/rotationbot/resource"
	"github.com/kasuganosora/rotationbot/scheduler"
	"github.com/kasuganosora/rotationbot/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminKey            = "test-admin-key"
	wolfGUID world.GUID = 0x200
)

const arcaneProfile = `{
  "name": "Arcane",
  "className": "Mage",
  "steps": [
    {"id": 1459, "name": "Arcane Intellect", "targetType": "None", "requiresTarget": false, "resourceType": "None"},
    {"id": 133, "name": "Fireball", "range": 35, "resourceCost": 30}
  ]
}`

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	r      *gin.Engine
	w      *sim.World
	om     *world.ObjectManager
	engine *rotation.Engine
	store  *rotation.Store
	queue  *dispatch.Queue
	audit  *audit.Service
	cls    *target.Classifier
	sec    config.SecurityConfig
}

// newServer wires the handlers the way main.go does, against a simulated
// world with one hostile wolf 10 yards away.
func newServer(t *testing.T) *server {
	t.Helper()
	w := testutil.NewSimWorld(t)
	w.AddUnit(sim.UnitSpec{
		GUID: wolfGUID, Name: "Timber Wolf", Health: 300, MaxHealth: 300,
		Flags: world.UnitFlagInCombat, Position: world.Vector3{X: 10},
		Auras: []sim.Aura{{SpellID: 770, Caster: testutil.PlayerGUID, Stacks: 1}},
	})
	w.SetRelation(testutil.PlayerGUID, wolfGUID, target.ReactionHostile)

	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	sec := config.SecurityConfig{JWTSecret: "rest-test-secret", JWTTTLH: time.Hour}

	om := world.NewObjectManager(w, time.Millisecond, nil, logger)
	om.Tick(time.Now().Add(time.Second))
	auras := skill.NewAuraReader(w)
	cls := target.NewClassifier(om, auras, target.NewBlacklist(nil, nil), 0, nil, logger)
	finder := target.NewFinder(om, cls)
	los := target.NewLineOfSight(w, target.DefaultLOSConfig())
	cd := skill.NewCooldownTracker(c, w, "rest", 0, logger)
	engine := rotation.NewEngine(rotation.Deps{
		Objects: om, Finder: finder, LOS: los, Auras: auras, Cooldowns: cd, Logger: logger,
	}, rotation.Options{})
	store := rotation.NewStore(db)
	loader, err := resource.NewProfileLoader(t.TempDir(), logger)
	require.NoError(t, err)
	au := audit.New(db, logger)
	t.Cleanup(func() { au.Stop(context.Background()) })
	q := dispatch.NewQueue(8, logger)
	caster := skill.NewCaster(om, w, cd, nil, logger)
	sched := scheduler.New(logger)
	sched.AddTicker("bot_tick", time.Hour, func() {})
	t.Cleanup(sched.Stop)
	fish := fishing.NewBot(fishing.Deps{
		Objects: om, Cooldowns: cd, Caster: caster, Queue: q, Logger: logger,
	}, fishing.Config{})
	t.Cleanup(fish.Stop)

	gs := world.NewGameState(w)
	gs.Update()

	authH := rest.NewAuthHandler(c, sec)
	worldH := rest.NewWorldHandler(om, gs, auras, finder, los, target.Options{})
	rotH := rest.NewRotationHandler(engine, store, loader, au, logger)
	ctlH := rest.NewControlHandler(context.Background(), rest.ControlDeps{
		Fishing: fish, Queue: q, Caster: caster, Cooldowns: cd, Classifier: cls,
		Scheduler: sched, Audit: au, Logger: logger,
	})

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.POST("/api/auth/token", mw.AdminAuth(adminKey, ""), authH.Token)
	api := r.Group("/api", mw.Auth(sec, c))
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
	api.GET("/profiles/:name", rotH.GetProfile)
	api.DELETE("/profiles/:name", rotH.DeleteProfile)
	api.GET("/casts", rotH.Casts)
	api.POST("/cast", ctlH.Cast)
	api.GET("/cooldowns", ctlH.Cooldowns)
	api.POST("/fishing/start", ctlH.FishingStart)
	api.POST("/fishing/stop", ctlH.FishingStop)
	api.PUT("/targeting/group_mode", ctlH.GroupMode)
	api.GET("/scheduler", ctlH.Scheduler)
	api.GET("/stats", ctlH.Stats)

	return &server{r: r, w: w, om: om, engine: engine, store: store, queue: q, audit: au, cls: cls, sec: sec}
}

func (s *server) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func (s *server) token(t *testing.T) string {
	t.Helper()
	tok, err := mw.GenerateToken("tester", s.sec.JWTSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// ---- Auth ----

func TestAuthHandler_Token(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewBufferString(`{"operator":"ops"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "admin key required")

	req = httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewBufferString(`{"operator":"ops"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(mw.AdminKeyHeader, adminKey)
	w = httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, "ops", resp["operator"])
	assert.Equal(t, float64(3600), resp["expires_in"])
	tok := resp["token"].(string)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/world", tok, "").Code)
}

func TestAuthHandler_DefaultOperator(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", nil)
	req.Header.Set(mw.AdminKeyHeader, adminKey)
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", decode(t, w)["operator"])
}

func TestAuthHandler_Revoke(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/auth/revoke", tok, "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/world", tok, "").Code)
}

func TestAPI_RequiresToken(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/world", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/world", "garbage", "").Code)
}

// ---- World ----

func TestWorldHandler_World(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodGet, "/api/world", s.token(t), "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, true, resp["active"])
	assert.Equal(t, float64(2), resp["count"])
	assert.Equal(t, true, resp["in_world"])
	player := resp["local_player"].(map[string]interface{})
	assert.Equal(t, "Tester", player["name"])
	assert.Equal(t, testutil.PlayerGUID.String(), player["guid"])
}

func TestWorldHandler_Objects(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)

	// Players are units too.
	resp := decode(t, s.do(t, http.MethodGet, "/api/objects?type=Unit", tok, ""))
	assert.Equal(t, float64(2), resp["count"])
	byName := map[string]map[string]interface{}{}
	for _, o := range resp["objects"].([]interface{}) {
		obj := o.(map[string]interface{})
		byName[obj["name"].(string)] = obj
	}
	require.Contains(t, byName, "Timber Wolf")
	require.Contains(t, byName, "Tester")
	assert.InDelta(t, 10, byName["Timber Wolf"]["distance"], 0.01)

	resp = decode(t, s.do(t, http.MethodGet, "/api/objects?type=Player", tok, ""))
	assert.Equal(t, float64(1), resp["count"])

	resp = decode(t, s.do(t, http.MethodGet, "/api/objects?name=TESTER", tok, ""))
	assert.Equal(t, float64(1), resp["count"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/objects?type=Dragon", tok, "").Code)
}

func TestWorldHandler_Object(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)

	w := s.do(t, http.MethodGet, "/api/objects/"+wolfGUID.String(), tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	auras := resp["auras"].([]interface{})
	require.Len(t, auras, 1)
	assert.Equal(t, float64(770), auras[0].(map[string]interface{})["spell_id"])
	unit := resp["unit"].(map[string]interface{})
	assert.Equal(t, float64(300), unit["health"])

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/objects/0x999", tok, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/objects/wolf", tok, "").Code)
}

func TestWorldHandler_Target(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)

	w := s.do(t, http.MethodGet, "/api/target?type=enemy", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, true, resp["found"])
	assert.Equal(t, true, resp["attackable"])
	assert.Equal(t, float64(target.ReactionHostile), resp["reaction"])
	los := resp["los"].(map[string]interface{})
	assert.Equal(t, true, los["visible"])
	assert.NotEmpty(t, los["probes"])

	resp = decode(t, s.do(t, http.MethodGet, "/api/target?type=friendly", tok, ""))
	assert.Equal(t, false, resp["found"], "full-health player needs no heal")

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/target?type=sideways", tok, "").Code)
}

func TestWorldHandler_Reactions(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)
	s.do(t, http.MethodGet, "/api/target", tok, "")

	resp := decode(t, s.do(t, http.MethodGet, "/api/reactions", tok, ""))
	assert.NotEmpty(t, resp["entries"])
	assert.Equal(t, float64(target.DefaultReactionCacheSize), resp["capacity"])
	assert.Equal(t, false, resp["group_contest"])
}

// ---- Rotation / profiles ----

func TestRotationHandler_ProfileLifecycle(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)

	w := s.do(t, http.MethodPost, "/api/profiles", tok, arcaneProfile)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode(t, s.do(t, http.MethodGet, "/api/profiles", tok, ""))
	assert.Equal(t, float64(1), resp["count"])

	w = s.do(t, http.MethodGet, "/api/profiles/Arcane", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["steps"], 2)

	w = s.do(t, http.MethodPut, "/api/rotation/profile/Arcane", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, s.engine.Profile())
	assert.Equal(t, "Arcane", s.engine.Profile().Name)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/profiles/Arcane", tok, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/profiles/Arcane", tok, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/profiles/Arcane", tok, "").Code)
}

func TestRotationHandler_SaveRejectsInvalid(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)

	w := s.do(t, http.MethodPost, "/api/profiles", tok, `{"steps": []}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = s.do(t, http.MethodPost, "/api/profiles", tok, `{`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRotationHandler_ActivateKeepsRunningProfileOnFailure(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)
	ctx := context.Background()

	good, err := rotation.ParseProfile([]byte(arcaneProfile))
	require.NoError(t, err)
	require.NoError(t, s.engine.SetProfile(good))

	broken := &rotation.Profile{Name: "Broken", Steps: []rotation.Step{{
		SpellID: 1, Name: "x", MaxCharges: 1,
		Conditions: []rotation.Condition{{Type: rotation.CondExpression, Expression: "player.healthPct >"}},
	}}}
	require.NoError(t, s.store.Save(ctx, broken))

	w := s.do(t, http.MethodPut, "/api/rotation/profile/Broken", tok, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Arcane", s.engine.Profile().Name)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/api/rotation/profile/Nope", tok, "").Code)
}

func TestRotationHandler_EnableDisable(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)

	s.do(t, http.MethodPost, "/api/rotation/disable", tok, "")
	assert.False(t, s.engine.Enabled())
	resp := decode(t, s.do(t, http.MethodGet, "/api/rotation", tok, ""))
	assert.Equal(t, false, resp["enabled"])
	assert.Nil(t, resp["profile"])

	s.do(t, http.MethodPost, "/api/rotation/enable", tok, "")
	assert.True(t, s.engine.Enabled())
}

func TestRotationHandler_StatusShowsQueuedAction(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)
	good, err := rotation.ParseProfile([]byte(arcaneProfile))
	require.NoError(t, err)
	require.NoError(t, s.engine.SetProfile(good))

	_, ok := s.engine.Evaluate(context.Background())
	require.True(t, ok)

	resp := decode(t, s.do(t, http.MethodGet, "/api/rotation", tok, ""))
	queued := resp["queued"].(map[string]interface{})
	assert.Equal(t, "Arcane Intellect", queued["name"])
	assert.Equal(t, "Arcane", resp["profile"].(map[string]interface{})["name"])
}

// ---- Control ----

func TestControlHandler_Cast(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)

	w := s.do(t, http.MethodPost, "/api/cast", tok,
		`{"spell_id": 133, "target": "`+wolfGUID.String()+`", "requires_target": true}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	traceID := decode(t, w)["trace_id"].(string)
	assert.NotEmpty(t, traceID)
	assert.Empty(t, s.w.Casts(), "nothing runs until the producer drains")

	assert.Equal(t, 1, s.queue.Drain(context.Background(), 0))
	casts := s.w.Casts()
	require.Len(t, casts, 1)
	assert.Equal(t, uint32(133), casts[0].SpellID)
	assert.Equal(t, wolfGUID, casts[0].Target)

	s.audit.Stop(context.Background())
	logs, err := s.audit.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, audit.SourceAPI, logs[0].Source)
	assert.Equal(t, traceID, logs[0].TraceID)
	assert.True(t, logs[0].Accepted)
}

func TestControlHandler_Cooldowns(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)

	w := s.do(t, http.MethodGet, "/api/cooldowns", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Empty(t, resp["cooldowns"])
	assert.Equal(t, float64(1500), resp["gcd_ms"])

	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/cast", tok, `{"spell_id": 1459}`).Code)
	s.queue.Drain(context.Background(), 0)

	resp = decode(t, s.do(t, http.MethodGet, "/api/cooldowns", tok, ""))
	cds := resp["cooldowns"].([]interface{})
	require.Len(t, cds, 1)
	cd := cds[0].(map[string]interface{})
	assert.Equal(t, float64(1459), cd["spell_id"])
	assert.Greater(t, cd["remaining_ms"].(float64), float64(0))
}

func TestControlHandler_CastValidation(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/cast", tok, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/cast", tok, `{"spell_id": 1, "target": "wolf"}`).Code)
}

func TestControlHandler_CastQueueFull(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)
	for i := 0; i < 8; i++ {
		require.True(t, s.queue.Submit(dispatch.Task{Name: "fill", Run: func(context.Context) {}}))
	}
	w := s.do(t, http.MethodPost, "/api/cast", tok, `{"spell_id": 133}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestControlHandler_Fishing(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)

	resp := decode(t, s.do(t, http.MethodPost, "/api/fishing/start", tok, ""))
	assert.Equal(t, true, resp["started"])
	resp = decode(t, s.do(t, http.MethodPost, "/api/fishing/start", tok, ""))
	assert.Equal(t, false, resp["started"], "second start is a no-op")

	resp = decode(t, s.do(t, http.MethodPost, "/api/fishing/stop", tok, ""))
	assert.Equal(t, false, resp["stats"].(map[string]interface{})["running"])
}

func TestControlHandler_GroupMode(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/targeting/group_mode", tok, `{}`).Code)

	w := s.do(t, http.MethodPut, "/api/targeting/group_mode", tok, `{"enabled": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.cls.GroupContestMode())
}

func TestControlHandler_SchedulerAndStats(t *testing.T) {
	s := newServer(t)
	tok := s.token(t)

	resp := decode(t, s.do(t, http.MethodGet, "/api/scheduler", tok, ""))
	tasks := resp["tasks"].([]interface{})
	require.Len(t, tasks, 1)
	assert.Equal(t, "bot_tick", tasks[0].(map[string]interface{})["name"])

	resp = decode(t, s.do(t, http.MethodGet, "/api/stats", tok, ""))
	assert.Contains(t, resp, "queue")
	assert.Contains(t, resp, "fishing")
	assert.NotContains(t, resp, "controller")
}
