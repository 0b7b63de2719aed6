package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kasuganosora/rotationbot/game/bot"
	"github.com/kasuganosora/rotationbot/game/sim"
	"github.com/kasuganosora/rotationbot/game/target"
	"github.com/kasuganosora/rotationbot/game/world"
	"github.com/kasuganosora/rotationbot/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wolfGUID world.GUID = 0x200

const fireProfile = `{
  "name": "Fire",
  "className": "Mage",
  "steps": [
    {"id": 133, "name": "Fireball", "targetType": "Enemy", "requiresTarget": true,
     "range": 35, "resourceType": "Mana", "resourceCost": 30}
  ]
}`

// wolfWorld is the default sim world plus a hostile, engaged wolf.
func wolfWorld(t *testing.T) *sim.World {
	w := testutil.NewSimWorld(t)
	w.AddUnit(sim.UnitSpec{
		GUID: wolfGUID, Name: "Timber Wolf", Health: 300, MaxHealth: 300,
		Flags: world.UnitFlagInCombat, Position: world.Vector3{X: 12},
	})
	w.SetRelation(testutil.PlayerGUID, wolfGUID, target.ReactionHostile)
	return w
}

func activate(t *testing.T, ts *TestServer, token, profile, name string) {
	t.Helper()
	resp := ts.Do(t, http.MethodPost, "/api/profiles", profile, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = ts.Do(t, http.MethodPut, "/api/rotation/profile/"+name, nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// ---- Rotation ----

func TestRotationFlow_TickCastsAndStreams(t *testing.T) {
	ts := NewTestServer(t, wolfWorld(t))
	token := ts.Token(t, "ops")
	activate(t, ts, token, fireProfile, "Fire")

	ws := ts.ConnectWS(t, token)
	ws.Send("status", nil)
	var st struct {
		Rotation bool   `json:"rotation"`
		Profile  string `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(ws.RecvType("status", 2*time.Second).Payload, &st))
	assert.True(t, st.Rotation)
	assert.Equal(t, "Fire", st.Profile)

	ts.Tick()

	casts := ts.World.Casts()
	require.Len(t, casts, 1)
	assert.Equal(t, uint32(133), casts[0].SpellID)
	assert.Equal(t, wolfGUID, casts[0].Target)

	var ev bot.DecisionEvent
	require.NoError(t, json.Unmarshal(ws.RecvType("decision", 2*time.Second).Payload, &ev))
	assert.Equal(t, uint32(133), ev.SpellID)
	assert.Equal(t, "Fire", ev.Profile)
	assert.True(t, ev.Accepted)

	// The GCD holds the next tick back.
	ts.Tick()
	assert.Len(t, ts.World.Casts(), 1)

	// The audit writer flushes in the background.
	require.Eventually(t, func() bool {
		var out struct {
			Casts []struct {
				SpellID uint32 `json:"spell_id"`
				Source  string `json:"source"`
			} `json:"casts"`
		}
		ReadJSON(t, ts.Do(t, http.MethodGet, "/api/casts?n=10", nil, token), &out)
		return len(out.Casts) == 1 && out.Casts[0].SpellID == 133 && out.Casts[0].Source == "rotation"
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRotationFlow_DisableStopsCasting(t *testing.T) {
	ts := NewTestServer(t, wolfWorld(t))
	token := ts.Token(t, "ops")
	activate(t, ts, token, fireProfile, "Fire")

	ws := ts.ConnectWS(t, token)
	ws.Send("rotation", map[string]bool{"enabled": false})
	ws.RecvType("status", 2*time.Second)
	assert.False(t, ts.Engine.Enabled())

	ts.Tick()
	assert.Empty(t, ts.World.Casts())

	resp := ts.Do(t, http.MethodPost, "/api/rotation/enable", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	ts.Tick()
	assert.Len(t, ts.World.Casts(), 1)
}

func TestRotationFlow_NoTargetNoCast(t *testing.T) {
	ts := NewTestServer(t, testutil.NewSimWorld(t))
	token := ts.Token(t, "ops")
	activate(t, ts, token, fireProfile, "Fire")

	ts.Tick()
	assert.Empty(t, ts.World.Casts())

	var stats struct {
		Controller struct {
			Ticks      uint64 `json:"ticks"`
			Dispatched uint64 `json:"dispatched"`
		} `json:"controller"`
	}
	ReadJSON(t, ts.Do(t, http.MethodGet, "/api/stats", nil, token), &stats)
	assert.Equal(t, uint64(1), stats.Controller.Ticks)
	assert.Zero(t, stats.Controller.Dispatched)
}

func TestRotationFlow_LeavingWorldDeactivates(t *testing.T) {
	ts := NewTestServer(t, wolfWorld(t))
	token := ts.Token(t, "ops")
	activate(t, ts, token, fireProfile, "Fire")

	ts.World.SetInWorld(false)
	ts.Tick()
	assert.False(t, ts.Objects.IsActive())
	assert.Empty(t, ts.World.Casts())

	ts.World.SetInWorld(true)
	ts.Tick()
	assert.True(t, ts.Objects.IsActive())
	assert.Len(t, ts.World.Casts(), 1)
}

// ---- Manual cast ----

func TestCastFlow_QueuedCastRunsOnTick(t *testing.T) {
	ts := NewTestServer(t, wolfWorld(t))
	token := ts.Token(t, "ops")
	ts.Tick() // activate the snapshot cache

	resp := ts.Do(t, http.MethodPost, "/api/cast",
		map[string]interface{}{"spell_id": 2136, "target": wolfGUID.String(), "requires_target": true}, token)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted struct {
		TraceID string `json:"trace_id"`
	}
	ReadJSON(t, resp, &accepted)
	assert.NotEmpty(t, accepted.TraceID)
	assert.Empty(t, ts.World.Casts(), "casts only run on the producer tick")

	ts.Tick()
	casts := ts.World.Casts()
	require.Len(t, casts, 1)
	assert.Equal(t, uint32(2136), casts[0].SpellID)
	assert.Equal(t, wolfGUID, casts[0].Target)

	require.Eventually(t, func() bool {
		var out struct {
			Casts []struct {
				TraceID string `json:"trace_id"`
				Source  string `json:"source"`
			} `json:"casts"`
		}
		ReadJSON(t, ts.Do(t, http.MethodGet, "/api/casts", nil, token), &out)
		return len(out.Casts) == 1 && out.Casts[0].TraceID == accepted.TraceID && out.Casts[0].Source == "api"
	}, 5*time.Second, 100*time.Millisecond)
}

// ---- SSE ----

func TestSSEFlow_StreamsDecision(t *testing.T) {
	ts := NewTestServer(t, wolfWorld(t))
	token := ts.Token(t, "ops")
	activate(t, ts, token, fireProfile, "Fire")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	br := bufio.NewReader(resp.Body)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: connected\n", line)

	ts.Tick()

	for {
		line, err = br.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, "Fireball") {
			break
		}
	}
	assert.Contains(t, line, `"accepted":true`)
}

// ---- Auth ----

func TestAuthFlow_RevokedTokenRejectedEverywhere(t *testing.T) {
	ts := NewTestServer(t, testutil.NewSimWorld(t))
	token := ts.Token(t, "ops")

	resp := ts.Do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Do(t, http.MethodPost, "/api/auth/revoke", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Do(t, http.MethodGet, "/api/world", nil, token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	_, wsResp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	require.Error(t, err)
	require.NotNil(t, wsResp)
	assert.Equal(t, http.StatusUnauthorized, wsResp.StatusCode)
}
