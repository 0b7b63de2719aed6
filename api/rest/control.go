package rest

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rotationbot/audit"
	"github.com/kasuganosora/rotationbot/game/bot"
	"github.com/kasuganosora/rotationbot/game/dispatch"
	"github.com/kasuganosora/rotationbot/game/fishing"
	"github.com/kasuganosora/rotationbot/game/skill"
	"github.com/kasuganosora/rotationbot/game/target"
	"github.com/kasuganosora/rotationbot/game/world"
	mw "github.com/kasuganosora/rotationbot/middleware"
	"github.com/kasuganosora/rotationbot/scheduler"
	"go.uber.org/zap"
)

// ControlHandler drives the background workers and reports runtime counters.
type ControlHandler struct {
	ctx     context.Context // lifetime of workers started over HTTP
	fishing *fishing.Bot
	ctrl    *bot.Controller
	queue   *dispatch.Queue
	caster  *skill.Caster
	cd      *skill.CooldownTracker
	cls     *target.Classifier
	sched   *scheduler.Scheduler
	audit   *audit.Service
	logger  *zap.Logger
}

// ControlDeps are the collaborators of a ControlHandler. Fishing, Controller
// and Audit may be nil.
type ControlDeps struct {
	Fishing    *fishing.Bot
	Controller *bot.Controller
	Queue      *dispatch.Queue
	Caster     *skill.Caster
	Cooldowns  *skill.CooldownTracker
	Classifier *target.Classifier
	Scheduler  *scheduler.Scheduler
	Audit      *audit.Service
	Logger     *zap.Logger
}

// NewControlHandler creates a ControlHandler. Workers it starts run until ctx
// is cancelled or they are stopped explicitly.
func NewControlHandler(ctx context.Context, d ControlDeps) *ControlHandler {
	return &ControlHandler{
		ctx:     ctx,
		fishing: d.Fishing,
		ctrl:    d.Controller,
		queue:   d.Queue,
		caster:  d.Caster,
		cd:      d.Cooldowns,
		cls:     d.Classifier,
		sched:   d.Scheduler,
		audit:   d.Audit,
		logger:  d.Logger,
	}
}

// FishingStart handles POST /api/fishing/start.
func (h *ControlHandler) FishingStart(c *gin.Context) {
	if h.fishing == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fishing disabled"})
		return
	}
	started := h.fishing.Start(h.ctx)
	c.JSON(http.StatusOK, gin.H{"started": started, "stats": h.fishing.Stats()})
}

// FishingStop handles POST /api/fishing/stop.
func (h *ControlHandler) FishingStop(c *gin.Context) {
	if h.fishing == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fishing disabled"})
		return
	}
	h.fishing.Stop()
	c.JSON(http.StatusOK, gin.H{"stats": h.fishing.Stats()})
}

// Fishing handles GET /api/fishing.
func (h *ControlHandler) Fishing(c *gin.Context) {
	if h.fishing == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fishing disabled"})
		return
	}
	c.JSON(http.StatusOK, h.fishing.Stats())
}

type cooldownView struct {
	SpellID     uint32 `json:"spell_id"`
	RemainingMs int64  `json:"remaining_ms"`
}

// Cooldowns handles GET /api/cooldowns: spells still under the local GCD.
func (h *ControlHandler) Cooldowns(c *gin.Context) {
	active, err := h.cd.Active(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cooldown ledger unavailable"})
		return
	}
	out := make([]cooldownView, 0, len(active))
	for id, left := range active {
		out = append(out, cooldownView{SpellID: id, RemainingMs: left.Milliseconds()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpellID < out[j].SpellID })
	c.JSON(http.StatusOK, gin.H{"cooldowns": out, "gcd_ms": h.cd.GCD().Milliseconds()})
}

// GroupMode handles PUT /api/targeting/group_mode.
func (h *ControlHandler) GroupMode(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.cls.SetGroupContestMode(*req.Enabled)
	h.logger.Info("group contest mode changed",
		zap.Bool("enabled", *req.Enabled), zap.String("operator", mw.GetOperator(c)))
	c.JSON(http.StatusOK, gin.H{"group_contest": h.cls.GroupContestMode()})
}

type castRequest struct {
	SpellID        uint32     `json:"spell_id" binding:"required"`
	Target         world.GUID `json:"target"`
	RequiresTarget bool       `json:"requires_target"`
}

// Cast handles POST /api/cast. The cast is queued for the producer tick and
// the response only says whether it was queued; the outcome lands in the
// audit log under the request's trace id.
func (h *ControlHandler) Cast(c *gin.Context) {
	var req castRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	traceID := mw.GetTraceID(c)
	queued := h.queue.Submit(dispatch.Task{
		Name: "api_cast",
		Run: func(ctx context.Context) {
			ok := h.caster.Cast(mw.WithTraceID(ctx, traceID), req.SpellID, req.Target, req.RequiresTarget)
			if h.audit != nil {
				h.audit.Log(audit.CastEntry{
					TraceID:  traceID,
					SpellID:  req.SpellID,
					Target:   req.Target,
					Accepted: ok,
					Source:   audit.SourceAPI,
				})
			}
		},
	})
	if !queued {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dispatch queue full"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "trace_id": traceID})
}

// Scheduler handles GET /api/scheduler.
func (h *ControlHandler) Scheduler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// Stats handles GET /api/stats.
func (h *ControlHandler) Stats(c *gin.Context) {
	resp := gin.H{"queue": h.queue.Stats()}
	if h.ctrl != nil {
		resp["controller"] = h.ctrl.Stats()
	}
	if h.fishing != nil {
		resp["fishing"] = h.fishing.Stats()
	}
	if h.audit != nil {
		resp["audit_dropped"] = h.audit.Dropped()
	}
	c.JSON(http.StatusOK, resp)
}
