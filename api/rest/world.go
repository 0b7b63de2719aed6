package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rotationbot/game/skill"
	"github.com/kasuganosora/rotationbot/game/target"
	"github.com/kasuganosora/rotationbot/game/world"
)

// WorldHandler exposes read-only views of the snapshot cache.
type WorldHandler struct {
	om     *world.ObjectManager
	gs     *world.GameState
	auras  *skill.AuraReader
	finder *target.Finder
	los    *target.LineOfSight
	opts   target.Options
}

// NewWorldHandler creates a WorldHandler. gs and los may be nil.
func NewWorldHandler(om *world.ObjectManager, gs *world.GameState, auras *skill.AuraReader,
	finder *target.Finder, los *target.LineOfSight, opts target.Options) *WorldHandler {
	return &WorldHandler{om: om, gs: gs, auras: auras, finder: finder, los: los, opts: opts}
}

// World handles GET /api/world.
func (h *WorldHandler) World(c *gin.Context) {
	resp := gin.H{
		"state":          h.om.State().String(),
		"active":         h.om.IsActive(),
		"count":          h.om.Count(),
		"last_refresh":   h.om.LastRefresh(),
		"current_target": h.om.CurrentTargetGUID(),
	}
	if h.gs != nil {
		resp["game_state"] = h.gs.Info()
		resp["loading_screen"] = h.gs.IsLoadingScreen()
		resp["in_world"] = h.gs.IsFullyInWorld()
	}
	if p := h.om.LocalPlayer(); p != nil {
		resp["local_player"] = newObjectView(p, nil)
	}
	c.JSON(http.StatusOK, resp)
}

// Objects handles GET /api/objects?type=Unit&name=wolf.
func (h *WorldHandler) Objects(c *gin.Context) {
	var objs []*world.Object
	if ts := c.Query("type"); ts != "" {
		t, ok := world.ParseObjectType(ts)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown object type"})
			return
		}
		objs = h.om.ObjectsByType(t)
	} else {
		objs = h.om.Objects()
	}

	name := strings.ToLower(c.Query("name"))
	player := h.om.LocalPlayer()
	views := make([]objectView, 0, len(objs))
	for _, o := range objs {
		if name != "" && !strings.Contains(strings.ToLower(o.Name), name) {
			continue
		}
		views = append(views, newObjectView(o, player))
	}
	c.JSON(http.StatusOK, gin.H{"objects": views, "count": len(views)})
}

// Object handles GET /api/objects/:guid, including the unit's auras.
func (h *WorldHandler) Object(c *gin.Context) {
	id, err := world.ParseGUID(c.Param("guid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid guid"})
		return
	}
	o := h.om.Get(id)
	if o == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
		return
	}
	v := newObjectView(o, h.om.LocalPlayer())
	if o.AsUnit() != nil && h.auras != nil {
		v.Auras = h.auras.Auras(o.Handle)
	}
	c.JSON(http.StatusOK, v)
}

// Target handles GET /api/target?type=enemy. It reports the best target and
// why the visibility check passed or failed.
func (h *WorldHandler) Target(c *gin.Context) {
	tt := target.TargetEnemy
	if s := c.Query("type"); s != "" {
		parsed, err := target.ParseTargetType(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tt = parsed
	}

	player := h.om.LocalPlayer()
	if player == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "not in world"})
		return
	}
	id := h.finder.FindBestTarget(tt, h.opts)
	o := h.om.Get(id)
	if o == nil {
		c.JSON(http.StatusOK, gin.H{"type": tt.String(), "found": false})
		return
	}

	cls := h.finder.Classifier()
	resp := gin.H{
		"type":       tt.String(),
		"found":      true,
		"target":     newObjectView(o, player),
		"reaction":   cls.Reaction(player, o),
		"attackable": cls.IsAttackable(player, o),
		"friendly":   cls.IsFriendly(player, o),
		"facing":     target.IsFacing(player, o, 90),
	}
	if h.los != nil && o.GUID != player.GUID {
		resp["los"] = h.los.Explain(player.Position, o.Position)
	}
	c.JSON(http.StatusOK, resp)
}

// Reactions handles GET /api/reactions.
func (h *WorldHandler) Reactions(c *gin.Context) {
	cls := h.finder.Classifier()
	rc := cls.Reactions()
	c.JSON(http.StatusOK, gin.H{
		"entries":       rc.Entries(),
		"capacity":      rc.Cap(),
		"group_contest": cls.GroupContestMode(),
		"local_faction": cls.LocalFaction().String(),
	})
}
