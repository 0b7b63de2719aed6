package rest

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rotationbot/audit"
	"github.com/kasuganosora/rotationbot/game/rotation"
	"github.com/kasuganosora/rotationbot/resource"
	"go.uber.org/zap"
)

const maxProfileBytes = 1 << 20

// RotationHandler controls the rule engine and the profile store.
type RotationHandler struct {
	engine *rotation.Engine
	store  *rotation.Store
	loader *resource.ProfileLoader
	audit  *audit.Service
	logger *zap.Logger
}

// NewRotationHandler creates a RotationHandler. loader and audit may be nil.
func NewRotationHandler(engine *rotation.Engine, store *rotation.Store, loader *resource.ProfileLoader,
	auditSvc *audit.Service, logger *zap.Logger) *RotationHandler {
	return &RotationHandler{engine: engine, store: store, loader: loader, audit: auditSvc, logger: logger}
}

type profileSummary struct {
	Name      string `json:"name"`
	ClassName string `json:"class_name"`
	Steps     int    `json:"steps"`
}

func summarize(p *rotation.Profile) *profileSummary {
	if p == nil {
		return nil
	}
	return &profileSummary{Name: p.Name, ClassName: p.ClassName, Steps: len(p.Steps)}
}

// Status handles GET /api/rotation.
func (h *RotationHandler) Status(c *gin.Context) {
	resp := gin.H{
		"enabled": h.engine.Enabled(),
		"profile": summarize(h.engine.Profile()),
	}
	if d, ok := h.engine.QueuedAction(); ok {
		resp["queued"] = d
	}
	c.JSON(http.StatusOK, resp)
}

// Enable handles POST /api/rotation/enable.
func (h *RotationHandler) Enable(c *gin.Context) {
	h.engine.SetEnabled(true)
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

// Disable handles POST /api/rotation/disable.
func (h *RotationHandler) Disable(c *gin.Context) {
	h.engine.SetEnabled(false)
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

// Activate handles PUT /api/rotation/profile/:name. The running profile is
// kept when the stored one fails to compile.
func (h *RotationHandler) Activate(c *gin.Context) {
	p, err := h.store.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.profileError(c, err)
		return
	}
	if err := h.engine.SetProfile(p); err != nil {
		h.profileError(c, err)
		return
	}
	h.logger.Info("rotation profile activated", zap.String("profile", p.Name))
	c.JSON(http.StatusOK, gin.H{"profile": summarize(p)})
}

// ListProfiles handles GET /api/profiles.
func (h *RotationHandler) ListProfiles(c *gin.Context) {
	profiles, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	out := make([]*profileSummary, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, summarize(p))
	}
	c.JSON(http.StatusOK, gin.H{"profiles": out, "count": len(out)})
}

// GetProfile handles GET /api/profiles/:name.
func (h *RotationHandler) GetProfile(c *gin.Context) {
	p, err := h.store.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.profileError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// SaveProfile handles POST /api/profiles. The body is a profile document in
// the same format as the files under rotation.profiles_dir.
func (h *RotationHandler) SaveProfile(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProfileBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}
	var p *rotation.Profile
	if h.loader != nil {
		p, err = h.loader.Parse(data)
	} else {
		p, err = rotation.ParseProfile(data)
	}
	if err != nil {
		h.profileError(c, err)
		return
	}
	if err := h.store.Save(c.Request.Context(), p); err != nil {
		h.profileError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"profile": summarize(p)})
}

// DeleteProfile handles DELETE /api/profiles/:name.
func (h *RotationHandler) DeleteProfile(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("name")); err != nil {
		h.profileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ImportProfiles handles POST /api/profiles/import, reloading every file in
// the profile directory into the store.
func (h *RotationHandler) ImportProfiles(c *gin.Context) {
	if h.loader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no profile directory configured"})
		return
	}
	n, err := h.loader.Import(c.Request.Context(), h.store)
	resp := gin.H{"imported": n, "dir": h.loader.Dir()}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Casts handles GET /api/casts?n=50.
func (h *RotationHandler) Casts(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusOK, gin.H{"casts": []struct{}{}})
		return
	}
	n, err := strconv.Atoi(c.DefaultQuery("n", "50"))
	if err != nil || n <= 0 || n > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be 1..500"})
		return
	}
	logs, err := h.audit.Recent(c.Request.Context(), n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"casts": logs, "dropped": h.audit.Dropped()})
}

func (h *RotationHandler) profileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rotation.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
	case errors.Is(err, rotation.ErrInvalidProfile):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Error("profile store", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
