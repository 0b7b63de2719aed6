package target

import (
	"github.com/kasuganosora/rotationbot/game/world"
)

// Probe layout.
var (
	losHeightOffsets = [...]float32{0, 0.5, 1, 1.5, 2}
	losFlagSets      = [...]world.IntersectFlags{world.GameGenericLOS, world.GameObservedPlayerLOS}
)

const losMidpoints = 5

// LOSConfig tunes the visibility vote.
type LOSConfig struct {
	NearThreshold float64 // required clear ratio under Band yards
	FarThreshold  float64
	Band          float64
	ClearFraction float64 // a blocked probe that got this far still counts as clear
}

func DefaultLOSConfig() LOSConfig {
	return LOSConfig{NearThreshold: 0.7, FarThreshold: 0.8, Band: 20, ClearFraction: 0.99}
}

// Probe is the outcome of one collision trace.
type Probe struct {
	Start       world.Vector3        `json:"start"`
	End         world.Vector3        `json:"end"`
	Flags       world.IntersectFlags `json:"flags"`
	Blocked     bool                 `json:"blocked"`
	HitFraction float32              `json:"hit_fraction"`
	Error       string               `json:"error,omitempty"`
	Clear       bool                 `json:"clear"`
}

// Report explains a visibility decision.
type Report struct {
	Distance2D float32 `json:"distance_2d"`
	Clear      int     `json:"clear"`
	Total      int     `json:"total"`
	Ratio      float64 `json:"ratio"`
	Threshold  float64 `json:"threshold"`
	Visible    bool    `json:"visible"`
	Probes     []Probe `json:"probes"`
}

// LineOfSight approximates visibility by voting over several noisy probes.
type LineOfSight struct {
	provider world.Provider
	cfg      LOSConfig
}

func NewLineOfSight(p world.Provider, cfg LOSConfig) *LineOfSight {
	def := DefaultLOSConfig()
	if cfg.NearThreshold <= 0 {
		cfg.NearThreshold = def.NearThreshold
	}
	if cfg.FarThreshold <= 0 {
		cfg.FarThreshold = def.FarThreshold
	}
	if cfg.Band <= 0 {
		cfg.Band = def.Band
	}
	if cfg.ClearFraction <= 0 {
		cfg.ClearFraction = def.ClearFraction
	}
	return &LineOfSight{provider: p, cfg: cfg}
}

func (l *LineOfSight) Config() LOSConfig { return l.cfg }

func (l *LineOfSight) Visible(start, end world.Vector3) bool {
	return l.Explain(start, end).Visible
}

// Explain runs every probe and reports the vote.
func (l *LineOfSight) Explain(start, end world.Vector3) Report {
	r := Report{Distance2D: start.Distance2D(end)}
	r.Probes = make([]Probe, 0, len(losHeightOffsets)*len(losFlagSets)+losMidpoints-1)

	for _, dz := range losHeightOffsets {
		s, e := start, end
		s.Z += dz
		e.Z += dz
		for _, flags := range losFlagSets {
			r.Probes = append(r.Probes, l.probe(s, e, flags))
		}
	}
	for i := 1; i < losMidpoints; i++ {
		mid := start.Lerp(end, float32(i)/losMidpoints)
		r.Probes = append(r.Probes, l.probe(start, mid, world.GameGenericLOS))
	}

	for _, p := range r.Probes {
		if p.Clear {
			r.Clear++
		}
	}
	r.Total = len(r.Probes)
	r.Ratio = float64(r.Clear) / float64(r.Total)
	r.Threshold = l.cfg.FarThreshold
	if float64(r.Distance2D) < l.cfg.Band {
		r.Threshold = l.cfg.NearThreshold
	}
	r.Visible = r.Ratio >= r.Threshold
	return r
}

func (l *LineOfSight) probe(start, end world.Vector3, flags world.IntersectFlags) Probe {
	p := Probe{Start: start, End: end, Flags: flags}
	blocked, frac, err := l.provider.CollisionProbe(start, end, flags)
	if err != nil {
		p.Error = err.Error()
		p.Blocked = true
		return p
	}
	p.Blocked = blocked
	p.HitFraction = frac
	p.Clear = !blocked || float64(frac) >= l.cfg.ClearFraction
	return p
}
