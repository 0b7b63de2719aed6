package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kasuganosora/rotationbot/game/world"
)

// Relation scripts one directed reaction.
type Relation struct {
	From     world.GUID `json:"from"`
	To       world.GUID `json:"to"`
	Reaction int        `json:"reaction"`
}

// Cooldown presets an oracle value.
type Cooldown struct {
	SpellID     uint32 `json:"spell_id"`
	RemainingMs int64  `json:"remaining_ms"`
}

// Scenario is the JSON document accepted by LoadScenario.
type Scenario struct {
	InWorld         bool             `json:"in_world"`
	LocalPlayer     world.GUID       `json:"local_player"`
	CurrentTarget   world.GUID       `json:"current_target"`
	GameTimeMs      uint32           `json:"game_time_ms"`
	State           string           `json:"state"`
	DefaultReaction int              `json:"default_reaction"`
	Units           []UnitSpec       `json:"units"`
	GameObjects     []GameObjectSpec `json:"game_objects"`
	Relations       []Relation       `json:"relations"`
	Cooldowns       []Cooldown       `json:"cooldowns"`
}

// LoadScenario decodes a scenario and applies it on top of the current world.
func (w *World) LoadScenario(r io.Reader) error {
	var sc Scenario
	if err := json.NewDecoder(r).Decode(&sc); err != nil {
		return fmt.Errorf("sim: decode scenario: %w", err)
	}
	w.Apply(sc)
	return nil
}

// LoadScenarioFile is LoadScenario over a file path.
func (w *World) LoadScenarioFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("sim: open scenario: %w", err)
	}
	defer f.Close()
	return w.LoadScenario(f)
}

// Apply installs every entity and setting in sc.
func (w *World) Apply(sc Scenario) {
	for _, u := range sc.Units {
		w.AddUnit(u)
	}
	for _, g := range sc.GameObjects {
		w.AddGameObject(g)
	}
	for _, r := range sc.Relations {
		w.SetRelation(r.From, r.To, r.Reaction)
	}
	for _, c := range sc.Cooldowns {
		w.SetCooldown(c.SpellID, c.RemainingMs)
	}
	if sc.DefaultReaction > 0 {
		w.SetDefaultRelation(sc.DefaultReaction)
	}
	if sc.State != "" {
		w.SetStateString(sc.State)
	}
	w.SetGameTime(sc.GameTimeMs)
	w.SetLocalPlayer(sc.LocalPlayer)
	w.SetCurrentTarget(sc.CurrentTarget)
	w.SetInWorld(sc.InWorld)
}
