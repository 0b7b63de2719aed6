package rest

import (
	"github.com/kasuganosora/rotationbot/game/skill"
	"github.com/kasuganosora/rotationbot/game/world"
)

// objectView is the JSON shape of a snapshot object.
type objectView struct {
	GUID       world.GUID            `json:"guid"`
	Type       string                `json:"type"`
	Name       string                `json:"name"`
	Position   world.Vector3         `json:"position"`
	Facing     float32               `json:"facing"`
	Distance   *float32              `json:"distance,omitempty"`
	Unit       *world.UnitInfo       `json:"unit,omitempty"`
	Player     *world.PlayerInfo     `json:"player,omitempty"`
	GameObject *world.GameObjectInfo `json:"game_object,omitempty"`
	Auras      []skill.Aura          `json:"auras,omitempty"`
}

func newObjectView(o, from *world.Object) objectView {
	v := objectView{
		GUID:       o.GUID,
		Type:       o.Type.String(),
		Name:       o.Name,
		Position:   o.Position,
		Facing:     o.Facing,
		Unit:       o.AsUnit(),
		Player:     o.AsPlayer(),
		GameObject: o.AsGameObject(),
	}
	if from != nil && from.GUID != o.GUID {
		d := o.DistanceTo(from)
		v.Distance = &d
	}
	return v
}
