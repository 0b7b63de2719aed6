package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kasuganosora/rotationbot/game/fishing"
	"github.com/kasuganosora/rotationbot/game/rotation"
	"github.com/kasuganosora/rotationbot/game/target"
	"go.uber.org/zap"
)

// Commands are the operator actions available over the control channel.
type Commands struct {
	ctx     context.Context // lifetime of workers started from a console
	engine  *rotation.Engine
	cls     *target.Classifier
	fishing *fishing.Bot
	logger  *zap.Logger
}

// NewCommands creates the command set. fish may be nil.
func NewCommands(ctx context.Context, engine *rotation.Engine, cls *target.Classifier, fish *fishing.Bot, logger *zap.Logger) *Commands {
	return &Commands{ctx: ctx, engine: engine, cls: cls, fishing: fish, logger: logger}
}

// Status is the reply to "status" and to every state-changing command.
type Status struct {
	Rotation     bool   `json:"rotation"`
	Profile      string `json:"profile,omitempty"`
	GroupContest bool   `json:"group_contest"`
	Fishing      bool   `json:"fishing"`
}

type toggle struct {
	Enabled *bool `json:"enabled"`
}

func decodeToggle(payload json.RawMessage) (bool, error) {
	var t toggle
	if err := json.Unmarshal(payload, &t); err != nil || t.Enabled == nil {
		return false, fmt.Errorf("%w: want {\"enabled\": bool}", ErrBadPayload)
	}
	return *t.Enabled, nil
}

// RegisterHandlers binds every command to r.
func (c *Commands) RegisterHandlers(r *Router) {
	r.On("ping", func(_ context.Context, s *Session, _ json.RawMessage) error {
		s.Send("pong", nil)
		return nil
	})
	r.On("status", c.handleStatus)
	r.On("rotation", c.handleRotation)
	r.On("group_mode", c.handleGroupMode)
	r.On("fishing", c.handleFishing)
}

func (c *Commands) status() Status {
	st := Status{Rotation: c.engine.Enabled(), GroupContest: c.cls.GroupContestMode()}
	if p := c.engine.Profile(); p != nil {
		st.Profile = p.Name
	}
	if c.fishing != nil {
		st.Fishing = c.fishing.Running()
	}
	return st
}

func (c *Commands) handleStatus(_ context.Context, s *Session, _ json.RawMessage) error {
	s.Send("status", c.status())
	return nil
}

func (c *Commands) handleRotation(_ context.Context, s *Session, payload json.RawMessage) error {
	on, err := decodeToggle(payload)
	if err != nil {
		return err
	}
	c.engine.SetEnabled(on)
	c.logger.Info("rotation toggled", zap.Bool("enabled", on), zap.String("operator", s.Operator))
	s.Send("status", c.status())
	return nil
}

func (c *Commands) handleGroupMode(_ context.Context, s *Session, payload json.RawMessage) error {
	on, err := decodeToggle(payload)
	if err != nil {
		return err
	}
	c.cls.SetGroupContestMode(on)
	s.Send("status", c.status())
	return nil
}

func (c *Commands) handleFishing(_ context.Context, s *Session, payload json.RawMessage) error {
	if c.fishing == nil {
		return fmt.Errorf("fishing disabled")
	}
	on, err := decodeToggle(payload)
	if err != nil {
		return err
	}
	if on {
		c.fishing.Start(c.ctx)
	} else {
		c.fishing.Stop()
	}
	s.Send("status", c.status())
	return nil
}
