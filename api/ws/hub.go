package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kasuganosora/rotationbot/cache"
	"github.com/kasuganosora/rotationbot/game/bot"
	"go.uber.org/zap"
)

// Hub tracks connected sessions and fans decisions out to them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{sessions: make(map[string]*Session), logger: logger}
}

func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
	h.logger.Info("ws session registered", zap.String("session", s.ID), zap.String("operator", s.Operator))
}

func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.ID)
	h.logger.Info("ws session unregistered", zap.String("session", s.ID))
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast sends one pre-encoded packet to every session.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	for _, s := range targets {
		s.SendRaw(data)
	}
}

// CloseAll closes every session.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		s.Close()
		delete(h.sessions, id)
	}
}

// Start subscribes to bot.DecisionChannel and forwards every decision as a
// "decision" packet until ctx is cancelled. The subscription is live when
// Start returns.
func (h *Hub) Start(ctx context.Context, ps cache.PubSub) error {
	msgs, unsub, err := ps.Subscribe(ctx, bot.DecisionChannel)
	if err != nil {
		return err
	}
	go h.forward(ctx, msgs, unsub)
	return nil
}

func (h *Hub) forward(ctx context.Context, msgs <-chan *cache.Message, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			data, err := json.Marshal(Packet{Type: "decision", Payload: json.RawMessage(msg.Payload)})
			if err != nil {
				h.logger.Warn("bad decision payload", zap.Error(err))
				continue
			}
			h.Broadcast(data)
		}
	}
}
