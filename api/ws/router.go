package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	mw "github.com/kasuganosora/rotationbot/middleware"
	"go.uber.org/zap"
)

// ErrBadPayload is returned by handlers that cannot decode their payload.
var ErrBadPayload = errors.New("ws: bad payload")

// HandlerFunc processes a decoded packet payload.
type HandlerFunc func(ctx context.Context, s *Session, payload json.RawMessage) error

// Router dispatches incoming packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{handlers: make(map[string]HandlerFunc), logger: logger}
}

// On registers fn for msgType, replacing any earlier handler.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes, rejects replayed sequence numbers and invokes
// the handler. Handler errors are reported back to the session as an
// "error" packet.
func (r *Router) Dispatch(s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet", zap.String("session", s.ID), zap.Error(err))
		s.Send("error", errorPayload{Error: "malformed packet"})
		return
	}
	if !s.acceptSeq(pkt.Seq) {
		r.logger.Warn("replayed or out-of-order packet",
			zap.String("session", s.ID), zap.Uint64("seq", pkt.Seq))
		return
	}

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type", zap.String("type", pkt.Type), zap.String("session", s.ID))
		s.Send("error", errorPayload{Type: pkt.Type, Error: "unknown message type"})
		return
	}

	traceID := uuid.NewString()
	ctx := mw.WithTraceID(context.Background(), traceID)
	if err := fn(ctx, s, pkt.Payload); err != nil {
		r.logger.Warn("handler error",
			zap.String("type", pkt.Type),
			zap.String("operator", s.Operator),
			zap.String("trace_id", traceID),
			zap.Error(err))
		s.Send("error", errorPayload{Type: pkt.Type, Error: err.Error()})
	}
}

type errorPayload struct {
	Type  string `json:"type,omitempty"`
	Error string `json:"error"`
}
