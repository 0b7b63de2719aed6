package ws

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/rotationbot/cache"
	"github.com/kasuganosora/rotationbot/config"
	mw "github.com/kasuganosora/rotationbot/middleware"
	"go.uber.org/zap"
)

// maxInbound caps a single control packet. Commands are tiny toggles.
const maxInbound = 16 << 10

// Handler upgrades operator connections on GET /ws.
type Handler struct {
	c        cache.Cache
	sec      config.SecurityConfig
	hub      *Hub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler wires the upgrade endpoint. An empty sec.AllowedOrigins
// accepts any origin.
func NewHandler(c cache.Cache, sec config.SecurityConfig, hub *Hub, router *Router, logger *zap.Logger) *Handler {
	return &Handler{
		c:      c,
		sec:    sec,
		hub:    hub,
		router: router,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originAllowed(sec.AllowedOrigins),
		},
	}
}

func originAllowed(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

// ServeWS authenticates the operator token before upgrading; a rejected
// token never reaches the websocket handshake.
func (h *Handler) ServeWS(c *gin.Context) {
	claims, err := mw.Authenticate(c.Request.Context(), mw.TokenFromRequest(c), h.sec, h.c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("ws upgrade rejected", zap.String("operator", claims.Operator), zap.Error(err))
		return
	}
	conn.SetReadLimit(maxInbound)

	sess := NewSession(claims.Operator, conn, h.logger)
	h.hub.Register(sess)
	defer func() {
		sess.Close()
		h.hub.Unregister(sess)
	}()
	h.serve(sess)
}

func (h *Handler) serve(s *Session) {
	s.setReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.setReadDeadline()
		return nil
	})

	for {
		kind, raw, err := s.Conn.ReadMessage()
		if err != nil {
			h.logClose(s, err)
			return
		}
		s.setReadDeadline()
		if kind != websocket.TextMessage {
			continue
		}
		h.router.Dispatch(s, raw)
	}
}

func (h *Handler) logClose(s *Session, err error) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			h.logger.Debug("ws closed", zap.String("session", s.ID), zap.Int("code", ce.Code))
			return
		}
	}
	h.logger.Warn("ws read ended", zap.String("session", s.ID), zap.String("operator", s.Operator), zap.Error(err))
}
