package sse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rotationbot/cache"
	"github.com/kasuganosora/rotationbot/config"
	"github.com/kasuganosora/rotationbot/game/bot"
	mw "github.com/kasuganosora/rotationbot/middleware"
	"go.uber.org/zap"
)

const keepaliveInterval = 30 * time.Second

// Handler streams dispatched rotation decisions as server-sent events.
// It is the read-only sibling of the /ws channel for dashboards that only
// watch.
type Handler struct {
	pubsub    cache.PubSub
	sec       config.SecurityConfig
	c         cache.Cache
	keepalive time.Duration
	logger    *zap.Logger
}

func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, keepalive: keepaliveInterval, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>. Each decision published on
// bot.DecisionChannel is forwarded as a "decision" event.
func (h *Handler) ServeSSE(c *gin.Context) {
	ctx := c.Request.Context()
	claims, err := mw.Authenticate(ctx, mw.TokenFromRequest(c), h.sec, h.c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	streamCtx, stop := context.WithCancel(ctx)
	defer stop()
	decisions, unsub, err := h.pubsub.Subscribe(streamCtx, bot.DecisionChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("operator", claims.Operator), zap.Error(err))
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	defer unsub()

	hdr := c.Writer.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.logger.Debug("sse stream opened", zap.String("operator", claims.Operator))
	emit(c, "connected", fmt.Sprintf(`{"operator":%q}`, claims.Operator))

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-decisions:
			if !ok {
				return
			}
			emit(c, "decision", msg.Payload)
		case <-keepalive.C:
			_, _ = io.WriteString(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}

func emit(c *gin.Context, event, data string) {
	_, _ = fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
	c.Writer.Flush()
}
