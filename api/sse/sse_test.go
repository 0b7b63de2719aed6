package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/rotationbot/config"
	"github.com/kasuganosora/rotationbot/game/bot"
	mw "github.com/kasuganosora/rotationbot/middleware"
	"github.com/kasuganosora/rotationbot/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// readEvent returns the next "event:" name and its data line.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestServeSSE_StreamsDecisions(t *testing.T) {
	c, ps := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: "sse-secret"}
	h := NewHandler(ps, c, sec, zap.NewNop())
	h.keepalive = 20 * time.Millisecond

	r := gin.New()
	r.GET("/sse", h.ServeSSE)
	srv := httptest.NewServer(r)
	defer srv.Close()

	tok, err := mw.GenerateToken("watcher", sec.JWTSecret, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse?token="+tok, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	br := bufio.NewReader(resp.Body)
	event, data := readEvent(t, br)
	assert.Equal(t, "connected", event)
	assert.Contains(t, data, "watcher")

	// The subscription exists before "connected" is written.
	require.NoError(t, ps.Publish(context.Background(), bot.DecisionChannel, `{"spell_id":133}`))
	event, data = readEvent(t, br)
	assert.Equal(t, "decision", event)
	assert.Equal(t, `{"spell_id":133}`, data)
}

func TestServeSSE_RejectsBadToken(t *testing.T) {
	c, ps := testutil.SetupTestCache(t)
	h := NewHandler(ps, c, config.SecurityConfig{JWTSecret: "sse-secret"}, zap.NewNop())
	r := gin.New()
	r.GET("/sse", h.ServeSSE)

	for _, target := range []string{"/sse", "/sse?token=nope"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)
	}
}
