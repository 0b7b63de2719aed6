package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { return zap.NewNop() }

func makePacket(t *testing.T, seq uint64, msgType string, payload interface{}) []byte {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = b
	}
	b, err := json.Marshal(Packet{Seq: seq, Type: msgType, Payload: raw})
	require.NoError(t, err)
	return b
}

// nextPacket pops one queued packet from a detached session.
func nextPacket(t *testing.T, s *Session) Packet {
	t.Helper()
	select {
	case data := <-s.sendCh:
		var p Packet
		require.NoError(t, json.Unmarshal(data, &p))
		return p
	case <-time.After(time.Second):
		t.Fatal("no packet queued")
		return Packet{}
	}
}

func assertNoPacket(t *testing.T, s *Session) {
	t.Helper()
	select {
	case data := <-s.sendCh:
		t.Fatalf("unexpected packet %s", data)
	default:
	}
}

// ---- Router ----

func TestRouter_Dispatch_Basic(t *testing.T) {
	r := NewRouter(nop())
	var got string
	r.On("echo", func(_ context.Context, _ *Session, payload json.RawMessage) error {
		got = string(payload)
		return nil
	})

	s := NewSession("op", nil, nop())
	r.Dispatch(s, makePacket(t, 1, "echo", map[string]int{"n": 1}))
	assert.Equal(t, `{"n":1}`, got)
	assertNoPacket(t, s)
}

func TestRouter_Dispatch_MalformedJSON(t *testing.T) {
	r := NewRouter(nop())
	s := NewSession("op", nil, nop())
	r.Dispatch(s, []byte("not json"))

	p := nextPacket(t, s)
	assert.Equal(t, "error", p.Type)
	assert.Contains(t, string(p.Payload), "malformed")
}

func TestRouter_Dispatch_UnknownType(t *testing.T) {
	r := NewRouter(nop())
	s := NewSession("op", nil, nop())
	r.Dispatch(s, makePacket(t, 0, "mystery", nil))

	p := nextPacket(t, s)
	assert.Equal(t, "error", p.Type)
	var e errorPayload
	require.NoError(t, json.Unmarshal(p.Payload, &e))
	assert.Equal(t, "mystery", e.Type)
}

func TestRouter_Dispatch_HandlerError(t *testing.T) {
	r := NewRouter(nop())
	r.On("fail", func(context.Context, *Session, json.RawMessage) error {
		return errors.New("boom")
	})
	s := NewSession("op", nil, nop())
	r.Dispatch(s, makePacket(t, 0, "fail", nil))

	var e errorPayload
	require.NoError(t, json.Unmarshal(nextPacket(t, s).Payload, &e))
	assert.Equal(t, "boom", e.Error)
}

func TestRouter_Dispatch_RejectsReplayedSeq(t *testing.T) {
	r := NewRouter(nop())
	calls := 0
	r.On("tick", func(context.Context, *Session, json.RawMessage) error {
		calls++
		return nil
	})
	s := NewSession("op", nil, nop())

	r.Dispatch(s, makePacket(t, 5, "tick", nil))
	r.Dispatch(s, makePacket(t, 5, "tick", nil))
	r.Dispatch(s, makePacket(t, 3, "tick", nil))
	r.Dispatch(s, makePacket(t, 6, "tick", nil))
	// seq 0 is never tracked
	r.Dispatch(s, makePacket(t, 0, "tick", nil))
	assert.Equal(t, 3, calls)
}

// ---- Session ----

func TestSession_Close_Idempotent(t *testing.T) {
	s := NewSession("op", nil, nop())
	assert.False(t, s.IsClosed())
	s.Close()
	s.Close()
	assert.True(t, s.IsClosed())

	s.Send("status", nil)
	assertNoPacket(t, s)
}

func TestSession_Send_DropsWhenFull(t *testing.T) {
	s := NewSession("op", nil, nop())
	for i := 0; i < sendChanBuf+10; i++ {
		s.Send("decision", i)
	}
	assert.Len(t, s.sendCh, sendChanBuf)
}
