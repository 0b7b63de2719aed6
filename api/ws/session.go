package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 64
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
)

// Packet is the envelope for every message in both directions.
type Packet struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one connected operator console.
type Session struct {
	ID       string
	Operator string
	Conn     *websocket.Conn

	sendCh chan []byte
	done   chan struct{}

	mu      sync.Mutex
	lastSeq uint64
	logger  *zap.Logger
}

// NewSession creates a Session and starts its write goroutine. A nil conn
// gives a detached session whose outgoing packets stay queued, which tests use.
func NewSession(operator string, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		Operator: operator,
		Conn:     conn,
		sendCh:   make(chan []byte, sendChanBuf),
		done:     make(chan struct{}),
		logger:   logger,
	}
	if conn != nil {
		go s.writePump()
	}
	return s
}

// writePump drains the send queue and pings the console so dead
// connections are noticed.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data := <-s.sendCh:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error", zap.String("session", s.ID), zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes a packet and queues it without blocking. A full queue drops
// the packet; a slow console misses decisions rather than stalling the hub.
func (s *Session) Send(msgType string, payload interface{}) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error("ws encode failed", zap.String("type", msgType), zap.Error(err))
			return
		}
		raw = b
	}
	data, err := json.Marshal(Packet{Type: msgType, Payload: raw})
	if err != nil {
		return
	}
	s.SendRaw(data)
}

// SendRaw queues pre-encoded bytes without blocking.
func (s *Session) SendRaw(data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.sendCh <- data:
	case <-s.done:
	default:
		s.logger.Warn("ws send queue full, dropping packet", zap.String("session", s.ID))
	}
}

// Close signals the write goroutine to shut down. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Session) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} { return s.done }

// acceptSeq enforces monotonic sequence numbers. Seq 0 is untracked.
func (s *Session) acceptSeq(seq uint64) bool {
	if seq == 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.lastSeq {
		return false
	}
	s.lastSeq = seq
	return true
}

func (s *Session) setReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
