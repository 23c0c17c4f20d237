package ws

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codegraph-backend/internal/broadcast"
	domainevents "codegraph-backend/internal/domain/events"
)

const maxFrameSize = 64 * 1024

// controlFrame is the shared shape of client and server control frames.
type controlFrame struct {
	Control    string   `json:"control"`
	LastSeenID uint64   `json:"lastSeenId,omitempty"`
	Types      []string `json:"types,omitempty"`
}

// session couples one WebSocket connection to one hub subscription. The
// write pump is the only goroutine writing frames; the read pump is the
// only reader. Either pump exiting tears the session down via unsubscribe,
// which closes the queue and stops the other pump.
type session struct {
	id     string
	conn   *websocket.Conn
	sub    *broadcast.Subscriber
	hub    *broadcast.Hub
	opts   Options
	logger *zap.Logger
}

func newSession(id string, conn *websocket.Conn, sub *broadcast.Subscriber, hub *broadcast.Hub, opts Options, logger *zap.Logger) *session {
	return &session{
		id:   id,
		conn: conn,
		sub:  sub,
		hub:  hub,
		opts: opts,
		logger: logger.With(
			zap.String("sessionId", id),
		),
	}
}

// writePump serializes envelopes to the wire and heartbeats when idle.
func (s *session) writePump() {
	ticker := time.NewTicker(s.opts.Heartbeat)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
		s.logger.Debug("write pump stopped")
	}()

	lastWrite := time.Now()
	for {
		select {
		case env, ok := <-s.sub.Events():
			if !ok {
				// Subscriber removed; say goodbye best-effort.
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteDeadline))
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.writeEnvelope(env); err != nil {
				s.logger.Warn("frame write failed", zap.Error(err))
				s.hub.Unsubscribe(s.id)
				return
			}
			lastWrite = time.Now()

		case <-s.sub.Draining():
			s.drain()
			s.hub.Unsubscribe(s.id)
			return

		case <-ticker.C:
			if time.Since(lastWrite) < s.opts.Heartbeat {
				continue
			}
			if err := s.writeControl(broadcast.ControlHeartbeat); err != nil {
				s.logger.Warn("heartbeat write failed", zap.Error(err))
				s.hub.Unsubscribe(s.id)
				return
			}
			lastWrite = time.Now()
		}
	}
}

// drain flushes queued envelopes best-effort until the queue empties or the
// drain deadline elapses.
func (s *session) drain() {
	deadline := time.Now().Add(s.opts.DrainDeadline)
	for time.Now().Before(deadline) {
		select {
		case env, ok := <-s.sub.Events():
			if !ok {
				return
			}
			if err := s.writeEnvelope(env); err != nil {
				return
			}
		default:
			// Queue empty; the hub stops enqueuing once draining.
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteDeadline))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "draining complete"))
			return
		}
	}
}

func (s *session) writeEnvelope(env broadcast.Envelope) error {
	if env.Event != nil {
		return s.writeJSON(env.Event)
	}
	return s.writeControl(env.Control)
}

func (s *session) writeControl(name string) error {
	return s.writeJSON(controlFrame{Control: name})
}

func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteDeadline)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// readPump consumes client control frames and enforces the idle timeout.
func (s *session) readPump() {
	defer func() {
		s.hub.Unsubscribe(s.id)
		_ = s.conn.Close()
		s.logger.Debug("read pump stopped")
	}()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("read error", zap.Error(err))
			}
			return
		}
		// Any client frame proves liveness.
		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		s.handleFrame(bytes.TrimSpace(message))
	}
}

func (s *session) handleFrame(message []byte) {
	var frame controlFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		s.logger.Debug("unparseable client frame", zap.ByteString("frame", message))
		return
	}

	switch frame.Control {
	case "ping":
		// Liveness only; the read deadline reset above is the effect.
	case "ack":
		s.sub.Ack(frame.LastSeenID)
	case "subscribe_filter":
		types := make([]domainevents.Type, 0, len(frame.Types))
		for _, raw := range frame.Types {
			t := domainevents.Type(raw)
			if t.Valid() {
				types = append(types, t)
			}
		}
		s.sub.SetFilter(types)
		s.logger.Info("filter updated", zap.Int("types", len(types)))
	default:
		s.logger.Debug("unknown control frame", zap.String("control", frame.Control))
	}
}
