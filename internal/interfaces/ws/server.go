// Package ws is the wire-level session endpoint: it upgrades HTTP requests
// to duplex WebSocket sessions, binds each to a broadcast subscription, and
// runs the read/write pumps with heartbeats, idle timeouts, and bounded
// drains.
package ws

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codegraph-backend/internal/broadcast"
	domainevents "codegraph-backend/internal/domain/events"
)

// Options tune session timing. Zero values take the defaults below.
type Options struct {
	Heartbeat     time.Duration // server heartbeat when idle (default 30s)
	IdleTimeout   time.Duration // close after no client frame (default 2x heartbeat)
	WriteDeadline time.Duration // per-frame write budget (default 5s)
	DrainDeadline time.Duration // best-effort flush budget on close (default 5s)
	CheckOrigin   func(r *http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.Heartbeat <= 0 {
		o.Heartbeat = 30 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 2 * o.Heartbeat
	}
	if o.WriteDeadline <= 0 {
		o.WriteDeadline = 5 * time.Second
	}
	if o.DrainDeadline <= 0 {
		o.DrainDeadline = 5 * time.Second
	}
	return o
}

// Server handles the /ws/events endpoints.
type Server struct {
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
	opts     Options
	logger   *zap.Logger
}

// NewServer creates the session endpoint over the broadcast hub.
func NewServer(hub *broadcast.Hub, opts Options, logger *zap.Logger) *Server {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		opts:   opts,
		logger: logger,
	}
}

// HandleEvents serves GET /ws/events. An optional lastSeenId query
// parameter resumes delivery from the journal.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	s.handle(w, r, nil)
}

// HandleFiltered serves GET /ws/events/filtered. The initial event-type
// whitelist comes from the comma-separated types query parameter.
func (s *Server) HandleFiltered(w http.ResponseWriter, r *http.Request) {
	s.handle(w, r, parseTypes(r.URL.Query().Get("types")))
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request, filter []domainevents.Type) {
	lastSeen, err := parseLastSeen(r.URL.Query().Get("lastSeenId"))
	if err != nil {
		http.Error(w, "invalid lastSeenId", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			zap.Error(err), zap.String("remoteAddr", r.RemoteAddr))
		return
	}

	sessionID := uuid.New().String()
	sub, err := s.hub.Subscribe(sessionID, filter, lastSeen)
	if err != nil {
		s.logger.Error("subscribe failed", zap.String("sessionId", sessionID), zap.Error(err))
		_ = conn.Close()
		return
	}

	sess := newSession(sessionID, conn, sub, s.hub, s.opts, s.logger)
	go sess.writePump()
	go sess.readPump()

	s.logger.Info("session established",
		zap.String("sessionId", sessionID),
		zap.String("remoteAddr", r.RemoteAddr),
		zap.Uint64("lastSeenId", lastSeen),
		zap.Int("filterTypes", len(filter)))
}

func parseLastSeen(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func parseTypes(raw string) []domainevents.Type {
	if raw == "" {
		return nil
	}
	var types []domainevents.Type
	for _, part := range strings.Split(raw, ",") {
		t := domainevents.Type(strings.TrimSpace(part))
		if t.Valid() {
			types = append(types, t)
		}
	}
	return types
}
