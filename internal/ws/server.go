// Package ws pushes maintenance state changes to connected admin consoles over Socket.IO.
package ws

import (
	"context"
	"net/http"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/sirupsen/logrus"
)

// Event names
const (
	EventConnected = "connected"
	EventStatus    = "maintenance:status"
	EventUpdate    = "maintenance:update"
)

// SnapshotFunc returns the document sent to a client right after it connects
type SnapshotFunc func(ctx context.Context) interface{}

// Server wraps the Socket.IO server
type Server struct {
	io     *socketio.Server
	logger *logrus.Entry
}

// NewServer creates the Socket.IO server. snapshot may be nil.
func NewServer(snapshot SnapshotFunc, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", "ws")

	allowAll := func(r *http.Request) bool { return true }
	io := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{CheckOrigin: allowAll},
			&websocket.Transport{CheckOrigin: allowAll},
		},
	})

	io.OnConnect("/", func(s socketio.Conn) error {
		logger.WithField("conn", s.ID()).Debug("client connected")
		s.Emit(EventConnected, map[string]interface{}{"ok": true})
		if snapshot != nil {
			s.Emit(EventStatus, snapshot(context.Background()))
		}
		return nil
	})

	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		logger.WithFields(logrus.Fields{"conn": s.ID(), "reason": reason}).Debug("client disconnected")
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		entry := logger.WithError(e)
		if s != nil {
			entry = entry.WithField("conn", s.ID())
		}
		entry.Warn("socket error")
	})

	return &Server{io: io, logger: logger}
}

// Start serves the engine loop in the background
func (s *Server) Start() {
	go func() {
		if err := s.io.Serve(); err != nil {
			s.logger.WithError(err).Error("socket.io server stopped")
		}
	}()
	s.logger.Info("socket.io server started")
}

// Close shuts the server down
func (s *Server) Close() error {
	return s.io.Close()
}

// Handler returns the HTTP handler, guarded by operator token checks
func (s *Server) Handler() http.Handler {
	return WrapWithAuth(s.io, s.logger)
}

// BroadcastToAll broadcasts a message to all connected clients
func (s *Server) BroadcastToAll(event string, data interface{}) {
	s.io.BroadcastToNamespace("/", event, data)
}
