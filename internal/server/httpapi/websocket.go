package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/proto"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// wsConn adapts a WebSocket to signaling.Conn. gorilla allows one concurrent
// writer, so Send is serialized.
type wsConn struct {
	id string
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(env *proto.Envelope) error {
	b, err := env.Marshal()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (s *HTTPServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	ctx := r.Context()
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()
	conn := &wsConn{id: uuid.NewString(), ws: ws}
	logger := s.logger.With("conn", conn.ID())
	logger.Info(ctx, "websocket opened", "remote", r.RemoteAddr)

	defer s.coordinator.Disconnect(ctx, conn)

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn(ctx, "websocket read failed", "error", err)
			}
			logger.Info(ctx, "websocket closed")
			return
		}
		if kind != websocket.TextMessage {
			logger.Warn(ctx, "dropping non-text frame")
			continue
		}

		env, err := proto.ParseEnvelope(data)
		if err != nil {
			logger.Warn(ctx, "dropping malformed frame", "error", err)
			continue
		}

		s.coordinator.Handle(ctx, conn, env)
	}
}
