package transport

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"kimp/internal/hub"
	"kimp/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsSubscriber adapts one websocket connection to the hub. Writes are
// serialized with a mutex since Broadcast may run concurrently with
// disconnect handling.
type wsSubscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsSubscriber) Send(evt hub.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(evt)
}

// handleWS upgrades the connection and registers it with the hub. The
// read loop exists only to detect disconnects; inbound frames are
// discarded.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	sub := &wsSubscriber{conn: conn}
	s.events.Subscribe(sub)
	logger.Infof("websocket client connected (%d total)", s.events.Count())

	go func() {
		defer func() {
			s.events.Unsubscribe(sub)
			conn.Close()
			logger.Infof("websocket client disconnected (%d total)", s.events.Count())
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
