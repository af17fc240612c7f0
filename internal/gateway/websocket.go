package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"cashew/internal/ledger"
)

// wsHub fans every newly appended ledger event out to connected WebSocket
// clients, supplementing spec §9's note that "Gateway<->ledger...
// currently communicate via stored callbacks" with the explicit
// subscribe/publish channel it recommends instead: the hub only ever
// pulls from ledger.Subscribe() and never retains an observer closure.
type wsHub struct {
	log *logrus.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	stopCh chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func newWSHub(log *logrus.Logger) *wsHub {
	return &wsHub{log: log, clients: make(map[*websocket.Conn]struct{}), stopCh: make(chan struct{})}
}

type wsEvent struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"`
	SourceNode string `json:"source_node"`
	Timestamp  int64  `json:"timestamp"`
	Epoch      uint64 `json:"epoch"`
}

func toWSEvent(e *ledger.Event) wsEvent {
	return wsEvent{
		EventID:    e.EventID.String(),
		Type:       e.Type.String(),
		SourceNode: e.SourceNode.String(),
		Timestamp:  e.Timestamp,
		Epoch:      e.Epoch,
	}
}

// run forwards every event off ch to all connected clients until stop is
// called or ch closes.
func (h *wsHub) run(ch <-chan *ledger.Event) {
	for {
		select {
		case <-h.stopCh:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(toWSEvent(e))
		}
	}
}

func (h *wsHub) broadcast(ev wsEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *wsHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *wsHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *wsHub) stop() {
	close(h.stopCh)
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// handleWebSocket implements GET /ws/events: upgrades the connection and
// streams every subsequent ledger event as JSON until the client
// disconnects. It never reads application messages from the client beyond
// the handshake.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("gateway: websocket upgrade failed")
		return
	}
	s.hub.add(conn)
	defer s.hub.remove(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
