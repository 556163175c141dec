package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/fingerspell/internal/log"
)

const (
	clientBuffer = 8
	writeWait    = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Prediction is the message broadcast for every published prediction.
type Prediction struct {
	Type       string       `json:"type"`
	Letter     string       `json:"letter"`
	Confidence float64      `json:"confidence"`
	Points     [][3]float64 `json:"points,omitempty"`
	Timestamp  int64        `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans predictions out to websocket clients and remembers the latest one.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  *Prediction
	now     func() time.Time
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{}), now: time.Now}
}

// Notify records and broadcasts a prediction. It has the publish.NotifyFunc signature.
// Slow clients drop messages rather than block the caller.
func (h *Hub) Notify(letter string, confidence float64, points [][3]float64) {
	msg := &Prediction{
		Type:       "prediction",
		Letter:     letter,
		Confidence: confidence,
		Points:     points,
		Timestamp:  h.now().UnixMilli(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error(log.Fields{"error": err.Error()}, "failed to encode prediction")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = msg
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Latest returns the last prediction, or nil.
func (h *Hub) Latest() *Prediction {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams predictions until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(log.Fields{"error": err.Error()}, "websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go h.writeLoop(c, done)

	// Reads only detect the close; client messages are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(done)
	conn.Close()
}

func (h *Hub) writeLoop(c *client, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
