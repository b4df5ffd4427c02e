package operations

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/naughtychas/gitmc-core/internal/gitrepo"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// ProgressHub broadcasts operation progress updates to connected
// WebSocket clients. It implements gitrepo.ProgressSink so a Manager
// subscriber can feed it snapshots without knowing about transport.
type ProgressHub struct {
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*progressClient]struct{}

	register   chan *progressClient
	unregister chan *progressClient
}

// NewProgressHub returns a hub with no connected clients. Call Run in
// its own goroutine to start the registration loop.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*progressClient]struct{}),
		register:   make(chan *progressClient),
		unregister: make(chan *progressClient),
	}
}

// Run processes client registration and unregistration. It takes no
// context and has no stop condition, so it never returns.
func (h *ProgressHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clientsMu.Lock()
			h.clients[c] = struct{}{}
			h.clientsMu.Unlock()
		case c := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.clientsMu.Unlock()
		}
	}
}

// ServeHTTP upgrades the connection and begins pumping progress updates
// to it.
func (h *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &progressClient{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

// Publish implements gitrepo.ProgressSink, fanning update out to every
// connected client as JSON.
func (h *ProgressHub) Publish(update gitrepo.ProgressUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// slow client, drop this update rather than block the publisher
		}
	}
}

// SnapshotToUpdate adapts a Manager Snapshot into the ProgressUpdate
// shape external collaborators subscribe to.
func SnapshotToUpdate(snap Snapshot) gitrepo.ProgressUpdate {
	return gitrepo.ProgressUpdate{
		OperationID: snap.ID,
		CurrentStep: snap.CurrentStep,
		TotalSteps:  snap.TotalSteps,
		Message:     snap.Message,
		Terminal:    snap.Status.Terminal(),
	}
}

type progressClient struct {
	hub  *ProgressHub
	conn *websocket.Conn
	send chan []byte
}

func (c *progressClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *progressClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
