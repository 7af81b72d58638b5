// Package telemetry broadcasts pose/session snapshots to connected
// websocket debug clients. It sits off the critical path: the control
// loop pushes a snapshot once per tick and never blocks on a slow or
// absent subscriber.
package telemetry

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"tire/control"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeTimeout = 2 * time.Second

// snapshotPayload is the JSON shape pushed to every connected client.
type snapshotPayload struct {
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	Theta        float64  `json:"theta"`
	IsNavigating bool     `json:"is_navigating"`
	Path         []string `json:"path,omitempty"`
	LastCue      string   `json:"last_cue,omitempty"`
	Time         string   `json:"time"`
}

// Hub tracks connected debug clients and fans out snapshots to them. Its
// register/unregister/broadcast channels are owned exclusively by Run,
// so Hub never touches control-loop state directly.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	log *log.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub constructs an idle Hub; call Run in its own goroutine to start
// serving.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 8),
		log:        log.New(os.Stderr, "[telemetry] ", log.LstdFlags),
	}
}

// Run services the register/unregister/broadcast channels until the
// process exits. Must run in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow client, drop it rather than block the hub
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish encodes a snapshot and enqueues it for broadcast. Non-blocking:
// if the hub's broadcast buffer is full the snapshot is dropped rather
// than stall the control loop's tick.
func (h *Hub) Publish(snap control.TelemetrySnapshot) {
	payload := snapshotPayload{
		X:            snap.Pose.X,
		Y:            snap.Pose.Y,
		Theta:        snap.Pose.Theta,
		IsNavigating: snap.IsNavigating,
		Path:         snap.Path,
		LastCue:      snap.LastCue,
		Time:         time.Now().UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		h.log.Printf("marshal snapshot: %v", err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.log.Println("broadcast buffer full, dropping snapshot")
	}
}

// ServeWS upgrades an HTTP request to a websocket connection and
// registers it with the hub. It never reads application messages from
// the client — this is a one-way pose feed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 8)}
	h.register <- c
	go h.writePump(c)
	go h.readPump(c)
}

// readPump exists only to detect client disconnects (gorilla requires
// a reader to notice close frames) and unregister the client.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Printf("websocket read error: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Printf("websocket write error: %v", err)
			return
		}
	}
}
