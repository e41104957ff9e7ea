package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/kurtismassey/project-stargate/internal/models"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBufferSize = 256
)

// Conn is one live websocket connection. It belongs to at most one room at a
// time; rejoin replaces membership.
type Conn struct {
	ID   string
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	mu   sync.Mutex // guards room
	room *Room

	sendMu     sync.Mutex // guards send against concurrent close
	sendClosed bool

	closeOnce sync.Once
}

func newConn(h *Hub, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:   ksuid.New().String(),
		hub:  h,
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
	}
}

// Room returns the conn's current room, or nil.
func (c *Conn) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Conn) setRoom(r *Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}

// trySend queues an outbound frame without blocking. Returns false when the
// buffer is full (a slow or dead client) or the connection already closed.
// Single-conn sends can race close() from another goroutine, so the send
// channel is only touched under sendMu while the closed flag is false.
func (c *Conn) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// sendJSON marshals and queues a frame for this connection only.
func (c *Conn) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to marshal outbound event: %v", err)
		return
	}
	if !c.trySend(data) {
		log.Printf("⚠️  Connection %s buffer full, dropping frame", c.ID)
	}
}

// close tears the connection down exactly once.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.hub.Leave(c)

		c.sendMu.Lock()
		c.sendClosed = true
		close(c.send)
		c.sendMu.Unlock()

		if c.ws != nil {
			c.ws.Close()
		}
	})
}

// ReadPump reads inbound events until the connection drops. Relay events are
// dispatched synchronously so a room sees them in arrival order.
func (c *Conn) ReadPump() {
	defer c.close()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		c.dispatch(message)
	}
}

// dispatch routes one inbound frame. Malformed frames are dropped with a
// warning; the connection stays open.
func (c *Conn) dispatch(message []byte) {
	var envelope models.Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		log.Printf("Dropping malformed frame from %s: %v", c.ID, err)
		return
	}

	switch envelope.Type {
	case models.EventJoinSession:
		var p models.JoinPayload
		if err := json.Unmarshal(message, &p); err != nil || p.SessionID == "" {
			log.Printf("Dropping bad joinSession from %s", c.ID)
			return
		}
		c.hub.Join(c, p.SessionID)

	case models.EventDraw:
		var p models.DrawPayload
		if err := json.Unmarshal(message, &p); err != nil {
			log.Printf("Dropping bad draw from %s", c.ID)
			return
		}
		c.hub.handleDraw(c, p, message)

	case models.EventClear:
		var p models.ClearPayload
		if err := json.Unmarshal(message, &p); err != nil {
			log.Printf("Dropping bad clear from %s", c.ID)
			return
		}
		c.hub.handleClear(c, p, message)

	case models.EventSyncStage:
		var p models.SyncStagePayload
		if err := json.Unmarshal(message, &p); err != nil {
			log.Printf("Dropping bad syncStage from %s", c.ID)
			return
		}
		c.hub.handleSyncStage(c, p)

	case models.EventStageSnapshot:
		var p models.SnapshotPayload
		if err := json.Unmarshal(message, &p); err != nil {
			log.Printf("Dropping bad stageSnapshot from %s", c.ID)
			return
		}
		c.hub.handleSnapshot(c, p)

	case models.EventChatOnly:
		var p models.ChatPayload
		if err := json.Unmarshal(message, &p); err != nil {
			log.Printf("Dropping bad chatOnly from %s", c.ID)
			return
		}
		go c.hub.handleChat(c, p)

	case models.EventSketchAndChat:
		var p models.ChatPayload
		if err := json.Unmarshal(message, &p); err != nil {
			log.Printf("Dropping bad sketchAndChat from %s", c.ID)
			return
		}
		go c.hub.handleChat(c, p)

	case models.EventCompleteSession:
		var p models.CompletePayload
		if err := json.Unmarshal(message, &p); err != nil {
			log.Printf("Dropping bad completeSession from %s", c.ID)
			return
		}
		go c.hub.handleCompleteSession(c, p)

	default:
		log.Printf("Dropping unknown event type %q from %s", envelope.Type, c.ID)
	}
}

// WritePump drains the send channel to the socket and keeps the connection
// alive with pings. One writer goroutine per connection; the socket is never
// written from anywhere else.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
