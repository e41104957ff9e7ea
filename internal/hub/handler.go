package hub

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced at the edge; the API already answers
	// CORS for the browser pages.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a websocket and starts the
// connection's pumps. The client joins a room with its first joinSession
// frame.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️  WebSocket upgrade failed: %v", err)
		return
	}

	c := newConn(h, ws)
	log.Printf("Connection %s established", c.ID)

	go c.WritePump()
	go c.ReadPump()
}
