// Package client provides a session websocket client with automatic
// reconnection. Clients are expected to drop on flaky links; the server
// replays session state on every rejoin, so reconnecting is always safe.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kurtismassey/project-stargate/internal/models"

	"github.com/gorilla/websocket"
)

const (
	// Backoff doubles per failed attempt, capped.
	baseBackoff = time.Second
	maxBackoff  = 30 * time.Second
)

// backoffFor returns the delay before the given reconnect attempt.
// Attempt 0 retries after the base delay.
func backoffFor(attempt int) time.Duration {
	d := baseBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// EventHandler receives every raw frame from the session socket.
type EventHandler func(raw []byte)

// Client maintains a session websocket, rejoining the last session after
// every reconnect. The attempt counter resets once a connection succeeds.
type Client struct {
	url     string
	handler EventHandler

	mu        sync.Mutex
	ws        *websocket.Conn
	sessionID string
}

// New creates a client for the given websocket URL.
func New(url string, handler EventHandler) *Client {
	return &Client{url: url, handler: handler}
}

// Run connects and keeps the connection alive until the context ends.
// Each successful (re)connect rejoins the last joined session.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			delay := backoffFor(attempt)
			attempt++
			log.Printf("⚠️  Connect failed (attempt %d), retrying in %s: %v", attempt, delay, err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		c.setConn(ws)

		if sessionID := c.SessionID(); sessionID != "" {
			if err := c.sendJoin(sessionID); err != nil {
				log.Printf("⚠️  Rejoin failed: %v", err)
				ws.Close()
				continue
			}
			log.Printf("✓ Rejoined session %s", sessionID)
		}

		c.readLoop(ctx, ws)
		c.setConn(nil)
	}
}

// Join joins a session on the current connection and remembers it for
// rejoin after reconnects.
func (c *Client) Join(sessionID string) error {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
	return c.sendJoin(sessionID)
}

// SessionID returns the last joined session, if any.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Send writes one event frame to the session socket.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	return nil
}

func (c *Client) sendJoin(sessionID string) error {
	return c.Send(struct {
		Type      string `json:"type"`
		SessionID string `json:"sessionId"`
	}{Type: models.EventJoinSession, SessionID: sessionID})
}

func (c *Client) setConn(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
}

func (c *Client) readLoop(ctx context.Context, ws *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			log.Printf("Connection lost: %v", err)
			return
		}
		if c.handler != nil {
			c.handler(raw)
		}
	}
}
