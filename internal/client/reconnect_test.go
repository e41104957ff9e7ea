package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{20, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := backoffFor(tt.attempt); got != tt.want {
			t.Errorf("backoffFor(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestRunRejoinsSessionAfterReconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	joins := make(chan string, 4)
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		n := connections.Add(1)

		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var join struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(raw, &join); err == nil && join.Type == "joinSession" {
			joins <- join.SessionID
		}

		// Kill the first connection to force a reconnect; keep later ones.
		if n == 1 {
			ws.Close()
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	c := New(url, nil)

	// Remember the session before the first connect; the dial is not up yet
	// so the send fails, but the rejoin on connect must still happen.
	_ = c.Join("session-42")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go c.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case sessionID := <-joins:
			if sessionID != "session-42" {
				t.Fatalf("join %d for session %q, want session-42", i+1, sessionID)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for join %d", i+1)
		}
	}

	if got := connections.Load(); got < 2 {
		t.Errorf("saw %d connections, want at least 2", got)
	}
}
