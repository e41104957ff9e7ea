package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kurtismassey/project-stargate/internal/config"
	"github.com/kurtismassey/project-stargate/internal/models"
	"github.com/kurtismassey/project-stargate/internal/prompts"

	"github.com/google/uuid"
)

// Hub owns the room registry and wires connections to rooms. Rooms are
// created lazily on first join and evicted once empty long enough.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	sessions  SessionStore
	messages  MessageStore
	generator Generator
	images    ImageStore
	indexer   DetailSink

	analysisTimeout  time.Duration
	completedRoomTTL time.Duration
	abandonedRoomTTL time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// NewHub assembles the hub from its collaborators.
func NewHub(cfg *config.Config, sessions SessionStore, messages MessageStore, generator Generator, images ImageStore, indexer DetailSink) *Hub {
	return &Hub{
		rooms:            make(map[string]*Room),
		sessions:         sessions,
		messages:         messages,
		generator:        generator,
		images:           images,
		indexer:          indexer,
		analysisTimeout:  cfg.AnalysisTimeout,
		completedRoomTTL: cfg.CompletedRoomTTL,
		abandonedRoomTTL: cfg.AbandonedRoomTTL,
		done:             make(chan struct{}),
	}
}

// Start launches the background room eviction loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.evictionLoop()
	log.Println("✓ Session hub started")
}

// Shutdown stops background work. Live connections are torn down by the
// HTTP server closing their sockets.
func (h *Hub) Shutdown() {
	close(h.done)
	h.wg.Wait()
	log.Println("✓ Session hub shutdown complete")
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// getOrCreateRoom returns the live room for a session, creating and hydrating
// it from storage on first use. Hydration runs once per room; concurrent
// joiners block on it rather than racing.
func (h *Hub) getOrCreateRoom(ctx context.Context, sessionID string) *Room {
	h.mu.Lock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = newRoom(sessionID)
		h.rooms[sessionID] = room
	}
	h.mu.Unlock()

	room.loadOnce.Do(func() {
		h.hydrateRoom(ctx, room)
	})
	return room
}

// hydrateRoom loads persisted state into a fresh room. Storage failures
// degrade to an in-memory session rather than refusing the join.
func (h *Hub) hydrateRoom(ctx context.Context, room *Room) {
	record, err := h.sessions.GetOrCreate(ctx, room.ID)
	if err != nil {
		log.Printf("⚠️  Failed to load session %s, continuing in-memory: %v", room.ID, err)
		record = &models.SessionRecord{
			ID:           room.ID,
			CurrentStage: models.MinStage,
			Status:       models.StatusActive,
		}
	}

	history, err := h.messages.ListBySession(ctx, room.ID)
	if err != nil {
		log.Printf("⚠️  Failed to load history for session %s: %v", room.ID, err)
	}

	snapshots, err := h.sessions.GetSnapshots(ctx, room.ID)
	if err != nil {
		log.Printf("⚠️  Failed to load snapshots for session %s: %v", room.ID, err)
	}

	// A brand-new session gets a target drawn from the pool before anyone
	// sees the room. The target reference stays server-side until the
	// session completes.
	if record.TargetImagePath == "" && record.Status == models.StatusActive {
		path, err := h.images.PickRandomTarget(ctx, room.ID)
		if err != nil {
			log.Printf("⚠️  Failed to assign target for session %s: %v", room.ID, err)
		} else {
			record.TargetImagePath = path
			if err := h.sessions.SetTargetImage(ctx, room.ID, path); err != nil {
				log.Printf("⚠️  Failed to persist target for session %s: %v", room.ID, err)
			}
		}
	}

	room.restore(record, history, snapshots)

	// The Monitor opens a fresh session so the first joiner never lands in
	// an empty transcript.
	if len(history) == 0 && record.Status == models.StatusActive {
		greeting := models.Message{
			ID:        uuid.NewString(),
			SessionID: room.ID,
			Author:    models.AuthorMonitor,
			Text:      prompts.Greeting,
			Complete:  true,
			Timestamp: time.Now(),
		}
		room.appendMessage(greeting)
		if err := h.messages.Save(ctx, &greeting); err != nil {
			log.Printf("⚠️  Failed to persist greeting for session %s: %v", room.ID, err)
		}
	}

	log.Printf("✓ Room %s hydrated (%d messages, stage %d, %s)",
		room.ID, len(history), record.CurrentStage, record.Status)
}

// Join moves a connection into a room and replays current session state to
// it. A connection already in another room is moved, not duplicated.
// Between fetching the room and adding the member, an eviction sweep can
// drop the room from the registry; re-checking registration after addMember
// keeps a joiner off an evicted room. Once the member is in, the sweep sees
// the room occupied and leaves it alone.
func (h *Hub) Join(c *Conn, sessionID string) {
	if prev := c.Room(); prev != nil && prev.ID != sessionID {
		h.leaveRoom(c, prev)
	}

	var room *Room
	for {
		room = h.getOrCreateRoom(context.Background(), sessionID)
		room.addMember(c)

		h.mu.RLock()
		registered := h.rooms[sessionID]
		h.mu.RUnlock()
		if registered == room {
			break
		}
		room.removeMember(c)
	}
	c.setRoom(room)

	c.sendJSON(room.historyCopy())
	log.Printf("Connection %s joined session %s", c.ID, sessionID)
}

// Leave detaches a connection from its room, if any.
func (h *Hub) Leave(c *Conn) {
	if room := c.Room(); room != nil {
		h.leaveRoom(c, room)
	}
}

func (h *Hub) leaveRoom(c *Conn, room *Room) {
	remaining := room.removeMember(c)
	c.setRoom(nil)
	if remaining == 0 {
		log.Printf("Room %s is now empty", room.ID)
	}
}

// dropSlow closes connections whose send buffers were full during a
// broadcast. Their buffered room state is stale; reconnect replays it.
func (h *Hub) dropSlow(slow []*Conn) {
	for _, c := range slow {
		log.Printf("⚠️  Dropping slow connection %s", c.ID)
		c.close()
	}
}

// evictionLoop periodically removes rooms nobody is using. Completed rooms
// go quickly; abandoned rooms linger longer so a flaky client can return.
func (h *Hub) evictionLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case now := <-ticker.C:
			h.evictIdleRooms(now)
		}
	}
}

func (h *Hub) evictIdleRooms(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, room := range h.rooms {
		idle := room.idleFor(now)
		if idle == 0 {
			continue
		}

		ttl := h.abandonedRoomTTL
		if room.Status() == models.StatusCompleted {
			ttl = h.completedRoomTTL
		}
		if idle >= ttl {
			delete(h.rooms, id)
			log.Printf("✓ Evicted idle room %s (%s, idle %s)", id, room.Status(), idle.Round(time.Second))
		}
	}
}
