package hub

import (
	"context"
	"log"

	"github.com/kurtismassey/project-stargate/internal/models"
)

// Relay events are dispatched synchronously from each connection's read
// loop, so a room applies them in arrival order. Payloads are rebroadcast
// as the exact bytes received; the server validates but never rewrites.

// roomFor resolves the sender's room for a relay event, enforcing that the
// event targets the room the connection actually joined and that the session
// still accepts input.
func (h *Hub) roomFor(c *Conn, sessionID, event string) *Room {
	room := c.Room()
	if room == nil || room.ID != sessionID {
		log.Printf("⚠️  Dropping %s from %s for unjoined session %s", event, c.ID, sessionID)
		return nil
	}
	if room.Status() == models.StatusCompleted {
		log.Printf("⚠️  Dropping %s for completed session %s", event, sessionID)
		return nil
	}
	return room
}

// handleDraw relays one stroke segment to everyone else in the room.
func (h *Hub) handleDraw(c *Conn, p models.DrawPayload, raw []byte) {
	room := h.roomFor(c, p.SessionID, models.EventDraw)
	if room == nil {
		return
	}
	if !models.ValidStage(p.StageNumber) {
		log.Printf("⚠️  Dropping draw with stage %d for session %s", p.StageNumber, p.SessionID)
		return
	}

	room.recordStroke(p.StageNumber)
	h.dropSlow(room.broadcast(raw, c))
}

// handleClear relays a canvas clear and eagerly forgets the persisted
// snapshot for that stage, so a rejoin never replays a cleared canvas.
func (h *Hub) handleClear(c *Conn, p models.ClearPayload, raw []byte) {
	room := h.roomFor(c, p.SessionID, models.EventClear)
	if room == nil {
		return
	}
	if !models.ValidStage(p.StageNumber) {
		log.Printf("⚠️  Dropping clear with stage %d for session %s", p.StageNumber, p.SessionID)
		return
	}

	room.recordClear(p.StageNumber)
	h.dropSlow(room.broadcast(raw, c))

	go func() {
		if err := h.sessions.ClearSnapshot(context.Background(), p.SessionID, p.StageNumber); err != nil {
			log.Printf("⚠️  Failed to clear snapshot for session %s stage %d: %v", p.SessionID, p.StageNumber, err)
		}
	}()
}

// handleSyncStage moves the room to a new stage and tells everyone,
// including the sender, so all clients converge on the authoritative stage.
func (h *Hub) handleSyncStage(c *Conn, p models.SyncStagePayload) {
	room := h.roomFor(c, p.SessionID, models.EventSyncStage)
	if room == nil {
		return
	}
	if !models.ValidStage(p.StageNumber) {
		log.Printf("⚠️  Dropping syncStage to %d for session %s", p.StageNumber, p.SessionID)
		return
	}

	room.setStage(p.StageNumber)

	go func() {
		if err := h.sessions.UpdateStage(context.Background(), p.SessionID, p.StageNumber); err != nil {
			log.Printf("⚠️  Failed to persist stage for session %s: %v", p.SessionID, err)
		}
	}()

	h.dropSlow(room.broadcastJSON(models.SyncStagePayload{
		Type:        models.EventSyncStage,
		SessionID:   p.SessionID,
		StageNumber: p.StageNumber,
	}, nil))
}

// handleSnapshot stores a canvas snapshot reference for a stage so rejoining
// clients can restore their canvases.
func (h *Hub) handleSnapshot(c *Conn, p models.SnapshotPayload) {
	room := h.roomFor(c, p.SessionID, models.EventStageSnapshot)
	if room == nil {
		return
	}
	if !models.ValidStage(p.StageNumber) {
		log.Printf("⚠️  Dropping stageSnapshot with stage %d for session %s", p.StageNumber, p.SessionID)
		return
	}

	room.setSnapshot(p.StageNumber, p.SnapshotRef)

	go func() {
		if err := h.sessions.SaveSnapshot(context.Background(), p.SessionID, p.StageNumber, p.SnapshotRef); err != nil {
			log.Printf("⚠️  Failed to persist snapshot for session %s stage %d: %v", p.SessionID, p.StageNumber, err)
		}
	}()
}
