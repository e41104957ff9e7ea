package hub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/kurtismassey/project-stargate/internal/gemini"
	"github.com/kurtismassey/project-stargate/internal/middleware"
	"github.com/kurtismassey/project-stargate/internal/models"
	"github.com/kurtismassey/project-stargate/internal/prompts"
	"github.com/kurtismassey/project-stargate/internal/services"

	"github.com/google/uuid"
)

// handleChat runs one generation turn: persist and echo the Viewer message,
// stream the Monitor's reply chunk by chunk to the whole room, then extract
// details when a sketch came along. It runs on its own goroutine per turn;
// the per-room generation lock keeps turns serial within a room while other
// rooms stream in parallel.
func (h *Hub) handleChat(c *Conn, p models.ChatPayload) {
	room := h.roomFor(c, p.SessionID, "chat")
	if room == nil {
		return
	}
	if !room.tryBeginGeneration() {
		c.sendJSON(models.ErrorEvent{
			Type:      models.EventError,
			SessionID: p.SessionID,
			Message:   "The monitor is still responding, please wait for them to finish",
		})
		return
	}

	ctx, span := middleware.StartSpan(context.Background(), "hub.generation_turn")
	defer span.End()

	viewerID := p.ID
	if viewerID == "" {
		viewerID = uuid.NewString()
	}
	viewerMsg := models.Message{
		ID:        viewerID,
		SessionID: room.ID,
		Author:    models.AuthorViewer,
		Text:      p.Message,
		Complete:  true,
		Timestamp: time.Now(),
	}
	room.appendMessage(viewerMsg)
	if err := h.messages.Save(ctx, &viewerMsg); err != nil {
		log.Printf("⚠️  Failed to persist viewer message for session %s: %v", room.ID, err)
	}

	// Echo the Viewer turn to everyone else so all pages show it, sender
	// excluded because it already rendered its own input.
	h.dropSlow(room.broadcastJSON(models.StreamChunk{
		Type:       models.EventStreamResponse,
		SessionID:  room.ID,
		ID:         viewerID,
		User:       models.AuthorViewer,
		Text:       p.Message,
		IsComplete: true,
	}, c))

	var staged *gemini.StagedFile
	var sketchBytes []byte
	if p.Sketch != "" {
		var err error
		sketchBytes, err = decodeSketch(p.Sketch)
		if err != nil {
			log.Printf("⚠️  Ignoring undecodable sketch for session %s: %v", room.ID, err)
		} else {
			staged, err = h.generator.UploadFile(ctx, sketchBytes, "image/jpeg")
			if err != nil {
				log.Printf("⚠️  Sketch staging failed for session %s, continuing text-only: %v", room.ID, err)
				staged = nil
			} else {
				defer func() {
					if err := h.generator.DeleteFile(context.Background(), staged.Name); err != nil {
						log.Printf("⚠️  Failed to delete staged sketch %s: %v", staged.Name, err)
					}
				}()
			}
		}
	}

	// Archive the sketch alongside the session off the interactive path.
	if sketchBytes != nil {
		key := fmt.Sprintf("sessions/%s/sketches/%s.jpg", room.ID, uuid.NewString())
		go func() {
			if err := h.images.Upload(context.Background(), key, sketchBytes, "image/jpeg"); err != nil {
				log.Printf("⚠️  Failed to archive sketch for session %s: %v", room.ID, err)
			}
		}()
	}

	stream, err := h.generator.StreamGenerate(ctx, buildTurnRequest(p, staged))
	if err != nil {
		room.endGeneration()
		middleware.AddSpanError(ctx, err)
		log.Printf("🛑 Generation failed to start for session %s: %v", room.ID, err)
		h.dropSlow(room.broadcastJSON(models.ErrorEvent{
			Type:      models.EventError,
			SessionID: room.ID,
			Message:   "The monitor is unavailable right now, please try again",
		}, nil))
		return
	}
	defer stream.Close()

	responseID := uuid.NewString()
	for {
		text, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			// The partial Monitor message stays in the buffer, still
			// marked incomplete; clients keep what already arrived.
			room.endGeneration()
			middleware.AddSpanError(ctx, err)
			log.Printf("🛑 Generation stream broke for session %s: %v", room.ID, err)
			h.dropSlow(room.broadcastJSON(models.ErrorEvent{
				Type:      models.EventError,
				SessionID: room.ID,
				Message:   "The monitor's response was interrupted",
			}, nil))
			return
		}
		if text == "" {
			continue
		}
		h.relayChunk(room, models.StreamChunk{
			Type:      models.EventStreamResponse,
			SessionID: room.ID,
			ID:        responseID,
			User:      models.AuthorMonitor,
			Text:      text,
		})
	}

	final, finished := room.finishMessage(responseID)
	h.relayChunk(room, models.StreamChunk{
		Type:       models.EventStreamResponse,
		SessionID:  room.ID,
		ID:         responseID,
		User:       models.AuthorMonitor,
		IsComplete: true,
	})
	if finished {
		if err := h.messages.Save(ctx, &final); err != nil {
			log.Printf("⚠️  Failed to persist monitor message for session %s: %v", room.ID, err)
		}
	}
	room.endGeneration()

	if staged != nil {
		h.extractDetails(ctx, room, p, staged)
	}
}

// relayChunk appends a Monitor chunk to the conversation buffer and fans it
// out under one room lock, so every member sees chunks of the same turn in
// the same order. Chunks that arrive after the room completed are dropped.
func (h *Hub) relayChunk(room *Room, chunk models.StreamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		log.Printf("Failed to marshal stream chunk for room %s: %v", room.ID, err)
		return
	}

	room.mu.Lock()
	if room.status == models.StatusCompleted {
		room.mu.Unlock()
		return
	}
	if chunk.Text != "" {
		room.appendChunkLocked(chunk.ID, chunk.Text, time.Now())
	}
	slow := room.broadcastLocked(data, nil)
	room.mu.Unlock()

	h.dropSlow(slow)
}

// buildTurnRequest maps the client's conversation history onto generation
// roles and attaches the staged sketch to the current turn.
func buildTurnRequest(p models.ChatPayload, staged *gemini.StagedFile) gemini.GenerateRequest {
	contents := make([]gemini.Content, 0, len(p.ConversationHistory)+1)
	for _, msg := range p.ConversationHistory {
		role := "user"
		if msg.User == models.AuthorMonitor {
			role = "model"
		}
		contents = append(contents, gemini.Content{
			Role:  role,
			Parts: []gemini.Part{{Text: msg.Text}},
		})
	}

	turn := gemini.Content{Role: "user", Parts: []gemini.Part{{Text: p.Message}}}
	if staged != nil {
		turn.Parts = append(turn.Parts, gemini.Part{
			FileData: &gemini.FileData{MIMEType: "image/jpeg", FileURI: staged.URI},
		})
	}
	contents = append(contents, turn)

	return gemini.GenerateRequest{
		SystemInstruction: prompts.SystemInstruction,
		Contents:          contents,
	}
}

// extractDetails runs the extraction pass over the sketch and conversation,
// merges genuinely new details into the room, and hands them to the indexer.
func (h *Hub) extractDetails(ctx context.Context, room *Room, p models.ChatPayload, staged *gemini.StagedFile) {
	prompt := prompts.DetailExtraction + prompts.Conversation(p.ConversationHistory, p.Message)
	req := gemini.GenerateRequest{
		Contents: []gemini.Content{{
			Role: "user",
			Parts: []gemini.Part{
				{Text: prompt},
				{FileData: &gemini.FileData{MIMEType: "image/jpeg", FileURI: staged.URI}},
			},
		}},
	}

	text, err := h.generator.GenerateText(ctx, req)
	if err != nil {
		log.Printf("⚠️  Detail extraction failed for session %s: %v", room.ID, err)
		return
	}

	details, err := parseDetails(text)
	if err != nil {
		log.Printf("⚠️  Unparseable detail extraction for session %s: %v", room.ID, err)
		return
	}

	added, all := room.mergeDetails(details)
	if len(added) == 0 {
		return
	}

	h.dropSlow(room.broadcastJSON(models.UpdateDetailsEvent{
		Type:      models.EventUpdateDetails,
		SessionID: room.ID,
		Details:   all,
	}, nil))

	if err := h.sessions.SaveDetails(ctx, room.ID, all); err != nil {
		log.Printf("⚠️  Failed to persist details for session %s: %v", room.ID, err)
	}

	if err := h.indexer.SubmitJob(services.IndexJob{
		SessionID: room.ID,
		Kind:      models.DetailKindDetail,
		Texts:     added,
	}); err != nil {
		log.Printf("⚠️  %v", err)
	}
}

// parseDetails pulls the {"details": [...]} document out of a fenced json
// block, tolerating responses that skip the fence.
func parseDetails(text string) ([]string, error) {
	payload := text
	if _, after, found := strings.Cut(text, "```json"); found {
		payload = after
	}
	if before, _, found := strings.Cut(payload, "```"); found {
		payload = before
	}

	var doc struct {
		Details []string `json:"details"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode details document: %w", err)
	}
	return doc.Details, nil
}

// decodeSketch accepts raw base64 or a data URL and returns the image bytes.
func decodeSketch(sketch string) ([]byte, error) {
	if _, after, found := strings.Cut(sketch, ","); found && strings.HasPrefix(sketch, "data:") {
		sketch = after
	}
	data, err := base64.StdEncoding.DecodeString(sketch)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sketch: %w", err)
	}
	return data, nil
}
