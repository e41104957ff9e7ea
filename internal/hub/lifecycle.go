package hub

import (
	"context"
	"fmt"
	"log"

	"github.com/kurtismassey/project-stargate/internal/gemini"
	"github.com/kurtismassey/project-stargate/internal/middleware"
	"github.com/kurtismassey/project-stargate/internal/models"
	"github.com/kurtismassey/project-stargate/internal/prompts"
	"github.com/kurtismassey/project-stargate/internal/services"

	"github.com/google/uuid"
)

// handleCompleteSession drives the Active -> Analyzing -> Completed walk.
// Only the first request wins the transition; duplicates and requests during
// a live generation are dropped, so a double-clicked finish button cannot
// run the analysis twice. Analysis is bounded by the configured timeout;
// when the generative service cannot answer in time the session still
// completes, with whatever made it through.
func (h *Hub) handleCompleteSession(c *Conn, p models.CompletePayload) {
	room := h.roomFor(c, p.SessionID, models.EventCompleteSession)
	if room == nil {
		return
	}
	if !room.beginAnalysis() {
		log.Printf("Ignoring completeSession for %s (status %s, generation in flight %t)",
			room.ID, room.Status(), room.GenerationInFlight())
		return
	}

	ctx, span := middleware.StartSpan(context.Background(), "hub.complete_session")
	defer span.End()

	log.Printf("🔧 Session %s entering analysis", room.ID)
	if err := h.sessions.UpdateStatus(ctx, room.ID, models.StatusAnalyzing); err != nil {
		log.Printf("⚠️  Failed to persist analyzing status for session %s: %v", room.ID, err)
	}

	analysisCtx, cancel := context.WithTimeout(ctx, h.analysisTimeout)
	defer cancel()

	history := room.conversation()
	details := room.Details()

	summary, err := h.generator.GenerateText(analysisCtx, gemini.GenerateRequest{
		Contents: []gemini.Content{{
			Role:  "user",
			Parts: []gemini.Part{{Text: prompts.Summary(room.ID, history)}},
		}},
	})
	if err != nil {
		middleware.AddSpanError(ctx, err)
		log.Printf("⚠️  Summary generation failed for session %s, completing without one: %v", room.ID, err)
		summary = ""
	}

	modelledPath := h.modelTarget(analysisCtx, room, details, history)

	finalDetails := room.completeAnalysis(summary, modelledPath)

	// Persistence runs on a fresh context; an expired analysis deadline must
	// not lose the terminal state.
	if err := h.sessions.Complete(context.Background(), room.ID, summary, modelledPath, finalDetails); err != nil {
		log.Printf("🛑 Failed to persist completion for session %s: %v", room.ID, err)
	}

	if summary != "" {
		if err := h.indexer.SubmitJob(services.IndexJob{
			SessionID: room.ID,
			Kind:      models.DetailKindSummary,
			Texts:     []string{summary},
		}); err != nil {
			log.Printf("⚠️  %v", err)
		}
	}

	room.mu.Lock()
	targetPath := room.targetImagePath
	room.mu.Unlock()

	h.dropSlow(room.broadcastJSON(models.SessionCompletedEvent{
		Type:              models.EventSessionCompleted,
		SessionID:         room.ID,
		Summary:           summary,
		Details:           finalDetails,
		TargetImagePath:   targetPath,
		ModelledImagePath: modelledPath,
	}, nil))

	log.Printf("✓ Session %s completed", room.ID)
}

// modelTarget synthesizes the modelled target image from the session's
// details and conversation, stores it next to the session, and announces it.
// Failures degrade to completing without a modelled image.
func (h *Hub) modelTarget(ctx context.Context, room *Room, details []string, history []models.Message) string {
	if len(details) == 0 && len(history) == 0 {
		return ""
	}

	img, err := h.generator.GenerateImage(ctx, prompts.ModelledImage(details, history))
	if err != nil {
		log.Printf("⚠️  Modelled image generation failed for session %s: %v", room.ID, err)
		return ""
	}

	key := fmt.Sprintf("sessions/%s/targetModels/%s.jpg", room.ID, uuid.NewString())
	if err := h.images.Upload(ctx, key, img, "image/jpeg"); err != nil {
		log.Printf("⚠️  Failed to store modelled image for session %s: %v", room.ID, err)
		return ""
	}

	h.dropSlow(room.broadcastJSON(models.UpdateTargetImageEvent{
		Type:      models.EventUpdateTargetImage,
		SessionID: room.ID,
		ImagePath: key,
	}, nil))

	return key
}
