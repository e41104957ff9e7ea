package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/kurtismassey/project-stargate/internal/middleware"
	"github.com/kurtismassey/project-stargate/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
)

// SessionReader is what the API needs from session storage.
type SessionReader interface {
	GetByID(ctx context.Context, id string) (*models.SessionRecord, error)
	List(ctx context.Context, limit, offset int) ([]*models.SessionRecord, error)
}

// Searcher runs semantic search over indexed session details.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]*models.SessionMatch, error)
	QueueLength() int
}

// RoomCounter reports live room occupancy for health reporting.
type RoomCounter interface {
	RoomCount() int
}

// BlobReader fetches stored image artifacts.
type BlobReader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Handler serves the read-side REST endpoints next to the websocket.
type Handler struct {
	sessions SessionReader
	searcher Searcher
	rooms    RoomCounter
	blobs    BlobReader
}

// NewHandler creates the REST handler.
func NewHandler(sessions SessionReader, searcher Searcher, rooms RoomCounter, blobs BlobReader) *Handler {
	return &Handler{
		sessions: sessions,
		searcher: searcher,
		rooms:    rooms,
		blobs:    blobs,
	}
}

// ListSessions handles GET /api/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx, span := middleware.StartSpan(r.Context(), "api.list_sessions")
	defer span.End()

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	records, err := h.sessions.List(ctx, limit, offset)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": records,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetSession handles GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := middleware.StartSpan(r.Context(), "api.get_session")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("session.id", id))

	record, err := h.sessions.GetByID(ctx, id)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// SearchSessions handles POST /api/sessions/search
func (h *Handler) SearchSessions(w http.ResponseWriter, r *http.Request) {
	ctx, span := middleware.StartSpan(r.Context(), "api.search_sessions")
	defer span.End()

	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit < 1 || req.Limit > 50 {
		req.Limit = 10
	}

	matches, err := h.searcher.Search(ctx, req.Query, req.Limit)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		log.Printf("⚠️  Session search failed: %v", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"matches": matches,
	})
}

// GetTargetImage handles GET /api/sessions/{id}/target. The actual target
// stays hidden until the session completes.
func (h *Handler) GetTargetImage(w http.ResponseWriter, r *http.Request) {
	ctx, span := middleware.StartSpan(r.Context(), "api.get_target_image")
	defer span.End()

	id := mux.Vars(r)["id"]
	record, err := h.sessions.GetByID(ctx, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if record.Status != models.StatusCompleted {
		writeError(w, http.StatusForbidden, "target is revealed after the session completes")
		return
	}
	if record.TargetImagePath == "" {
		writeError(w, http.StatusNotFound, "session has no target image")
		return
	}

	data, err := h.blobs.Download(ctx, record.TargetImagePath)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		log.Printf("⚠️  Target image fetch failed for session %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to fetch target image")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write target image response: %v", err)
	}
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"rooms":         h.rooms.RoomCount(),
		"indexer_queue": h.searcher.QueueLength(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}
