package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/kurtismassey/project-stargate/internal/models"
)

// Room is the live state for one session: membership, authoritative stage,
// conversation buffer, accumulated details, and the lifecycle status. Every
// mutation happens under the room mutex; rooms are independent serialization
// domains, so operations on different rooms never contend.
type Room struct {
	ID string

	mu      sync.Mutex
	members map[*Conn]struct{}

	currentStage int
	snapshots    map[int]string
	strokeCounts map[int]int
	clearCounts  map[int]int

	messages []models.Message

	generationInFlight bool
	status             models.SessionStatus

	details   []string
	detailSet map[string]struct{}

	targetImagePath   string
	modelledImagePath string
	summary           string

	emptySince time.Time // zero while occupied

	loadOnce sync.Once
}

func newRoom(id string) *Room {
	return &Room{
		ID:           id,
		members:      make(map[*Conn]struct{}),
		currentStage: models.MinStage,
		snapshots:    make(map[int]string),
		strokeCounts: make(map[int]int),
		clearCounts:  make(map[int]int),
		status:       models.StatusActive,
		detailSet:    make(map[string]struct{}),
		emptySince:   time.Now(),
	}
}

// restore seeds the room from persisted state on lazy creation.
func (r *Room) restore(record *models.SessionRecord, history []models.Message, snapshots map[int]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if models.ValidStage(record.CurrentStage) {
		r.currentStage = record.CurrentStage
	}
	r.status = record.Status
	r.targetImagePath = record.TargetImagePath
	r.modelledImagePath = record.ModelledImagePath
	r.summary = record.Summary
	r.messages = history

	for _, d := range record.Details {
		if _, seen := r.detailSet[d]; !seen {
			r.detailSet[d] = struct{}{}
			r.details = append(r.details, d)
		}
	}
	for stage, ref := range snapshots {
		r.snapshots[stage] = ref
	}
}

func (r *Room) addMember(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[c] = struct{}{}
	r.emptySince = time.Time{}
}

// removeMember drops a connection and, if the room went empty, starts the
// idle clock. Returns the remaining member count.
func (r *Room) removeMember(c *Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, c)
	remaining := len(r.members)
	if remaining == 0 {
		r.emptySince = time.Now()
	}
	return remaining
}

// broadcast queues data on every member's send channel, optionally skipping
// the sender. Holding the room lock while queueing keeps per-room delivery
// order identical for all members. Connections with a full buffer are
// returned so the hub can drop them outside the lock.
func (r *Room) broadcast(data []byte, exclude *Conn) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcastLocked(data, exclude)
}

func (r *Room) broadcastLocked(data []byte, exclude *Conn) []*Conn {
	var slow []*Conn
	for member := range r.members {
		if member == exclude {
			continue
		}
		if !member.trySend(data) {
			slow = append(slow, member)
		}
	}
	return slow
}

// broadcastJSON marshals v and broadcasts it.
func (r *Room) broadcastJSON(v any, exclude *Conn) []*Conn {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to marshal broadcast for room %s: %v", r.ID, err)
		return nil
	}
	return r.broadcast(data, exclude)
}

// Status returns the room's lifecycle state.
func (r *Room) Status() models.SessionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// CurrentStage returns the authoritative stage.
func (r *Room) CurrentStage() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentStage
}

// setStage updates the authoritative stage. The caller validates the range.
func (r *Room) setStage(stage int) {
	r.mu.Lock()
	r.currentStage = stage
	r.mu.Unlock()
}

func (r *Room) recordStroke(stage int) {
	r.mu.Lock()
	r.strokeCounts[stage]++
	r.mu.Unlock()
}

func (r *Room) recordClear(stage int) {
	r.mu.Lock()
	r.clearCounts[stage]++
	delete(r.snapshots, stage)
	r.mu.Unlock()
}

func (r *Room) setSnapshot(stage int, ref string) {
	r.mu.Lock()
	r.snapshots[stage] = ref
	r.mu.Unlock()
}

// appendMessage adds a complete message to the conversation buffer.
func (r *Room) appendMessage(msg models.Message) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
}

// appendChunk applies one streamed chunk: if the last message is the
// in-flight Monitor message with the same id, the text is appended in place;
// otherwise a new incomplete Monitor entry starts. The invariant that at
// most one incomplete Monitor message exists per room holds because chunks
// only flow while generationInFlight is held.
func (r *Room) appendChunk(id, text string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendChunkLocked(id, text, now)
}

func (r *Room) appendChunkLocked(id, text string, now time.Time) {
	if n := len(r.messages); n > 0 {
		last := &r.messages[n-1]
		if last.ID == id && last.Author == models.AuthorMonitor && !last.Complete {
			last.Text += text
			return
		}
	}

	r.messages = append(r.messages, models.Message{
		ID:        id,
		SessionID: r.ID,
		Author:    models.AuthorMonitor,
		Text:      text,
		Complete:  false,
		Timestamp: now,
	})
}

// finishMessage marks the in-flight Monitor message complete and returns a
// copy for persistence.
func (r *Room) finishMessage(id string) (models.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].ID == id {
			r.messages[i].Complete = true
			return r.messages[i], true
		}
	}
	return models.Message{}, false
}

// tryBeginGeneration takes the per-room generation lock. At most one
// generation runs per room; callers that lose get a generationError.
func (r *Room) tryBeginGeneration() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != models.StatusActive || r.generationInFlight {
		return false
	}
	r.generationInFlight = true
	return true
}

// endGeneration releases the generation lock.
func (r *Room) endGeneration() {
	r.mu.Lock()
	r.generationInFlight = false
	r.mu.Unlock()
}

// GenerationInFlight reports whether a generation holds the room lock.
func (r *Room) GenerationInFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generationInFlight
}

// beginAnalysis performs the Active -> Analyzing transition. Only the first
// caller wins; everyone else is a no-op.
func (r *Room) beginAnalysis() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != models.StatusActive || r.generationInFlight {
		return false
	}
	r.status = models.StatusAnalyzing
	r.generationInFlight = true
	return true
}

// completeAnalysis performs the terminal Analyzing -> Completed transition
// and returns a copy of the accumulated details for the terminal broadcast.
func (r *Room) completeAnalysis(summary, modelledPath string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = models.StatusCompleted
	r.generationInFlight = false
	r.summary = summary
	if modelledPath != "" {
		r.modelledImagePath = modelledPath
	}

	details := make([]string, len(r.details))
	copy(details, r.details)
	return details
}

// mergeDetails deduplicates new details into the accumulated set, returning
// the genuinely new ones and a copy of the full set.
func (r *Room) mergeDetails(incoming []string) (added, all []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range incoming {
		if d == "" {
			continue
		}
		if _, seen := r.detailSet[d]; seen {
			continue
		}
		r.detailSet[d] = struct{}{}
		r.details = append(r.details, d)
		added = append(added, d)
	}

	all = make([]string, len(r.details))
	copy(all, r.details)
	return added, all
}

// Details returns a copy of the accumulated detail set.
func (r *Room) Details() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	details := make([]string, len(r.details))
	copy(details, r.details)
	return details
}

// historyCopy snapshots everything a joining connection needs for replay.
func (r *Room) historyCopy() models.InitialHistoryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := make([]models.Message, len(r.messages))
	copy(history, r.messages)

	snapshots := make(map[int]string, len(r.snapshots))
	for stage, ref := range r.snapshots {
		snapshots[stage] = ref
	}

	details := make([]string, len(r.details))
	copy(details, r.details)

	return models.InitialHistoryEvent{
		Type:            models.EventInitialHistory,
		SessionID:       r.ID,
		History:         history,
		CurrentStage:    r.currentStage,
		Status:          r.status,
		Snapshots:       snapshots,
		TargetImagePath: r.targetImagePath,
		Details:         details,
	}
}

// conversation returns a copy of the message buffer.
func (r *Room) conversation() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := make([]models.Message, len(r.messages))
	copy(history, r.messages)
	return history
}

// idleFor reports how long the room has been empty; zero while occupied.
func (r *Room) idleFor(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) > 0 || r.emptySince.IsZero() {
		return 0
	}
	return now.Sub(r.emptySince)
}
