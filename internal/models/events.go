package models

// Event types exchanged over the session websocket. Names match the wire
// protocol the operator and sketch pages speak.
const (
	EventJoinSession     = "joinSession"
	EventDraw            = "draw"
	EventClear           = "clear"
	EventSyncStage       = "syncStage"
	EventStageSnapshot   = "stageSnapshot"
	EventChatOnly        = "chatOnly"
	EventSketchAndChat   = "sketchAndChat"
	EventCompleteSession = "completeSession"

	EventStreamResponse    = "geminiStreamResponse"
	EventError             = "geminiError"
	EventUpdateDetails     = "updateDetails"
	EventUpdateTargetImage = "updateTargetImage"
	EventSessionCompleted  = "sessionCompleted"
	EventInitialHistory    = "initialHistory"
)

// Envelope carries the event type; the remaining fields are decoded into the
// payload struct for that type.
type Envelope struct {
	Type string `json:"type"`
}

// JoinPayload joins (or rejoins) a session room.
type JoinPayload struct {
	SessionID string `json:"sessionId"`
}

// DrawPayload is one normalized stroke segment. Coordinates are in [0,1] so
// slates of different pixel sizes agree; the server relays them verbatim.
type DrawPayload struct {
	SessionID   string  `json:"sessionId"`
	StageNumber int     `json:"stageNumber"`
	PrevX       float64 `json:"prevX"`
	PrevY       float64 `json:"prevY"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Color       string  `json:"color"`
}

// ClearPayload wipes the canvas for one stage.
type ClearPayload struct {
	SessionID   string `json:"sessionId"`
	StageNumber int    `json:"stageNumber"`
}

// SyncStagePayload sets the authoritative stage for the room. It is the one
// relay event rebroadcast to the sender too, so every client converges.
type SyncStagePayload struct {
	Type        string `json:"type"`
	SessionID   string `json:"sessionId"`
	StageNumber int    `json:"stageNumber"`
}

// SnapshotPayload records the latest canvas snapshot reference for a stage.
type SnapshotPayload struct {
	SessionID   string `json:"sessionId"`
	StageNumber int    `json:"stageNumber"`
	SnapshotRef string `json:"snapshotRef"`
}

// HistoryMessage is one prior conversation turn as the client tracks it.
type HistoryMessage struct {
	User Author `json:"user"`
	Text string `json:"text"`
}

// ChatPayload requests a generation. Sketch carries base64 JPEG bytes for
// sketchAndChat and is empty for chatOnly.
type ChatPayload struct {
	SessionID           string           `json:"sessionId"`
	ID                  string           `json:"id"`
	Message             string           `json:"message"`
	Sketch              string           `json:"sketch,omitempty"`
	ConversationHistory []HistoryMessage `json:"conversationHistory"`
}

// CompletePayload asks the room to run its completion analysis.
type CompletePayload struct {
	SessionID string `json:"sessionId"`
}

// StreamChunk is one incremental piece of a Monitor (or echoed Viewer)
// message. Clients append Text for a given ID until IsComplete arrives.
type StreamChunk struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	ID         string `json:"id"`
	User       Author `json:"user"`
	Text       string `json:"text"`
	IsComplete bool   `json:"isComplete"`
}

// ErrorEvent is a room-scoped upstream failure notice. It is not a chat
// message and is never persisted.
type ErrorEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// UpdateDetailsEvent carries the accumulated detail set after extraction.
type UpdateDetailsEvent struct {
	Type      string   `json:"type"`
	SessionID string   `json:"sessionId"`
	Details   []string `json:"details"`
}

// UpdateTargetImageEvent announces a freshly modelled target image.
type UpdateTargetImageEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	ImagePath string `json:"imagePath"`
}

// SessionCompletedEvent is the terminal broadcast for a room.
type SessionCompletedEvent struct {
	Type              string   `json:"type"`
	SessionID         string   `json:"sessionId"`
	Summary           string   `json:"summary"`
	Details           []string `json:"details"`
	TargetImagePath   string   `json:"targetImagePath"`
	ModelledImagePath string   `json:"modelledImagePath"`
}

// InitialHistoryEvent replays room state to a (re)joining connection.
type InitialHistoryEvent struct {
	Type            string         `json:"type"`
	SessionID       string         `json:"sessionId"`
	History         []Message      `json:"history"`
	CurrentStage    int            `json:"currentStage"`
	Status          SessionStatus  `json:"status"`
	Snapshots       map[int]string `json:"snapshots,omitempty"`
	TargetImagePath string         `json:"targetImagePath,omitempty"`
	Details         []string       `json:"details,omitempty"`
}
