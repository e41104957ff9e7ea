package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// SessionStatus is the lifecycle state of a viewing session. Transitions are
// monotonic: Active -> Analyzing -> Completed. There is no path back.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusAnalyzing SessionStatus = "analyzing"
	StatusCompleted SessionStatus = "completed"
)

// Stage bounds for a viewing session. Stages are numbered 1..5 and every
// stage-scoped event outside that range is rejected.
const (
	MinStage = 1
	MaxStage = 5
)

// ValidStage reports whether n is a legal stage number.
func ValidStage(n int) bool {
	return n >= MinStage && n <= MaxStage
}

// SessionRecord is the durable state of one viewing session. The session ID
// is caller-supplied (the operator page mints a millisecond timestamp), so it
// is stored as-is rather than generated.
type SessionRecord struct {
	ID                string         `json:"id" gorm:"type:text;primaryKey"`
	CurrentStage      int            `json:"current_stage" gorm:"not null;default:1"`
	Status            SessionStatus  `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	TargetImagePath   string         `json:"target_image_path" gorm:"type:text"`
	ModelledImagePath string         `json:"modelled_image_path" gorm:"type:text"`
	Summary           string         `json:"summary" gorm:"type:text"`
	Details           []string       `json:"details" gorm:"type:jsonb;serializer:json"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt         gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`
}

// StageSnapshot is the last-known canvas snapshot reference for one stage of
// a session. The reference is opaque to the server (a blob store path the
// sketch client wrote); it exists only so late joiners can replay the canvas.
type StageSnapshot struct {
	ID          string         `json:"id" gorm:"type:char(27);primaryKey"`
	SessionID   string         `json:"session_id" gorm:"type:text;not null;index:idx_snapshots_session_stage,unique"`
	StageNumber int            `json:"stage_number" gorm:"not null;index:idx_snapshots_session_stage,unique"`
	SnapshotRef string         `json:"snapshot_ref" gorm:"type:text"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`
}

// BeforeCreate hook generates a KSUID before inserting.
func (s *StageSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = ksuid.New().String()
	}
	return nil
}
