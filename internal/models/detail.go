package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// DetailEmbedding stores one extracted session detail (or a completion
// summary) with its vector embedding so past sessions can be searched by
// perceived-target similarity.
type DetailEmbedding struct {
	ID        string          `json:"id" gorm:"type:char(27);primaryKey"`
	SessionID string          `json:"session_id" gorm:"type:text;not null;index"`
	Kind      string          `json:"kind" gorm:"type:varchar(20);not null;default:'detail'"`
	Text      string          `json:"text" gorm:"type:text;not null"`
	Embedding pgvector.Vector `json:"embedding" gorm:"type:vector(768);not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	DeletedAt gorm.DeletedAt  `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`
}

// Detail embedding kinds.
const (
	DetailKindDetail  = "detail"
	DetailKindSummary = "summary"
)

// BeforeCreate hook generates a KSUID before inserting.
func (d *DetailEmbedding) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = ksuid.New().String()
	}
	return nil
}

// SessionMatch is one semantic search hit across past sessions.
type SessionMatch struct {
	SessionID string  `json:"session_id"`
	Text      string  `json:"text"`
	Kind      string  `json:"kind"`
	Score     float32 `json:"score"`
}
