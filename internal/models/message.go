package models

import (
	"time"

	"gorm.io/gorm"
)

// Author identifies the two conversational roles in a session.
type Author string

const (
	AuthorViewer  Author = "Viewer"
	AuthorMonitor Author = "Monitor"
)

// Message is one entry in a session's conversation. Viewer messages arrive
// complete; Monitor messages accumulate from stream chunks and are marked
// Complete when the upstream stream ends. The ID is a uuid4 minted by the
// originating client (Viewer) or by the generation coordinator (Monitor).
type Message struct {
	ID        string         `json:"id" gorm:"type:char(36);primaryKey"`
	SessionID string         `json:"session_id" gorm:"type:text;not null;index"`
	Author    Author         `json:"user" gorm:"type:varchar(10);not null"`
	Text      string         `json:"text" gorm:"type:text;not null"`
	Complete  bool           `json:"complete" gorm:"not null;default:true"`
	Timestamp time.Time      `json:"timestamp" gorm:"column:timestamp;autoCreateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`
}
