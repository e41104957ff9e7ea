package repository

import (
	"context"
	"fmt"

	"github.com/kurtismassey/project-stargate/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepositoryImpl handles database operations for conversation
// messages using GORM.
type MessageRepositoryImpl struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) *MessageRepositoryImpl {
	return &MessageRepositoryImpl{db: db}
}

// Save upserts a message by ID. Monitor messages are written once at stream
// end, so a retry after a transient failure must not duplicate the row.
func (r *MessageRepositoryImpl) Save(ctx context.Context, msg *models.Message) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text", "complete"}),
		}).
		Create(msg).Error
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListBySession returns a session's conversation in chronological order.
func (r *MessageRepositoryImpl) ListBySession(ctx context.Context, sessionID string) ([]models.Message, error) {
	var messages []models.Message

	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}
