package repository

import (
	"context"
	"fmt"

	"github.com/kurtismassey/project-stargate/internal/models"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// DetailRepositoryImpl handles vector operations for extracted session
// details using pgvector.
type DetailRepositoryImpl struct {
	db *gorm.DB
}

// NewDetailRepository creates a new detail repository
func NewDetailRepository(db *gorm.DB) *DetailRepositoryImpl {
	return &DetailRepositoryImpl{db: db}
}

// Store saves one detail embedding.
func (r *DetailRepositoryImpl) Store(ctx context.Context, detail *models.DetailEmbedding) error {
	if err := r.db.WithContext(ctx).Create(detail).Error; err != nil {
		return fmt.Errorf("failed to store detail embedding: %w", err)
	}
	return nil
}

// Search finds past-session details closest to the query embedding using
// cosine distance. The <=> operator comes from pgvector; lower distance
// means more similar.
func (r *DetailRepositoryImpl) Search(ctx context.Context, queryEmbedding []float32, limit int) ([]*models.SessionMatch, error) {
	vec := pgvector.NewVector(queryEmbedding)

	var results []*models.SessionMatch

	// Raw SQL since GORM has no native vector operator support.
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			session_id,
			text,
			kind,
			1 - (embedding <=> ?) as score
		FROM detail_embeddings
		WHERE deleted_at IS NULL
		ORDER BY embedding <=> ?
		LIMIT ?
	`, vec, vec, limit).Scan(&results).Error

	if err != nil {
		return nil, fmt.Errorf("failed to search details: %w", err)
	}
	return results, nil
}

// DeleteBySession soft-deletes all detail embeddings for a session.
func (r *DetailRepositoryImpl) DeleteBySession(ctx context.Context, sessionID string) error {
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.DetailEmbedding{}).Error; err != nil {
		return fmt.Errorf("failed to delete detail embeddings: %w", err)
	}
	return nil
}
