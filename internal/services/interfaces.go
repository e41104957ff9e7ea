package services

import (
	"context"

	"github.com/kurtismassey/project-stargate/internal/models"
)

// Interfaces are declared here, on the consumer side, and satisfied by the
// repository and gemini packages.

// DetailRepository defines what the indexer needs from detail storage.
type DetailRepository interface {
	Store(ctx context.Context, detail *models.DetailEmbedding) error
	Search(ctx context.Context, queryEmbedding []float32, limit int) ([]*models.SessionMatch, error)
}

// Embedder defines what the indexer needs from the generative service.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}
