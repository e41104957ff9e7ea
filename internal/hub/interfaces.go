package hub

import (
	"context"

	"github.com/kurtismassey/project-stargate/internal/gemini"
	"github.com/kurtismassey/project-stargate/internal/models"
	"github.com/kurtismassey/project-stargate/internal/services"
)

// Consumer-side interfaces. The repository, blob, gemini and services
// packages satisfy these; tests substitute fakes.

// SessionStore is what the hub needs from session record storage.
type SessionStore interface {
	GetOrCreate(ctx context.Context, id string) (*models.SessionRecord, error)
	UpdateStage(ctx context.Context, id string, stage int) error
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error
	SetTargetImage(ctx context.Context, id, path string) error
	SaveDetails(ctx context.Context, id string, details []string) error
	Complete(ctx context.Context, id, summary, modelledPath string, details []string) error
	SaveSnapshot(ctx context.Context, sessionID string, stage int, ref string) error
	ClearSnapshot(ctx context.Context, sessionID string, stage int) error
	GetSnapshots(ctx context.Context, sessionID string) (map[int]string, error)
}

// MessageStore is what the hub needs from message storage.
type MessageStore interface {
	Save(ctx context.Context, msg *models.Message) error
	ListBySession(ctx context.Context, sessionID string) ([]models.Message, error)
}

// GenerationStream yields text chunks in arrival order. Recv returns io.EOF
// at a clean end of stream.
type GenerationStream interface {
	Recv() (string, error)
	Close() error
}

// Generator is what the hub needs from the generative service.
type Generator interface {
	StreamGenerate(ctx context.Context, req gemini.GenerateRequest) (GenerationStream, error)
	GenerateText(ctx context.Context, req gemini.GenerateRequest) (string, error)
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
	UploadFile(ctx context.Context, data []byte, mimeType string) (*gemini.StagedFile, error)
	DeleteFile(ctx context.Context, name string) error
}

// ImageStore is what the hub needs from the blob store.
type ImageStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	PickRandomTarget(ctx context.Context, sessionID string) (string, error)
}

// DetailSink receives extracted details for embedding off the interactive
// path.
type DetailSink interface {
	SubmitJob(job services.IndexJob) error
}

// geminiGenerator adapts *gemini.Client to the Generator interface (the
// concrete StreamGenerate returns *gemini.Stream).
type geminiGenerator struct {
	client *gemini.Client
}

// WrapGenerator adapts the concrete Gemini client for hub use.
func WrapGenerator(client *gemini.Client) Generator {
	return &geminiGenerator{client: client}
}

func (g *geminiGenerator) StreamGenerate(ctx context.Context, req gemini.GenerateRequest) (GenerationStream, error) {
	return g.client.StreamGenerate(ctx, req)
}

func (g *geminiGenerator) GenerateText(ctx context.Context, req gemini.GenerateRequest) (string, error) {
	return g.client.GenerateText(ctx, req)
}

func (g *geminiGenerator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	return g.client.GenerateImage(ctx, prompt)
}

func (g *geminiGenerator) UploadFile(ctx context.Context, data []byte, mimeType string) (*gemini.StagedFile, error) {
	return g.client.UploadFile(ctx, data, mimeType)
}

func (g *geminiGenerator) DeleteFile(ctx context.Context, name string) error {
	return g.client.DeleteFile(ctx, name)
}
