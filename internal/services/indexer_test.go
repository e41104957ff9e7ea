package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kurtismassey/project-stargate/internal/models"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, text)
	return []float32{0.1, 0.2}, nil
}

type fakeDetailRepo struct {
	mu      sync.Mutex
	stored  []*models.DetailEmbedding
	matches []*models.SessionMatch
}

func (f *fakeDetailRepo) Store(_ context.Context, detail *models.DetailEmbedding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, detail)
	return nil
}

func (f *fakeDetailRepo) Search(_ context.Context, _ []float32, _ int) ([]*models.SessionMatch, error) {
	return f.matches, nil
}

func (f *fakeDetailRepo) storedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

func TestIndexerEmbedsAndStoresJobTexts(t *testing.T) {
	embedder := &fakeEmbedder{}
	repo := &fakeDetailRepo{}
	indexer := NewDetailIndexer(embedder, repo, 2, 10)
	indexer.Start()

	err := indexer.SubmitJob(IndexJob{
		SessionID: "session-1",
		Kind:      models.DetailKindDetail,
		Texts:     []string{"red", "doorway"},
	})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for repo.storedCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	indexer.Shutdown()

	if repo.storedCount() != 2 {
		t.Fatalf("stored %d embeddings, want 2", repo.storedCount())
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, detail := range repo.stored {
		if detail.SessionID != "session-1" || detail.Kind != models.DetailKindDetail {
			t.Errorf("stored detail = %+v", detail)
		}
	}
}

func TestSubmitJobDropsWhenQueueFull(t *testing.T) {
	// No workers started, so the queue never drains.
	indexer := NewDetailIndexer(&fakeEmbedder{}, &fakeDetailRepo{}, 0, 1)

	if err := indexer.SubmitJob(IndexJob{SessionID: "s", Texts: []string{"a"}}); err != nil {
		t.Fatalf("first job rejected: %v", err)
	}
	if err := indexer.SubmitJob(IndexJob{SessionID: "s", Texts: []string{"b"}}); err == nil {
		t.Fatal("expected an error on a full queue")
	}
	if got := indexer.QueueLength(); got != 1 {
		t.Errorf("queue length = %d, want 1", got)
	}
}

func TestSubmitJobDuringShutdownErrorsInsteadOfPanicking(t *testing.T) {
	indexer := NewDetailIndexer(&fakeEmbedder{}, &fakeDetailRepo{}, 2, 4)
	indexer.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = indexer.SubmitJob(IndexJob{
					SessionID: "session-1",
					Kind:      models.DetailKindDetail,
					Texts:     []string{"red"},
				})
			}
		}()
	}

	indexer.Shutdown()
	wg.Wait()

	if err := indexer.SubmitJob(IndexJob{SessionID: "s", Texts: []string{"late"}}); err == nil {
		t.Error("expected an error submitting after shutdown")
	}

	// Repeat shutdown is a no-op, not a double close.
	indexer.Shutdown()
}

func TestSearchPropagatesEmbedError(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("embedding service down")}
	indexer := NewDetailIndexer(embedder, &fakeDetailRepo{}, 1, 1)

	if _, err := indexer.Search(context.Background(), "red", 5); err == nil {
		t.Fatal("expected an error when embedding fails")
	}
}

func TestSearchReturnsRepositoryMatches(t *testing.T) {
	repo := &fakeDetailRepo{matches: []*models.SessionMatch{
		{SessionID: "session-9", Text: "red doorway", Kind: models.DetailKindDetail, Score: 0.93},
	}}
	indexer := NewDetailIndexer(&fakeEmbedder{}, repo, 1, 1)

	matches, err := indexer.Search(context.Background(), "red", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].SessionID != "session-9" {
		t.Errorf("matches = %+v", matches)
	}
}
