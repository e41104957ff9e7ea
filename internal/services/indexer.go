package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/kurtismassey/project-stargate/internal/models"

	"github.com/pgvector/pgvector-go"
)

// IndexJob is a batch of session texts to embed and store for semantic
// search across past sessions.
type IndexJob struct {
	SessionID string
	Kind      string
	Texts     []string
}

// DetailIndexer embeds extracted session details off the interactive path
// with a fixed worker pool, bounding concurrent embedding calls.
type DetailIndexer struct {
	embedder   Embedder
	detailRepo DetailRepository

	jobs    chan IndexJob
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex // guards jobs against close during a late submit
	closed bool
}

// NewDetailIndexer creates the indexer without starting its workers.
func NewDetailIndexer(embedder Embedder, detailRepo DetailRepository, numWorkers, queueSize int) *DetailIndexer {
	ctx, cancel := context.WithCancel(context.Background())

	return &DetailIndexer{
		embedder:   embedder,
		detailRepo: detailRepo,
		jobs:       make(chan IndexJob, queueSize),
		workers:    numWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start spawns the worker pool.
func (s *DetailIndexer) Start() {
	log.Printf("🔧 Starting detail indexer with %d workers", s.workers)

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *DetailIndexer) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			if err := s.processJob(job); err != nil {
				log.Printf("  Indexer worker %d error: %v", id, err)
			}
		}
	}
}

// SubmitJob queues a batch for embedding. Non-blocking while the queue has
// space; failures here are never fatal to the interactive flow, so a full
// queue drops the job with a log line. A turn finishing during shutdown gets
// an error, never a send on the closed channel.
func (s *DetailIndexer) SubmitJob(job IndexJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("indexer is shutting down")
	}
	select {
	case s.jobs <- job:
		return nil
	default:
		return fmt.Errorf("indexer queue full, dropping %d texts for session %s", len(job.Texts), job.SessionID)
	}
}

func (s *DetailIndexer) processJob(job IndexJob) error {
	ctx := context.Background()

	for _, text := range job.Texts {
		vector, err := s.embedder.EmbedText(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to embed %q: %w", text, err)
		}

		detail := &models.DetailEmbedding{
			SessionID: job.SessionID,
			Kind:      job.Kind,
			Text:      text,
			Embedding: pgvector.NewVector(vector),
		}
		if err := s.detailRepo.Store(ctx, detail); err != nil {
			return fmt.Errorf("failed to store embedding for %q: %w", text, err)
		}
	}
	return nil
}

// Search embeds the query and finds the closest stored details.
func (s *DetailIndexer) Search(ctx context.Context, query string, limit int) ([]*models.SessionMatch, error) {
	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.detailRepo.Search(ctx, vector, limit)
}

// QueueLength returns the number of pending jobs.
func (s *DetailIndexer) QueueLength() int {
	return len(s.jobs)
}

// Shutdown stops accepting jobs, drains the queue, then stops the workers.
// Safe to call once concurrent submitters may still be running; repeat calls
// are no-ops.
func (s *DetailIndexer) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()

	s.wg.Wait()
	s.cancel()
	log.Println("✓ Detail indexer shutdown complete")
}
