package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/kurtismassey/project-stargate/internal/config"
	"github.com/kurtismassey/project-stargate/internal/gemini"
	"github.com/kurtismassey/project-stargate/internal/models"
	"github.com/kurtismassey/project-stargate/internal/services"

	"github.com/segmentio/ksuid"
)

// --- fakes ---

var errBoom = errors.New("boom")

type fakeSessionStore struct {
	mu        sync.Mutex
	records   map[string]*models.SessionRecord
	stages    map[string]int
	statuses  map[string]models.SessionStatus
	targets   map[string]string
	details   map[string][]string
	completed map[string]int
	snapshots map[string]map[int]string
	cleared   []int
	getErr    error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		records:   make(map[string]*models.SessionRecord),
		stages:    make(map[string]int),
		statuses:  make(map[string]models.SessionStatus),
		targets:   make(map[string]string),
		details:   make(map[string][]string),
		completed: make(map[string]int),
		snapshots: make(map[string]map[int]string),
	}
}

func (f *fakeSessionStore) GetOrCreate(_ context.Context, id string) (*models.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if record, ok := f.records[id]; ok {
		return record, nil
	}
	record := &models.SessionRecord{ID: id, CurrentStage: models.MinStage, Status: models.StatusActive}
	f.records[id] = record
	return record, nil
}

func (f *fakeSessionStore) UpdateStage(_ context.Context, id string, stage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages[id] = stage
	return nil
}

func (f *fakeSessionStore) UpdateStatus(_ context.Context, id string, status models.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeSessionStore) SetTargetImage(_ context.Context, id, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets[id] = path
	return nil
}

func (f *fakeSessionStore) SaveDetails(_ context.Context, id string, details []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[id] = details
	return nil
}

func (f *fakeSessionStore) Complete(_ context.Context, id, summary, modelledPath string, details []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[id]++
	record, ok := f.records[id]
	if !ok {
		record = &models.SessionRecord{ID: id}
		f.records[id] = record
	}
	record.Status = models.StatusCompleted
	record.Summary = summary
	record.ModelledImagePath = modelledPath
	record.Details = details
	return nil
}

func (f *fakeSessionStore) SaveSnapshot(_ context.Context, sessionID string, stage int, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshots[sessionID] == nil {
		f.snapshots[sessionID] = make(map[int]string)
	}
	f.snapshots[sessionID][stage] = ref
	return nil
}

func (f *fakeSessionStore) ClearSnapshot(_ context.Context, sessionID string, stage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, stage)
	delete(f.snapshots[sessionID], stage)
	return nil
}

func (f *fakeSessionStore) GetSnapshots(_ context.Context, sessionID string) (map[int]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := make(map[int]string)
	for stage, ref := range f.snapshots[sessionID] {
		refs[stage] = ref
	}
	return refs, nil
}

type fakeMessageStore struct {
	mu      sync.Mutex
	history map[string][]models.Message
	saved   []models.Message
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{history: make(map[string][]models.Message)}
}

func (f *fakeMessageStore) Save(_ context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *msg)
	return nil
}

func (f *fakeMessageStore) ListBySession(_ context.Context, sessionID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[sessionID], nil
}

func (f *fakeMessageStore) savedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, len(f.saved))
	for i, msg := range f.saved {
		texts[i] = msg.Text
	}
	return texts
}

type fakeStream struct {
	chunks []string
	err    error
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos < len(s.chunks) {
		chunk := s.chunks[s.pos]
		s.pos++
		return chunk, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeGenerator struct {
	mu sync.Mutex

	chunks    []string
	streamErr error
	startErr  error

	textResponse string
	textErr      error
	textCalls    int

	imageBytes []byte
	imageErr   error

	uploads int
	deleted []string
}

func (g *fakeGenerator) StreamGenerate(_ context.Context, _ gemini.GenerateRequest) (GenerationStream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.startErr != nil {
		return nil, g.startErr
	}
	return &fakeStream{chunks: g.chunks, err: g.streamErr}, nil
}

func (g *fakeGenerator) GenerateText(_ context.Context, _ gemini.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.textCalls++
	return g.textResponse, g.textErr
}

func (g *fakeGenerator) GenerateImage(_ context.Context, _ string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.imageErr != nil {
		return nil, g.imageErr
	}
	return g.imageBytes, nil
}

func (g *fakeGenerator) UploadFile(_ context.Context, _ []byte, _ string) (*gemini.StagedFile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploads++
	name := fmt.Sprintf("files/fake-%d", g.uploads)
	return &gemini.StagedFile{Name: name, URI: "https://files.example/" + name}, nil
}

func (g *fakeGenerator) DeleteFile(_ context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, name)
	return nil
}

type fakeImages struct {
	mu      sync.Mutex
	uploads map[string][]byte
	pickErr error
}

func newFakeImages() *fakeImages {
	return &fakeImages{uploads: make(map[string][]byte)}
}

func (f *fakeImages) Upload(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[key] = data
	return nil
}

func (f *fakeImages) PickRandomTarget(_ context.Context, sessionID string) (string, error) {
	if f.pickErr != nil {
		return "", f.pickErr
	}
	return "sessions/" + sessionID + "/targetImage/actual_target.jpg", nil
}

type fakeSink struct {
	mu   sync.Mutex
	jobs []services.IndexJob
}

func (f *fakeSink) SubmitJob(job services.IndexJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

// --- helpers ---

type testEnv struct {
	hub      *Hub
	sessions *fakeSessionStore
	messages *fakeMessageStore
	gen      *fakeGenerator
	images   *fakeImages
	sink     *fakeSink
}

func newTestEnv() *testEnv {
	env := &testEnv{
		sessions: newFakeSessionStore(),
		messages: newFakeMessageStore(),
		gen:      &fakeGenerator{},
		images:   newFakeImages(),
		sink:     &fakeSink{},
	}
	cfg := &config.Config{
		AnalysisTimeout:  5 * time.Second,
		CompletedRoomTTL: 5 * time.Minute,
		AbandonedRoomTTL: time.Hour,
	}
	env.hub = NewHub(cfg, env.sessions, env.messages, env.gen, env.images, env.sink)
	return env
}

func newTestConn(h *Hub) *Conn {
	return &Conn{
		ID:   ksuid.New().String(),
		hub:  h,
		send: make(chan []byte, sendBufferSize),
	}
}

// drain decodes every frame queued on the conn's send channel.
func drain(t *testing.T, c *Conn) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for {
		select {
		case raw := <-c.send:
			var frame map[string]any
			if err := json.Unmarshal(raw, &frame); err != nil {
				t.Fatalf("undecodable frame: %v", err)
			}
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func framesOfType(frames []map[string]any, eventType string) []map[string]any {
	var out []map[string]any
	for _, frame := range frames {
		if frame["type"] == eventType {
			out = append(out, frame)
		}
	}
	return out
}

// --- tests ---

func TestJoinReplaysHistoryAndGreetsFreshSession(t *testing.T) {
	env := newTestEnv()
	c := newTestConn(env.hub)

	env.hub.Join(c, "session-1")

	frames := drain(t, c)
	histories := framesOfType(frames, models.EventInitialHistory)
	if len(histories) != 1 {
		t.Fatalf("expected 1 initialHistory frame, got %d", len(histories))
	}

	history, ok := histories[0]["history"].([]any)
	if !ok || len(history) != 1 {
		t.Fatalf("expected greeting in history, got %v", histories[0]["history"])
	}
	first := history[0].(map[string]any)
	if first["user"] != string(models.AuthorMonitor) {
		t.Errorf("greeting author = %v, want Monitor", first["user"])
	}

	if path, _ := histories[0]["targetImagePath"].(string); path == "" {
		t.Error("expected a target assigned at room creation")
	}
	if env.sessions.targets["session-1"] == "" {
		t.Error("expected target persisted")
	}
}

func TestJoinExistingSessionSkipsGreeting(t *testing.T) {
	env := newTestEnv()
	env.messages.history["session-1"] = []models.Message{
		{ID: "m1", SessionID: "session-1", Author: models.AuthorViewer, Text: "hello", Complete: true},
	}

	c := newTestConn(env.hub)
	env.hub.Join(c, "session-1")

	frames := framesOfType(drain(t, c), models.EventInitialHistory)
	history := frames[0]["history"].([]any)
	if len(history) != 1 {
		t.Fatalf("expected only the persisted message, got %d entries", len(history))
	}
	if len(env.messages.saved) != 0 {
		t.Errorf("expected no greeting persisted for a non-empty session, saved %d", len(env.messages.saved))
	}
}

func TestJoinMovesConnectionBetweenRooms(t *testing.T) {
	env := newTestEnv()
	c := newTestConn(env.hub)

	env.hub.Join(c, "session-a")
	roomA := c.Room()
	env.hub.Join(c, "session-b")

	if c.Room().ID != "session-b" {
		t.Fatalf("conn room = %s, want session-b", c.Room().ID)
	}
	roomA.mu.Lock()
	members := len(roomA.members)
	roomA.mu.Unlock()
	if members != 0 {
		t.Errorf("old room still has %d members", members)
	}
}

func TestHydrationFailureDegradesToInMemory(t *testing.T) {
	env := newTestEnv()
	env.sessions.getErr = fmt.Errorf("database down")

	c := newTestConn(env.hub)
	env.hub.Join(c, "session-1")

	if c.Room() == nil {
		t.Fatal("expected join to succeed despite storage failure")
	}
	if got := c.Room().Status(); got != models.StatusActive {
		t.Errorf("status = %s, want Active", got)
	}
}

func TestEvictIdleRooms(t *testing.T) {
	env := newTestEnv()
	c := newTestConn(env.hub)

	env.hub.Join(c, "done")
	doneRoom := c.Room()
	doneRoom.completeAnalysis("summary", "")
	env.hub.Leave(c)

	env.hub.Join(c, "fresh")
	env.hub.Leave(c)

	// Beyond the completed TTL but inside the abandoned TTL.
	env.hub.evictIdleRooms(time.Now().Add(10 * time.Minute))

	env.hub.mu.RLock()
	_, doneAlive := env.hub.rooms["done"]
	_, freshAlive := env.hub.rooms["fresh"]
	env.hub.mu.RUnlock()

	if doneAlive {
		t.Error("completed room should be evicted after its TTL")
	}
	if !freshAlive {
		t.Error("abandoned room should survive until the longer TTL")
	}
}

func TestJoinNeverLandsOnEvictedRoom(t *testing.T) {
	env := newTestEnv()
	env.hub.completedRoomTTL = 0
	env.hub.abandonedRoomTTL = 0

	stop := make(chan struct{})
	var sweeps sync.WaitGroup
	sweeps.Add(1)
	go func() {
		defer sweeps.Done()
		for {
			select {
			case <-stop:
				return
			default:
				env.hub.evictIdleRooms(time.Now().Add(48 * time.Hour))
			}
		}
	}()

	c := newTestConn(env.hub)
	for i := 0; i < 200; i++ {
		env.hub.Join(c, "session-1")

		// The joined room must be the registered one; an eviction between
		// room fetch and membership would strand the conn on a dead room.
		env.hub.mu.RLock()
		registered := env.hub.rooms["session-1"]
		env.hub.mu.RUnlock()
		if c.Room() != registered {
			t.Fatal("connection joined a room the registry no longer holds")
		}

		env.hub.Leave(c)
		drain(t, c)
	}

	close(stop)
	sweeps.Wait()
}

func TestEvictionSparesOccupiedRooms(t *testing.T) {
	env := newTestEnv()
	c := newTestConn(env.hub)
	env.hub.Join(c, "busy")

	env.hub.evictIdleRooms(time.Now().Add(24 * time.Hour))

	env.hub.mu.RLock()
	_, alive := env.hub.rooms["busy"]
	env.hub.mu.RUnlock()
	if !alive {
		t.Error("occupied room must never be evicted")
	}
}
