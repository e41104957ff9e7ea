package hub

import (
	"reflect"
	"testing"
	"time"

	"github.com/kurtismassey/project-stargate/internal/models"
)

func TestAppendChunkAccumulatesOneMonitorMessage(t *testing.T) {
	room := newRoom("session-1")
	now := time.Now()

	room.appendChunk("resp-1", "The ", now)
	room.appendChunk("resp-1", "target ", now)
	room.appendChunk("resp-1", "is round.", now)

	history := room.conversation()
	if len(history) != 1 {
		t.Fatalf("got %d messages, want 1", len(history))
	}
	if history[0].Text != "The target is round." {
		t.Errorf("text = %q", history[0].Text)
	}
	if history[0].Complete {
		t.Error("in-flight message marked complete")
	}

	msg, ok := room.finishMessage("resp-1")
	if !ok || !msg.Complete {
		t.Fatalf("finishMessage = %+v, %t", msg, ok)
	}
}

func TestAppendChunkStartsFreshAfterInterleavedMessage(t *testing.T) {
	room := newRoom("session-1")
	now := time.Now()

	room.appendChunk("resp-1", "first", now)
	room.finishMessage("resp-1")
	room.appendMessage(models.Message{ID: "v1", Author: models.AuthorViewer, Text: "ok", Complete: true})
	room.appendChunk("resp-2", "second", now)

	history := room.conversation()
	if len(history) != 3 {
		t.Fatalf("got %d messages, want 3", len(history))
	}
	if history[2].ID != "resp-2" || history[2].Text != "second" {
		t.Errorf("last message = %+v", history[2])
	}
}

func TestMergeDetailsPreservesOrderAndDedupes(t *testing.T) {
	room := newRoom("session-1")

	added, all := room.mergeDetails([]string{"red", "", "round"})
	if !reflect.DeepEqual(added, []string{"red", "round"}) {
		t.Errorf("added = %v", added)
	}

	added, all = room.mergeDetails([]string{"round", "wet"})
	if !reflect.DeepEqual(added, []string{"wet"}) {
		t.Errorf("second added = %v", added)
	}
	if !reflect.DeepEqual(all, []string{"red", "round", "wet"}) {
		t.Errorf("all = %v", all)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	room := newRoom("session-1")

	if !room.tryBeginGeneration() {
		t.Fatal("fresh room refused a generation")
	}
	if room.tryBeginGeneration() {
		t.Error("second generation allowed while one is in flight")
	}
	if room.beginAnalysis() {
		t.Error("analysis allowed while a generation is in flight")
	}
	room.endGeneration()

	if !room.beginAnalysis() {
		t.Fatal("analysis refused on an idle Active room")
	}
	if room.beginAnalysis() {
		t.Error("analysis transition is not idempotent")
	}
	if room.tryBeginGeneration() {
		t.Error("generation allowed while Analyzing")
	}

	room.completeAnalysis("summary", "path")
	if got := room.Status(); got != models.StatusCompleted {
		t.Errorf("status = %s, want Completed", got)
	}
	if room.tryBeginGeneration() {
		t.Error("generation allowed on a Completed room")
	}
	if room.beginAnalysis() {
		t.Error("analysis allowed on a Completed room")
	}
}

func TestRestoreAppliesPersistedState(t *testing.T) {
	room := newRoom("session-1")
	record := &models.SessionRecord{
		ID:              "session-1",
		CurrentStage:    4,
		Status:          models.StatusAnalyzing,
		TargetImagePath: "sessions/session-1/targetImage/actual_target.jpg",
		Details:         []string{"red", "red", "round"},
	}

	room.restore(record, []models.Message{{ID: "m1", Text: "hi"}}, map[int]string{2: "blob://snap"})

	if got := room.CurrentStage(); got != 4 {
		t.Errorf("stage = %d, want 4", got)
	}
	if got := room.Status(); got != models.StatusAnalyzing {
		t.Errorf("status = %s", got)
	}
	if got := room.Details(); !reflect.DeepEqual(got, []string{"red", "round"}) {
		t.Errorf("details = %v, persisted duplicates should collapse", got)
	}

	replay := room.historyCopy()
	if replay.Snapshots[2] != "blob://snap" {
		t.Errorf("snapshots = %v", replay.Snapshots)
	}
	if len(replay.History) != 1 {
		t.Errorf("history = %v", replay.History)
	}
}

func TestIdleClockTracksOccupancy(t *testing.T) {
	env := newTestEnv()
	room := newRoom("session-1")
	c := newTestConn(env.hub)

	if room.idleFor(time.Now().Add(time.Hour)) == 0 {
		t.Error("fresh empty room should report idle time")
	}

	room.addMember(c)
	if room.idleFor(time.Now().Add(time.Hour)) != 0 {
		t.Error("occupied room must report zero idle time")
	}

	room.removeMember(c)
	if room.idleFor(time.Now().Add(time.Minute)) < time.Minute {
		t.Error("idle clock did not restart when the room emptied")
	}
}
