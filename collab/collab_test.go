package collab

import (
	"context"
	"sync"
	"testing"
	"time"

	"notify-collab/core"
)

type recordedEmit struct {
	Room    string
	Except  string
	Event   string
	Payload any
}

// emitRecorder captures room emits so tests can assert on exactly what each
// participant would have received.
type emitRecorder struct {
	mu    sync.Mutex
	emits []recordedEmit
}

func (r *emitRecorder) ToRoom(noteID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emits = append(r.emits, recordedEmit{Room: noteID, Event: event, Payload: payload})
}

func (r *emitRecorder) ToRoomExcept(noteID, exceptConn, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emits = append(r.emits, recordedEmit{Room: noteID, Except: exceptConn, Event: event, Payload: payload})
}

func (r *emitRecorder) byEvent(event string) []recordedEmit {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEmit
	for _, e := range r.emits {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *emitRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emits = nil
}

type fakeStore struct {
	mu      sync.Mutex
	notes   map[string]*core.Note
	saveErr error
	latency time.Duration // simulated store round-trip time
}

func newFakeStore(notes ...*core.Note) *fakeStore {
	s := &fakeStore{notes: make(map[string]*core.Note)}
	for _, n := range notes {
		s.notes[n.ID] = n
	}
	return s
}

func (s *fakeStore) GetNote(ctx context.Context, id string) (*core.Note, error) {
	time.Sleep(s.latency)
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[id]
	if !ok {
		return nil, core.ErrNoteNotFound
	}
	clone := *note
	return &clone, nil
}

func (s *fakeStore) SaveNote(ctx context.Context, note *core.Note) error {
	time.Sleep(s.latency)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if _, ok := s.notes[note.ID]; !ok {
		return core.ErrNoteNotFound
	}
	clone := *note
	s.notes[note.ID] = &clone
	return nil
}

func (s *fakeStore) CreateNote(ctx context.Context, note *core.Note) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[note.ID] = note
	return note.ID, nil
}

var (
	userA = core.Identity{ID: "user-a", Username: "alice"}
	userB = core.Identity{ID: "user-b", Username: "bob"}
	userC = core.Identity{ID: "user-c", Username: "carol"}
)

func sharedNote() *core.Note {
	return &core.Note{
		ID:            "doc1",
		Title:         "shared",
		Content:       "initial",
		AuthorID:      userA.ID,
		Collaborators: []string{userB.ID},
		Version:       1,
	}
}

// Author and collaborator join doc1, the author edits, the collaborator
// leaves. Mirrors the full session flow end to end.
func TestEditAndLeaveFlow(t *testing.T) {
	note := sharedNote()
	store := newFakeStore(note)
	rooms := NewRooms()
	recorder := &emitRecorder{}
	updater := NewUpdater(store, recorder)

	rosterA, _, err := rooms.Join("doc1", "conn-a", userA, note)
	if err != nil {
		t.Fatalf("join A failed: %v", err)
	}
	if len(rosterA) != 1 {
		t.Fatalf("expected roster of 1 after first join, got %d", len(rosterA))
	}
	rosterB, _, err := rooms.Join("doc1", "conn-b", userB, note)
	if err != nil {
		t.Fatalf("join B failed: %v", err)
	}
	if len(rosterB) != 2 {
		t.Fatalf("expected roster of 2, got %d", len(rosterB))
	}

	updated, err := updater.ApplyEdit(context.Background(), "doc1", "conn-a", userA, "hello")
	if err != nil {
		t.Fatalf("ApplyEdit failed: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("expected version 2 after first edit, got %d", updated.Version)
	}

	relays := recorder.byEvent(EventNoteUpdated)
	if len(relays) != 1 {
		t.Fatalf("expected 1 note-updated relay, got %d", len(relays))
	}
	if relays[0].Except != "conn-a" {
		t.Errorf("relay must exclude the sender conn-a, excluded %q", relays[0].Except)
	}
	event := relays[0].Payload.(NoteUpdatedEvent)
	if event.Content != "hello" || event.Version != 2 || event.LastEditedBy != userA {
		t.Errorf("unexpected relay payload: %+v", event)
	}

	roster, empty, removed := rooms.Leave("doc1", "conn-b")
	if !removed {
		t.Fatal("conn-b was a member, leave must remove it")
	}
	if empty {
		t.Fatal("room should not be empty after one of two leaves")
	}
	if ids := rosterIDsFrom(roster); len(ids) != 1 || ids[0] != userA.ID {
		t.Errorf("expected roster [user-a] after B left, got %v", ids)
	}
}

func rosterIDsFrom(roster []core.Identity) []string {
	ids := make([]string, 0, len(roster))
	for _, identity := range roster {
		ids = append(ids, identity.ID)
	}
	return ids
}

// A stranger joining a private note is rejected with no state change and no
// broadcast to existing members.
func TestJoinDeniedLeavesNoTrace(t *testing.T) {
	note := sharedNote()
	rooms := NewRooms()

	if _, _, err := rooms.Join("doc1", "conn-a", userA, note); err != nil {
		t.Fatalf("author join failed: %v", err)
	}

	_, _, err := rooms.Join("doc1", "conn-c", userC, note)
	if err != ErrAccessDenied {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}

	if ids := rosterIDsFrom(rooms.Roster("doc1")); len(ids) != 1 || ids[0] != userA.ID {
		t.Errorf("roster mutated by denied join: %v", ids)
	}
	if _, ok := rooms.NoteOf("conn-c"); ok {
		t.Error("denied connection must not be tracked in any room")
	}
}

// Preview mode set, then the user's connection goes away without clearing it:
// remaining members see a preview roster without the user.
func TestPreviewClearedOnDisconnect(t *testing.T) {
	note := sharedNote()
	rooms := NewRooms()
	recorder := &emitRecorder{}
	presence := NewPresence(rooms, recorder, 0)

	rooms.Join("doc1", "conn-a", userA, note)
	rooms.Join("doc1", "conn-b", userB, note)

	presence.SetPreview("doc1", userA, true)
	updates := recorder.byEvent(EventPreviewModeUpdate)
	if len(updates) != 1 {
		t.Fatalf("expected 1 preview update, got %d", len(updates))
	}
	list := updates[0].Payload.(PreviewModeUpdatedEvent).PreviewingUsers
	if len(list) != 1 || list[0] != userA {
		t.Fatalf("expected preview list [alice], got %v", list)
	}
	recorder.reset()

	// Simulate disconnect cleanup for conn-a.
	change, ok := rooms.LeaveAll("conn-a")
	if !ok {
		t.Fatal("LeaveAll should find conn-a in a room")
	}
	if !rooms.HasUser("doc1", userA.ID) {
		presence.ClearUser("doc1", userA)
	}

	updates = recorder.byEvent(EventPreviewModeUpdate)
	if len(updates) != 1 {
		t.Fatalf("expected preview update on disconnect, got %d", len(updates))
	}
	if list := updates[0].Payload.(PreviewModeUpdatedEvent).PreviewingUsers; len(list) != 0 {
		t.Errorf("expected empty preview list after disconnect, got %v", list)
	}
	if change.Empty {
		t.Error("room should still have bob in it")
	}
}

// Interleaved edits from two identities produce a strictly increasing
// version sequence with no gaps.
func TestVersionMonotonicAcrossEditors(t *testing.T) {
	note := sharedNote()
	store := newFakeStore(note)
	recorder := &emitRecorder{}
	updater := NewUpdater(store, recorder)

	editors := []struct {
		conn     string
		identity core.Identity
	}{
		{"conn-a", userA},
		{"conn-b", userB},
		{"conn-a", userA},
		{"conn-b", userB},
		{"conn-b", userB},
	}

	expected := note.Version
	for i, e := range editors {
		expected++
		updated, err := updater.ApplyEdit(context.Background(), "doc1", e.conn, e.identity, "rev")
		if err != nil {
			t.Fatalf("edit %d failed: %v", i, err)
		}
		if updated.Version != expected {
			t.Fatalf("edit %d: expected version %d, got %d", i, expected, updated.Version)
		}
	}
}

// Two connections edit the same note at the same time against a slow store.
// Every read-modify-write cycle must be serialized per note: no duplicated
// versions, no lost updates.
func TestConcurrentEditsKeepVersionsStrict(t *testing.T) {
	note := sharedNote()
	store := newFakeStore(note)
	store.latency = 2 * time.Millisecond
	recorder := &emitRecorder{}
	updater := NewUpdater(store, recorder)

	const editsPerEditor = 10
	editors := []struct {
		conn     string
		identity core.Identity
	}{
		{"conn-a", userA},
		{"conn-b", userB},
	}

	var wg sync.WaitGroup
	for _, e := range editors {
		wg.Add(1)
		go func(conn string, identity core.Identity) {
			defer wg.Done()
			for i := 0; i < editsPerEditor; i++ {
				if _, err := updater.ApplyEdit(context.Background(), "doc1", conn, identity, "rev"); err != nil {
					t.Errorf("edit by %s failed: %v", identity.ID, err)
					return
				}
			}
		}(e.conn, e.identity)
	}
	wg.Wait()

	wantFinal := note.Version + int64(len(editors)*editsPerEditor)
	stored, err := store.GetNote(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if stored.Version != wantFinal {
		t.Errorf("expected final version %d, got %d", wantFinal, stored.Version)
	}

	seen := make(map[int64]int)
	for _, relay := range recorder.byEvent(EventNoteUpdated) {
		seen[relay.Payload.(NoteUpdatedEvent).Version]++
	}
	for version := note.Version + 1; version <= wantFinal; version++ {
		if seen[version] != 1 {
			t.Errorf("version %d relayed %d times, want exactly once", version, seen[version])
		}
	}
}
