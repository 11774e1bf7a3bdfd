package collab

import (
	"fmt"
	"reflect"
	"testing"

	"notify-collab/core"
)

func TestJoinCreatesRoomAndRoster(t *testing.T) {
	note := sharedNote()
	rooms := NewRooms()

	roster, prev, err := rooms.Join("doc1", "conn-a", userA, note)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if prev != nil {
		t.Errorf("first join should have no previous room, got %+v", prev)
	}
	if !reflect.DeepEqual(roster, []core.Identity{userA}) {
		t.Errorf("unexpected roster: %v", roster)
	}
}

func TestJoinPublicNote(t *testing.T) {
	note := sharedNote()
	note.IsPublic = true
	rooms := NewRooms()

	if _, _, err := rooms.Join("doc1", "conn-c", userC, note); err != nil {
		t.Errorf("anyone may join a public note, got %v", err)
	}
}

func TestJoinSwitchesRooms(t *testing.T) {
	doc1 := sharedNote()
	doc2 := sharedNote()
	doc2.ID = "doc2"
	rooms := NewRooms()

	rooms.Join("doc1", "conn-a", userA, doc1)
	rooms.Join("doc1", "conn-b", userB, doc1)

	// A connection is in at most one room; joining doc2 detaches from doc1.
	_, prev, err := rooms.Join("doc2", "conn-a", userA, doc2)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if prev == nil || prev.NoteID != "doc1" {
		t.Fatalf("expected departure from doc1, got %+v", prev)
	}
	if prev.Empty {
		t.Error("doc1 still has bob, must not be empty")
	}
	if ids := rosterIDsFrom(prev.Roster); len(ids) != 1 || ids[0] != userB.ID {
		t.Errorf("expected doc1 roster [user-b], got %v", ids)
	}

	if noteID, _ := rooms.NoteOf("conn-a"); noteID != "doc2" {
		t.Errorf("expected conn-a in doc2, got %q", noteID)
	}
}

func TestRosterDeduplicatesByUser(t *testing.T) {
	note := sharedNote()
	rooms := NewRooms()

	// Same identity from two tabs counts once in the roster.
	rooms.Join("doc1", "conn-a1", userA, note)
	rooms.Join("doc1", "conn-a2", userA, note)
	rooms.Join("doc1", "conn-b", userB, note)

	roster := rooms.Roster("doc1")
	if len(roster) != 2 {
		t.Fatalf("expected 2 distinct identities, got %d: %v", len(roster), roster)
	}

	// One tab closing keeps the user in the roster.
	rooms.Leave("doc1", "conn-a1")
	if !rooms.HasUser("doc1", userA.ID) {
		t.Error("user should remain while their second connection is alive")
	}
	rooms.Leave("doc1", "conn-a2")
	if rooms.HasUser("doc1", userA.ID) {
		t.Error("user should be gone after their last connection left")
	}
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	note := sharedNote()
	rooms := NewRooms()

	rooms.Join("doc1", "conn-a", userA, note)
	roster, empty, removed := rooms.Leave("doc1", "conn-a")
	if !removed {
		t.Error("expected leave of a member connection to report removal")
	}
	if !empty {
		t.Error("expected room to be empty after last leave")
	}
	if len(roster) != 0 {
		t.Errorf("expected empty roster, got %v", roster)
	}
	if snap := rooms.Snapshot(); len(snap) != 0 {
		t.Errorf("expected no active rooms, got %v", snap)
	}
}

func TestLeaveWrongRoomIsNoOp(t *testing.T) {
	note := sharedNote()
	rooms := NewRooms()

	rooms.Join("doc1", "conn-a", userA, note)
	_, empty, removed := rooms.Leave("doc2", "conn-a")
	if removed {
		t.Error("leaving a room the connection is not in must not report removal")
	}
	if empty {
		t.Error("leaving a room the connection is not in must not report empty")
	}
	if _, ok := rooms.NoteOf("conn-a"); !ok {
		t.Error("connection must still be in doc1")
	}
	if ids := rosterIDsFrom(rooms.Roster("doc1")); len(ids) != 1 || ids[0] != userA.ID {
		t.Errorf("doc1 roster must be untouched, got %v", ids)
	}

	// A connection that never joined anything gets the same treatment.
	if _, _, removed := rooms.Leave("doc1", "conn-stranger"); removed {
		t.Error("unknown connection must not report removal")
	}
}

func TestLeaveAllUnknownConnection(t *testing.T) {
	rooms := NewRooms()
	if _, ok := rooms.LeaveAll("ghost"); ok {
		t.Error("LeaveAll for unknown connection must report ok=false")
	}
}

func TestRosterAfterJoinLeaveSequence(t *testing.T) {
	note := sharedNote()
	note.IsPublic = true
	rooms := NewRooms()

	// Arbitrary join/leave interleaving; roster must always equal the live
	// distinct set with no stale entries.
	users := []core.Identity{userA, userB, userC}
	for i, u := range users {
		rooms.Join("doc1", fmt.Sprintf("conn-%d", i), u, note)
	}
	rooms.Leave("doc1", "conn-1")

	ids := rosterIDsFrom(rooms.Roster("doc1"))
	if !reflect.DeepEqual(ids, []string{userA.ID, userC.ID}) {
		t.Errorf("expected [user-a user-c], got %v", ids)
	}
}

func TestSnapshotCountsConnections(t *testing.T) {
	note := sharedNote()
	rooms := NewRooms()

	rooms.Join("doc1", "conn-a1", userA, note)
	rooms.Join("doc1", "conn-a2", userA, note)

	snap := rooms.Snapshot()
	if snap["doc1"] != 2 {
		t.Errorf("expected 2 connections in doc1, got %d", snap["doc1"])
	}
}
