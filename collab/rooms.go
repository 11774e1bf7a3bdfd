package collab

import (
	"sort"
	"sync"

	"notify-collab/core"
)

type roomState struct {
	members map[string]core.Identity // connection ID -> identity
	preview map[string]core.Identity // user ID -> identity
}

// RoomChange describes the state of a room a connection just left: the new
// roster and whether the room became empty (and was deleted).
type RoomChange struct {
	NoteID string
	Roster []core.Identity
	Empty  bool
}

// Rooms maintains, per note, the live set of joined connections and the
// per-user preview set. A connection is a member of at most one note room at
// a time; rooms are created lazily on first join and deleted when the last
// member leaves.
type Rooms struct {
	mu     sync.RWMutex
	rooms  map[string]*roomState
	byConn map[string]string // connection ID -> note ID
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms:  make(map[string]*roomState),
		byConn: make(map[string]string),
	}
}

// Join adds a connection to a note room after a fresh access check against
// the note. On ErrAccessDenied no room state is mutated. If the connection
// was in a different room, it is removed from it first and that room's change
// is returned so the caller can re-broadcast its roster.
func (r *Rooms) Join(noteID, connID string, identity core.Identity, note *core.Note) (roster []core.Identity, prev *RoomChange, err error) {
	if !note.CanEdit(identity.ID) {
		return nil, nil, ErrAccessDenied
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prevNote, ok := r.byConn[connID]; ok && prevNote != noteID {
		change := r.leaveLocked(prevNote, connID)
		prev = &change
	}

	room := r.rooms[noteID]
	if room == nil {
		room = &roomState{
			members: make(map[string]core.Identity),
			preview: make(map[string]core.Identity),
		}
		r.rooms[noteID] = room
	}
	room.members[connID] = identity
	r.byConn[connID] = noteID

	return r.rosterLocked(noteID), prev, nil
}

// Leave removes a connection from a room and reports the updated roster.
// empty is true when the room became empty and was deleted. Leaving a room
// the connection is not in is a no-op with removed false; callers must not
// broadcast anything in that case, since nothing changed.
func (r *Rooms) Leave(noteID, connID string) (roster []core.Identity, empty, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byConn[connID] != noteID {
		return r.rosterLocked(noteID), false, false
	}
	change := r.leaveLocked(noteID, connID)
	return change.Roster, change.Empty, true
}

// LeaveAll detaches a connection from whatever room it is in, for disconnect
// cleanup. ok is false if the connection was in no room.
func (r *Rooms) LeaveAll(connID string) (change RoomChange, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	noteID, ok := r.byConn[connID]
	if !ok {
		return RoomChange{}, false
	}
	return r.leaveLocked(noteID, connID), true
}

func (r *Rooms) leaveLocked(noteID, connID string) RoomChange {
	delete(r.byConn, connID)

	room := r.rooms[noteID]
	if room == nil {
		return RoomChange{NoteID: noteID, Empty: true}
	}
	delete(room.members, connID)
	if len(room.members) == 0 {
		delete(r.rooms, noteID)
		return RoomChange{NoteID: noteID, Empty: true}
	}
	return RoomChange{NoteID: noteID, Roster: r.rosterLocked(noteID)}
}

// Roster returns the distinct identities currently in a room, connection
// counts collapsed to presence.
func (r *Rooms) Roster(noteID string) []core.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rosterLocked(noteID)
}

func (r *Rooms) rosterLocked(noteID string) []core.Identity {
	room := r.rooms[noteID]
	if room == nil {
		return []core.Identity{}
	}

	seen := make(map[string]struct{}, len(room.members))
	roster := make([]core.Identity, 0, len(room.members))
	for _, identity := range room.members {
		if _, dup := seen[identity.ID]; dup {
			continue
		}
		seen[identity.ID] = struct{}{}
		roster = append(roster, identity)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].ID < roster[j].ID })
	return roster
}

// NoteOf reports which room a connection is currently in.
func (r *Rooms) NoteOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	noteID, ok := r.byConn[connID]
	return noteID, ok
}

// HasUser reports whether any connection of the given user remains in the
// room. Preview and typing state is keyed by user, so it is only cleared once
// the user's last connection is gone.
func (r *Rooms) HasUser(noteID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[noteID]
	if room == nil {
		return false
	}
	for _, identity := range room.members {
		if identity.ID == userID {
			return true
		}
	}
	return false
}

// SetPreview adds or removes a user from the room's preview set and returns
// the updated preview roster.
func (r *Rooms) SetPreview(noteID string, identity core.Identity, on bool) []core.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[noteID]
	if room == nil {
		return []core.Identity{}
	}
	if on {
		room.preview[identity.ID] = identity
	} else {
		delete(room.preview, identity.ID)
	}
	return previewListLocked(room)
}

// ClearPreview removes a user from the preview set, reporting whether it was
// present, so callers only re-broadcast on an actual change.
func (r *Rooms) ClearPreview(noteID, userID string) ([]core.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[noteID]
	if room == nil {
		return []core.Identity{}, false
	}
	if _, ok := room.preview[userID]; !ok {
		return previewListLocked(room), false
	}
	delete(room.preview, userID)
	return previewListLocked(room), true
}

// PreviewUsers returns the room's current preview roster.
func (r *Rooms) PreviewUsers(noteID string) []core.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[noteID]
	if room == nil {
		return []core.Identity{}
	}
	return previewListLocked(room)
}

func previewListLocked(room *roomState) []core.Identity {
	list := make([]core.Identity, 0, len(room.preview))
	for _, identity := range room.preview {
		list = append(list, identity)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Snapshot returns the active rooms and their connection counts.
func (r *Rooms) Snapshot() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]int, len(r.rooms))
	for noteID, room := range r.rooms {
		snap[noteID] = len(room.members)
	}
	return snap
}
