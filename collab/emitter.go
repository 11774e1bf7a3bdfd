package collab

import (
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// Emitter delivers a named event to a note room. The gateway wires a
// socket.io-backed implementation; tests substitute a recorder.
type Emitter interface {
	// ToRoom sends the event to every participant of the room.
	ToRoom(noteID, event string, payload any)

	// ToRoomExcept sends the event to every participant except one
	// connection, typically the sender.
	ToRoomExcept(noteID, exceptConn, event string, payload any)
}

type serverEmitter struct {
	srv *socketio.Server
}

func (e *serverEmitter) ToRoom(noteID, event string, payload any) {
	_ = e.srv.To(socketio.Room(noteID)).Emit(event, payload)
}

func (e *serverEmitter) ToRoomExcept(noteID, exceptConn, event string, payload any) {
	// Every socket is a member of its own ID room, so excluding that room
	// excludes exactly the sender.
	_ = e.srv.To(socketio.Room(noteID)).Except(socketio.Room(exceptConn)).Emit(event, payload)
}

type publisher interface {
	Publish(room, event string, payload any)
}

// bridgedEvents are the relay events mirrored across instances. Their
// payloads describe one user's action and hold everywhere. State snapshots
// (rosters, preview lists) are computed from process-local membership and
// would overwrite another instance's view with a partial one, so they stay
// instance-local.
var bridgedEvents = map[string]bool{
	EventNoteUpdated:   true,
	EventUserTyping:    true,
	EventCursorUpdated: true,
}

// fanoutEmitter mirrors relay events onto the bridge so participants of the
// same note on other instances see each other's edits.
type fanoutEmitter struct {
	local  Emitter
	bridge publisher
}

func (e *fanoutEmitter) ToRoom(noteID, event string, payload any) {
	e.local.ToRoom(noteID, event, payload)
	if bridgedEvents[event] {
		e.bridge.Publish(noteID, event, payload)
	}
}

func (e *fanoutEmitter) ToRoomExcept(noteID, exceptConn, event string, payload any) {
	e.local.ToRoomExcept(noteID, exceptConn, event, payload)
	// The excluded sender's socket only exists on this instance, so remote
	// instances deliver to their whole room.
	if bridgedEvents[event] {
		e.bridge.Publish(noteID, event, payload)
	}
}
