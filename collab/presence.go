package collab

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"notify-collab/core"
)

// DefaultTypingTTL is how long a typing=true signal stays live without being
// refreshed before the server broadcasts the implied stop.
const DefaultTypingTTL = 3 * time.Second

// Presence computes human-facing presence views (roster, typing, preview) and
// pushes them to room participants. Typing expiry is enforced server-side so
// a participant who disconnects mid-typing is authoritatively cleared for
// everyone else.
type Presence struct {
	rooms *Rooms
	emit  Emitter
	ttl   time.Duration

	mu     sync.Mutex
	typing map[string]map[string]*time.Timer // note ID -> user ID -> expiry timer
}

func NewPresence(rooms *Rooms, emit Emitter, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Presence{
		rooms:  rooms,
		emit:   emit,
		ttl:    ttl,
		typing: make(map[string]map[string]*time.Timer),
	}
}

// BroadcastRoster sends the room's current roster to every participant,
// including whoever caused the change.
func (p *Presence) BroadcastRoster(noteID string) {
	p.emit.ToRoom(noteID, EventUsersInNote, p.rooms.Roster(noteID))
}

// SetTyping records or clears a typing flag and relays the transition to
// every other participant. A true flag auto-expires after the TTL unless
// refreshed or explicitly cleared.
func (p *Presence) SetTyping(noteID, connID string, identity core.Identity, isTyping bool) {
	p.emit.ToRoomExcept(noteID, connID, EventUserTyping, UserTypingEvent{
		UserID:   identity.ID,
		Username: identity.Username,
		IsTyping: isTyping,
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	if !isTyping {
		p.stopTypingLocked(noteID, identity.ID)
		return
	}

	if timer := p.timerLocked(noteID, identity.ID); timer != nil {
		timer.Reset(p.ttl)
		return
	}
	if p.typing[noteID] == nil {
		p.typing[noteID] = make(map[string]*time.Timer)
	}
	p.typing[noteID][identity.ID] = time.AfterFunc(p.ttl, func() {
		p.expireTyping(noteID, identity)
	})
}

func (p *Presence) expireTyping(noteID string, identity core.Identity) {
	p.mu.Lock()
	cleared := p.stopTypingLocked(noteID, identity.ID)
	p.mu.Unlock()

	if !cleared {
		return
	}
	logrus.WithFields(logrus.Fields{
		"note_id": noteID,
		"user_id": identity.ID,
	}).Debug("typing flag expired")
	p.emit.ToRoom(noteID, EventUserTyping, UserTypingEvent{
		UserID:   identity.ID,
		Username: identity.Username,
		IsTyping: false,
	})
}

func (p *Presence) timerLocked(noteID, userID string) *time.Timer {
	if byUser := p.typing[noteID]; byUser != nil {
		return byUser[userID]
	}
	return nil
}

func (p *Presence) stopTypingLocked(noteID, userID string) bool {
	byUser := p.typing[noteID]
	timer, ok := byUser[userID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(byUser, userID)
	if len(byUser) == 0 {
		delete(p.typing, noteID)
	}
	return true
}

// IsTyping reports whether the user currently has a live typing flag.
func (p *Presence) IsTyping(noteID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timerLocked(noteID, userID) != nil
}

// SetPreview toggles a user's preview mode and broadcasts the full updated
// preview roster to the whole room, actor included.
func (p *Presence) SetPreview(noteID string, identity core.Identity, isPreview bool) {
	list := p.rooms.SetPreview(noteID, identity, isPreview)
	p.emit.ToRoom(noteID, EventPreviewModeUpdate, PreviewModeUpdatedEvent{PreviewingUsers: list})
}

// RelayCursor forwards a cursor position to every other participant. Cursor
// state is transient and never stored.
func (p *Presence) RelayCursor(noteID, connID string, identity core.Identity, position int) {
	p.emit.ToRoomExcept(noteID, connID, EventCursorUpdated, CursorUpdatedEvent{
		UserID:         identity.ID,
		Username:       identity.Username,
		CursorPosition: position,
	})
}

// ClearUser drops all transient state a user holds in a room: the typing flag
// (broadcast as an immediate stop) and the preview entry (broadcast as an
// updated roster). Called when the user's last connection leaves the room.
func (p *Presence) ClearUser(noteID string, identity core.Identity) {
	p.mu.Lock()
	wasTyping := p.stopTypingLocked(noteID, identity.ID)
	p.mu.Unlock()

	if wasTyping {
		p.emit.ToRoom(noteID, EventUserTyping, UserTypingEvent{
			UserID:   identity.ID,
			Username: identity.Username,
			IsTyping: false,
		})
	}
	if list, changed := p.rooms.ClearPreview(noteID, identity.ID); changed {
		p.emit.ToRoom(noteID, EventPreviewModeUpdate, PreviewModeUpdatedEvent{PreviewingUsers: list})
	}
}
