package collab

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"notify-collab/core"
)

// Socket event names. Client-to-server events carry the payload types below;
// decoding goes through decodePayload so every handler works on a closed,
// typed message set instead of raw maps.
const (
	EventJoinNote          = "join-note"
	EventLeaveNote         = "leave-note"
	EventNoteUpdate        = "note-update"
	EventNoteUpdated       = "note-updated"
	EventUsersInNote       = "users-in-note"
	EventTyping            = "typing"
	EventUserTyping        = "user-typing"
	EventCursorUpdate      = "cursor-update"
	EventCursorUpdated     = "cursor-updated"
	EventPreviewModeChange = "preview-mode-change"
	EventPreviewModeUpdate = "preview-mode-updated"
	EventError             = "error"
)

type (
	// NoteUpdatePayload is the client's note-update message: a whole-content
	// replacement for the note.
	NoteUpdatePayload struct {
		NoteID         string `json:"noteId"`
		Content        string `json:"content"`
		CursorPosition int    `json:"cursorPosition"`
	}

	// TypingPayload is the client's typing signal.
	TypingPayload struct {
		NoteID   string `json:"noteId"`
		IsTyping bool   `json:"isTyping"`
	}

	// CursorPayload is the client's cursor position signal.
	CursorPayload struct {
		NoteID         string `json:"noteId"`
		CursorPosition int    `json:"cursorPosition"`
	}

	// PreviewModePayload is the client's preview toggle. UserID and Username
	// are advisory; the server trusts only the authenticated identity.
	PreviewModePayload struct {
		NoteID    string `json:"noteId"`
		UserID    string `json:"userId"`
		Username  string `json:"username"`
		IsPreview bool   `json:"isPreview"`
	}

	// NoteUpdatedEvent relays an accepted edit to every other participant.
	NoteUpdatedEvent struct {
		Content      string        `json:"content"`
		LastEditedBy core.Identity `json:"lastEditedBy"`
		Version      int64         `json:"version"`
		Timestamp    time.Time     `json:"timestamp"`
	}

	// UserTypingEvent relays a typing transition to the rest of the room.
	UserTypingEvent struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
		IsTyping bool   `json:"isTyping"`
	}

	// CursorUpdatedEvent relays a cursor position to the rest of the room.
	CursorUpdatedEvent struct {
		UserID         string `json:"userId"`
		Username       string `json:"username"`
		CursorPosition int    `json:"cursorPosition"`
	}

	// PreviewModeUpdatedEvent carries the full preview roster so every client
	// converges on one view of who is previewing.
	PreviewModeUpdatedEvent struct {
		PreviewingUsers []core.Identity `json:"previewingUsers"`
	}

	// ErrorEvent is the per-request failure notice, delivered only to the
	// originating connection.
	ErrorEvent struct {
		Message string `json:"message"`
	}
)

// decodePayload maps a raw socket.io argument onto one of the typed payload
// structs above. Socket.io delivers JSON objects as map[string]any.
func decodePayload(raw any, out any) error {
	if raw == nil {
		return fmt.Errorf("missing payload")
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}

// firstString extracts a plain string argument (join-note and leave-note send
// the note ID bare, not wrapped in an object).
func firstString(datas []any) (string, bool) {
	if len(datas) == 0 {
		return "", false
	}
	s, ok := datas[0].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
