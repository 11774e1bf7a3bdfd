package collab

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"notify-collab/core"
)

// Updater is the single authority for mutating note content from live edits.
// The model is whole-content last-writer-wins: no merge, each accepted edit
// overwrites content and bumps the version by exactly one.
type Updater struct {
	store core.NoteStore
	emit  Emitter
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex // note ID -> edit lock
}

func NewUpdater(store core.NoteStore, emit Emitter) *Updater {
	return &Updater{
		store: store,
		emit:  emit,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

func (u *Updater) noteLock(noteID string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()

	lock := u.locks[noteID]
	if lock == nil {
		lock = &sync.Mutex{}
		u.locks[noteID] = lock
	}
	return lock
}

// ApplyEdit persists a whole-content replacement and relays it to every other
// participant of the note's room. Access is re-checked against the store on
// every edit; permissions can change mid-session. On a store failure the edit
// is not applied and nothing is relayed.
//
// Each call is a full read-modify-write cycle against the store. Handlers for
// different connections run on different goroutines, so the cycle is
// serialized per note; without that, two concurrent edits would both read
// version N and both persist N+1. Edits to different notes stay concurrent.
func (u *Updater) ApplyEdit(ctx context.Context, noteID, connID string, editor core.Identity, content string) (*core.Note, error) {
	lock := u.noteLock(noteID)
	lock.Lock()
	defer lock.Unlock()

	note, err := u.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if !note.CanEdit(editor.ID) {
		return nil, ErrAccessDenied
	}

	note.Content = content
	note.LastEditedBy = editor.ID
	note.Version++

	if err := u.store.SaveNote(ctx, note); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"note_id": noteID,
		"user_id": editor.ID,
		"version": note.Version,
	}).Debug("note updated")

	// The sender already has this content locally; echoing it back would
	// overwrite in-flight keystrokes.
	u.emit.ToRoomExcept(noteID, connID, EventNoteUpdated, NoteUpdatedEvent{
		Content:      content,
		LastEditedBy: editor,
		Version:      note.Version,
		Timestamp:    u.now().UTC(),
	})
	return note, nil
}
