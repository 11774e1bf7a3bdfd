package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"notify-collab/core"
)

// Store is an in-memory note store and user directory, used as the default
// backend and in tests.
type Store struct {
	mu    sync.RWMutex
	notes map[string]core.Note
	users map[string]core.User
}

func NewStore() *Store {
	return &Store{
		notes: make(map[string]core.Note),
		users: make(map[string]core.User),
	}
}

func (s *Store) GetNote(ctx context.Context, id string) (*core.Note, error) {
	s.mu.RLock()
	note, ok := s.notes[id]
	s.mu.RUnlock()

	if !ok {
		logrus.WithField("note_id", id).Warn("note with specified ID not found")
		return nil, core.ErrNoteNotFound
	}
	clone := note
	clone.Collaborators = append([]string(nil), note.Collaborators...)
	return &clone, nil
}

func (s *Store) SaveNote(ctx context.Context, note *core.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[note.ID]; !ok {
		return core.ErrNoteNotFound
	}
	note.UpdatedAt = time.Now()
	s.notes[note.ID] = *note
	return nil
}

func (s *Store) CreateNote(ctx context.Context, note *core.Note) (string, error) {
	if note.ID == "" {
		note.ID = ulid.Make().String()
	}
	if note.Version == 0 {
		note.Version = 1
	}
	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	s.mu.Lock()
	s.notes[note.ID] = *note
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"note_id":   note.ID,
		"author_id": note.AuthorID,
	}).Debug("note created")
	return note.ID, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	user, ok := s.users[id]
	s.mu.RUnlock()

	if !ok {
		return nil, core.ErrUserNotFound
	}
	return &user, nil
}

// AddUser seeds the directory. The realtime core never writes users; this
// exists for bootstrap and tests.
func (s *Store) AddUser(user core.User) {
	s.mu.Lock()
	s.users[user.ID] = user
	s.mu.Unlock()
}
