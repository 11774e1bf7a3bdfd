package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"notify-collab/core"
)

type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based store. Notes and users are kept as
// one JSON file each under notes/ and users/.
func NewStore(basePath string) *fsStore {
	for _, dir := range []string{"notes", "users"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			log.Fatalf("failed to create base directory: %v", err)
		}
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) notePath(id string) (string, error) {
	// A note ID must be a simple name, not a path.
	if id == "" || filepath.Base(id) != id {
		return "", fmt.Errorf("invalid note id")
	}
	return filepath.Join(s.basePath, "notes", id+".json"), nil
}

func (s *fsStore) GetNote(ctx context.Context, id string) (*core.Note, error) {
	path, err := s.notePath(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.WithField("note_id", id).Warn("note with specified ID not found")
			return nil, core.ErrNoteNotFound
		}
		return nil, err
	}

	var note core.Note
	if err := json.Unmarshal(data, &note); err != nil {
		return nil, fmt.Errorf("failed to unmarshal note %s: %w", id, err)
	}
	return &note, nil
}

func (s *fsStore) SaveNote(ctx context.Context, note *core.Note) error {
	path, err := s.notePath(note.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return core.ErrNoteNotFound
	}
	note.UpdatedAt = time.Now()
	return s.writeJSON(path, note)
}

func (s *fsStore) CreateNote(ctx context.Context, note *core.Note) (string, error) {
	if note.ID == "" {
		note.ID = ulid.Make().String()
	}
	if note.Version == 0 {
		note.Version = 1
	}
	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	path, err := s.notePath(note.ID)
	if err != nil {
		return "", err
	}
	if err := s.writeJSON(path, note); err != nil {
		return "", err
	}
	return note.ID, nil
}

func (s *fsStore) FindUser(ctx context.Context, id string) (*core.User, error) {
	if id == "" || filepath.Base(id) != id {
		return nil, fmt.Errorf("invalid user id")
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, "users", id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}

	var user core.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %s: %w", id, err)
	}
	return &user, nil
}

func (s *fsStore) writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
