package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"notify-collab/core"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	noteTableStmt := `
	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		title TEXT,
		content TEXT,
		author_id TEXT NOT NULL,
		collaborators TEXT,
		is_public INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		last_edited_by TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);`
	if _, err = db.Exec(noteTableStmt); err != nil {
		log.Fatalf("failed to create notes table: %v", err)
	}

	userTableStmt := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT,
		created_at DATETIME
	);`
	if _, err = db.Exec(userTableStmt); err != nil {
		log.Fatalf("failed to create users table: %v", err)
	}

	return &sqliteStore{db}
}

func (s *sqliteStore) GetNote(ctx context.Context, id string) (*core.Note, error) {
	logEntry := logrus.WithField("note_id", id)
	logEntry.Debug("retrieving note by ID")

	var note core.Note
	var collaborators sql.NullString
	var lastEditedBy sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, content, author_id, collaborators, is_public, version, last_edited_by, created_at, updated_at FROM notes WHERE id = ?", id,
	).Scan(&note.ID, &note.Title, &note.Content, &note.AuthorID, &collaborators, &note.IsPublic, &note.Version, &lastEditedBy, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			logEntry.Warn("note with specified ID not found")
			return nil, core.ErrNoteNotFound
		}
		logEntry.WithError(err).Error("failed to retrieve note")
		return nil, err
	}

	note.LastEditedBy = lastEditedBy.String
	if collaborators.Valid && collaborators.String != "" {
		if err := json.Unmarshal([]byte(collaborators.String), &note.Collaborators); err != nil {
			return nil, fmt.Errorf("failed to decode collaborators for note %s: %w", id, err)
		}
	}
	return &note, nil
}

func (s *sqliteStore) SaveNote(ctx context.Context, note *core.Note) error {
	collaborators, err := json.Marshal(note.Collaborators)
	if err != nil {
		return fmt.Errorf("failed to encode collaborators: %w", err)
	}
	note.UpdatedAt = time.Now()

	res, err := s.db.ExecContext(ctx,
		"UPDATE notes SET title = ?, content = ?, collaborators = ?, is_public = ?, version = ?, last_edited_by = ?, updated_at = ? WHERE id = ?",
		note.Title, note.Content, string(collaborators), note.IsPublic, note.Version, note.LastEditedBy, note.UpdatedAt, note.ID)
	if err != nil {
		logrus.WithField("note_id", note.ID).WithError(err).Error("failed to save note")
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return core.ErrNoteNotFound
	}
	return nil
}

func (s *sqliteStore) CreateNote(ctx context.Context, note *core.Note) (string, error) {
	if note.ID == "" {
		note.ID = ulid.Make().String()
	}
	if note.Version == 0 {
		note.Version = 1
	}
	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	collaborators, err := json.Marshal(note.Collaborators)
	if err != nil {
		return "", fmt.Errorf("failed to encode collaborators: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO notes (id, title, content, author_id, collaborators, is_public, version, last_edited_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		note.ID, note.Title, note.Content, note.AuthorID, string(collaborators), note.IsPublic, note.Version, note.LastEditedBy, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		logrus.WithField("note_id", note.ID).WithError(err).Error("failed to create note")
		return "", err
	}
	return note.ID, nil
}

func (s *sqliteStore) FindUser(ctx context.Context, id string) (*core.User, error) {
	var user core.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, created_at FROM users WHERE id = ?", id,
	).Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
