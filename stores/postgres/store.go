package postgres

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"notify-collab/core"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL-based store.
func NewStore(databaseURL string) *pgStore {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		log.Fatalf("unable to connect to database: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		title TEXT,
		content TEXT NOT NULL DEFAULT '',
		author_id TEXT NOT NULL,
		collaborators TEXT[] NOT NULL DEFAULT '{}',
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		version BIGINT NOT NULL DEFAULT 1,
		last_edited_by TEXT,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT,
		created_at TIMESTAMPTZ
	);`
	if _, err := pool.Exec(context.Background(), schema); err != nil {
		log.Fatalf("failed to initialize postgres schema: %v", err)
	}

	return &pgStore{pool: pool}
}

func (s *pgStore) GetNote(ctx context.Context, id string) (*core.Note, error) {
	var note core.Note
	var lastEditedBy *string
	err := s.pool.QueryRow(ctx,
		"SELECT id, title, content, author_id, collaborators, is_public, version, last_edited_by, created_at, updated_at FROM notes WHERE id = $1", id,
	).Scan(&note.ID, &note.Title, &note.Content, &note.AuthorID, &note.Collaborators, &note.IsPublic, &note.Version, &lastEditedBy, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logrus.WithField("note_id", id).Warn("note with specified ID not found")
			return nil, core.ErrNoteNotFound
		}
		return nil, err
	}
	if lastEditedBy != nil {
		note.LastEditedBy = *lastEditedBy
	}
	return &note, nil
}

func (s *pgStore) SaveNote(ctx context.Context, note *core.Note) error {
	note.UpdatedAt = time.Now()
	tag, err := s.pool.Exec(ctx,
		"UPDATE notes SET title = $1, content = $2, collaborators = $3, is_public = $4, version = $5, last_edited_by = $6, updated_at = $7 WHERE id = $8",
		note.Title, note.Content, note.Collaborators, note.IsPublic, note.Version, note.LastEditedBy, note.UpdatedAt, note.ID)
	if err != nil {
		logrus.WithField("note_id", note.ID).WithError(err).Error("failed to save note")
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNoteNotFound
	}
	return nil
}

func (s *pgStore) CreateNote(ctx context.Context, note *core.Note) (string, error) {
	if note.ID == "" {
		note.ID = ulid.Make().String()
	}
	if note.Version == 0 {
		note.Version = 1
	}
	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		"INSERT INTO notes (id, title, content, author_id, collaborators, is_public, version, last_edited_by, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		note.ID, note.Title, note.Content, note.AuthorID, note.Collaborators, note.IsPublic, note.Version, note.LastEditedBy, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		logrus.WithField("note_id", note.ID).WithError(err).Error("failed to create note")
		return "", err
	}
	return note.ID, nil
}

func (s *pgStore) FindUser(ctx context.Context, id string) (*core.User, error) {
	var user core.User
	err := s.pool.QueryRow(ctx,
		"SELECT id, username, email, created_at FROM users WHERE id = $1", id,
	).Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Close releases the connection pool.
func (s *pgStore) Close() {
	s.pool.Close()
}
