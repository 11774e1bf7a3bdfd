package core

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoteNotFound = errors.New("note not found")
	ErrUserNotFound = errors.New("user not found")
)

type (
	// Identity is the verified (id, username) pair attached to a live connection.
	Identity struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}

	// Note represents the metadata and content of a collaboratively edited note.
	Note struct {
		ID            string    `json:"id"`
		Title         string    `json:"title"`
		Content       string    `json:"content"`
		AuthorID      string    `json:"authorId"`
		Collaborators []string  `json:"collaborators"`
		IsPublic      bool      `json:"isPublic"`
		Version       int64     `json:"version"`
		LastEditedBy  string    `json:"lastEditedBy,omitempty"`
		CreatedAt     time.Time `json:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}

	// NoteStore defines the persistence layer for notes. Save must persist the
	// note as given, including the version the caller set.
	NoteStore interface {
		// GetNote returns a note by ID, or ErrNoteNotFound.
		GetNote(ctx context.Context, id string) (*Note, error)

		// SaveNote updates an existing note.
		SaveNote(ctx context.Context, note *Note) error

		// CreateNote stores a new note and returns its generated ID.
		CreateNote(ctx context.Context, note *Note) (string, error)
	}

	// UserDirectory resolves user IDs to full user records. Backed by the
	// identity store; the collaboration core only reads from it.
	UserDirectory interface {
		// FindUser returns a user by ID, or ErrUserNotFound.
		FindUser(ctx context.Context, id string) (*User, error)
	}
)

// CanEdit reports whether a user may view and edit the note: the author, a
// listed collaborator, or anyone if the note is public.
func (n *Note) CanEdit(userID string) bool {
	if n.IsPublic || n.AuthorID == userID {
		return true
	}
	for _, c := range n.Collaborators {
		if c == userID {
			return true
		}
	}
	return false
}
