package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"

	"notify-collab/core"
)

type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a new S3-based store. Notes live under notes/, users under
// users/, one JSON object each.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

func objectKey(prefix, id string) (string, error) {
	// Sanitize the ID to prevent path traversal; it must be a simple name.
	if id == "" || path.Base(id) != id || id == "." || id == ".." {
		return "", fmt.Errorf("invalid id: must be a simple name")
	}
	return path.Join(prefix, id+".json"), nil
}

func (s *s3Store) getObject(ctx context.Context, key string, out any) error {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return errNoSuchKey
		}
		return fmt.Errorf("failed to get object %s: %v", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %v", key, err)
	}
	return json.Unmarshal(data, out)
}

func (s *s3Store) putObject(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal object %s: %v", key, err)
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %v", key, err)
	}
	return nil
}

var errNoSuchKey = errors.New("no such key")

func (s *s3Store) GetNote(ctx context.Context, id string) (*core.Note, error) {
	key, err := objectKey("notes", id)
	if err != nil {
		return nil, err
	}
	var note core.Note
	if err := s.getObject(ctx, key, &note); err != nil {
		if errors.Is(err, errNoSuchKey) {
			return nil, core.ErrNoteNotFound
		}
		return nil, err
	}
	return &note, nil
}

func (s *s3Store) SaveNote(ctx context.Context, note *core.Note) error {
	key, err := objectKey("notes", note.ID)
	if err != nil {
		return err
	}
	var existing core.Note
	if err := s.getObject(ctx, key, &existing); err != nil {
		if errors.Is(err, errNoSuchKey) {
			return core.ErrNoteNotFound
		}
		return err
	}
	note.UpdatedAt = time.Now()
	return s.putObject(ctx, key, note)
}

func (s *s3Store) CreateNote(ctx context.Context, note *core.Note) (string, error) {
	if note.ID == "" {
		note.ID = ulid.Make().String()
	}
	if note.Version == 0 {
		note.Version = 1
	}
	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	key, err := objectKey("notes", note.ID)
	if err != nil {
		return "", err
	}
	if err := s.putObject(ctx, key, note); err != nil {
		return "", err
	}
	return note.ID, nil
}

func (s *s3Store) FindUser(ctx context.Context, id string) (*core.User, error) {
	key, err := objectKey("users", id)
	if err != nil {
		return nil, err
	}
	var user core.User
	if err := s.getObject(ctx, key, &user); err != nil {
		if errors.Is(err, errNoSuchKey) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
