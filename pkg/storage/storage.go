// Package storage provides the object stores that hold uploaded video files.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrObjectNotFound is returned when a key does not exist in the store.
var ErrObjectNotFound = errors.New("object not found")

// Object describes a stored file.
type Object struct {
	Key      string
	URL      string
	Filename string
	Size     int64
}

// PutInput carries a file to persist.
type PutInput struct {
	Filename    string
	Body        io.Reader
	Size        int64
	ContentType string
}

// ObjectStore is the minimal surface the video catalog needs from a backing store.
type ObjectStore interface {
	Put(ctx context.Context, in PutInput) (*Object, error)
	List(ctx context.Context) ([]Object, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by stores whose objects are only reachable through
// short-lived signed links.
type Presigner interface {
	PresignedURL(key string) (string, error)
}

func joinKey(prefix, filename string) string {
	if prefix == "" {
		return filename
	}
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(filename, "/")
}

func trimPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, strings.TrimRight(prefix, "/")+"/")
}
