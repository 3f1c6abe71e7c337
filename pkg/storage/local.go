package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore persists videos on disk under a base directory and serves them
// through HMAC-signed links at <mediaBaseURL>/<token>.
type LocalStore struct {
	baseDir      string
	mediaBaseURL string
	signer       *SignedURLSigner
}

// NewLocalStore ensures the base directory exists and returns a handle.
func NewLocalStore(baseDir, mediaBaseURL string, signer *SignedURLSigner) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = "./videos"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStore{baseDir: baseDir, mediaBaseURL: strings.TrimRight(mediaBaseURL, "/"), signer: signer}, nil
}

// Put streams the body into <baseDir>/<filename>, replacing any previous file.
func (s *LocalStore) Put(ctx context.Context, in PutInput) (*Object, error) {
	path, err := s.resolve(in.Filename)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.baseDir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	written, err := io.Copy(tmp, readerWithContext(ctx, in.Body))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("write upload stream: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("finalise upload: %w", err)
	}

	return &Object{Key: in.Filename, URL: s.objectURL(in.Filename), Filename: in.Filename, Size: written}, nil
}

// List returns every regular file under the base directory.
func (s *LocalStore) List(ctx context.Context) ([]Object, error) {
	objects := make([]Object, 0)
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Key: key, URL: s.objectURL(key), Filename: filepath.Base(key), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list storage: %w", err)
	}
	return objects, nil
}

// Delete removes a stored file if present.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStore) Open(key string) (*os.File, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return file, nil
}

// PresignedURL returns a time-limited playback link for key.
func (s *LocalStore) PresignedURL(key string) (string, error) {
	if s.signer == nil {
		return s.objectURL(key), nil
	}
	token, _, err := s.signer.Generate(key)
	if err != nil {
		return "", err
	}
	return s.mediaBaseURL + "/" + token, nil
}

// ResolveToken maps a signed media token back to its object key.
func (s *LocalStore) ResolveToken(token string) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("signed links disabled")
	}
	key, _, err := s.signer.Parse(token)
	return key, err
}

// objectURL is the stable reference persisted with catalog rows.
func (s *LocalStore) objectURL(key string) string {
	return "local://" + key
}

func (s *LocalStore) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
