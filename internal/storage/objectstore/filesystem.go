package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/newswire/internal/interfaces"
)

// FilesystemStore is a content-addressed object store on the local
// filesystem, served over HTTP under /media/. Keys are deterministic
// (content/<sourceId>/<hash>.<ext>) so concurrent writers of the same
// key converge on the same object.
type FilesystemStore struct {
	baseDir string
	baseURL string // e.g. "http://localhost:8080/media"
	logger  arbor.ILogger
}

// NewFilesystemStore creates the store rooted at baseDir.
func NewFilesystemStore(baseDir, baseURL string, logger arbor.ILogger) (*FilesystemStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	return &FilesystemStore{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Upload writes data under key and returns the public URL. An existing
// object under the same key is left in place: keys are content-derived,
// so the bytes are equivalent.
func (s *FilesystemStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := s.cleanKey(key)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(cleanKey))
	if _, err := os.Stat(fullPath); err == nil {
		return s.PublicURL(cleanKey), nil
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	// Write to a temp file then rename so readers never see a partial
	// object and racing writers converge on one of the complete copies.
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp object: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close object: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to store object: %w", err)
	}

	s.logger.Debug().
		Str("key", cleanKey).
		Int("size", len(data)).
		Str("content_type", contentType).
		Msg("Object stored")

	return s.PublicURL(cleanKey), nil
}

// Exists reports whether an object is stored under key.
func (s *FilesystemStore) Exists(ctx context.Context, key string) (bool, error) {
	cleanKey, err := s.cleanKey(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filepath.Join(s.baseDir, filepath.FromSlash(cleanKey)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat object: %w", err)
}

// PublicURL returns the serving URL for a key.
func (s *FilesystemStore) PublicURL(key string) string {
	return s.baseURL + "/" + strings.TrimPrefix(key, "/")
}

// BaseDir returns the filesystem root, used to mount the HTTP file server.
func (s *FilesystemStore) BaseDir() string {
	return s.baseDir
}

// cleanKey rejects traversal outside the store root.
func (s *FilesystemStore) cleanKey(key string) (string, error) {
	cleaned := filepath.ToSlash(filepath.Clean("/" + key))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}

var _ interfaces.ObjectStore = (*FilesystemStore)(nil)
