// Package blob provides document payload storage. The SQL backend stores only
// metadata rows; payload bytes go through one of these backends and the
// resulting URL and storage path are recorded on the document.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalBlobStore writes payloads under a base directory on disk. URLs are
// served back through the application's own download endpoint.
type LocalBlobStore struct {
	baseDir string
	baseURL string
}

// NewLocalBlobStore creates a disk-backed blob store rooted at baseDir.
// baseURL is the public prefix download URLs are built from, typically the
// application's /files route.
func NewLocalBlobStore(baseDir, baseURL string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &LocalBlobStore{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Put stores the content at path and returns the URL it can be fetched from
func (l *LocalBlobStore) Put(ctx context.Context, path string, r io.Reader, size int64) (string, error) {
	full, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create blob file: %w", err)
	}
	tmpName := f.Name()
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	return l.baseURL + "/" + url.PathEscape(path), nil
}

// Delete removes the stored content. Deleting a missing path is not an error.
func (l *LocalBlobStore) Delete(ctx context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Open returns a reader over the stored content, used by the download handler
func (l *LocalBlobStore) Open(path string) (io.ReadCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// resolve maps a storage path to a file under baseDir, rejecting traversal
func (l *LocalBlobStore) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" {
		return "", fmt.Errorf("invalid blob path %q", path)
	}
	return filepath.Join(l.baseDir, clean), nil
}
