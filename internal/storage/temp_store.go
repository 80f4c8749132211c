package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TempStore holds short-lived working copies of videos for the duration
// of a single analysis. Every stored file must be released by the caller
// when the analysis settles, success or failure.
type TempStore struct {
	dir string
}

// NewTempStore creates the backing directory. An empty dir uses a
// subdirectory of the system temp dir.
func NewTempStore(dir string) (*TempStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "cfvideoanalysis")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TempStore{dir: dir}, nil
}

// Store copies src into a uniquely named file and returns its absolute
// path. A failed copy removes the partial file before returning; disk
// errors here are fatal to the current analysis and are never retried.
func (ts *TempStore) Store(src io.Reader, ext string) (string, error) {
	f, err := os.CreateTemp(ts.dir, "video-*"+sanitizeExt(ext))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	return f.Name(), nil
}

// Release removes a stored file. Releasing a path twice is harmless.
func (ts *TempStore) Release(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove temp file: %w", err)
	}
	return nil
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".mp4"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ".mp4"
		}
	}
	return ext
}
