package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// FileAdapter stores each blob as a file below a base directory.
// Writes go to a temporary sibling first and are renamed into place, so a
// crash mid-write never leaves a truncated snapshot behind.
type FileAdapter struct {
	fs  afero.Fs
	dir string
}

// NewFileAdapter creates an adapter rooted at dir on the OS filesystem
func NewFileAdapter(dir string) (*FileAdapter, error) {
	return NewFileAdapterFs(afero.NewOsFs(), dir)
}

// NewFileAdapterFs creates an adapter rooted at dir on the given filesystem
func NewFileAdapterFs(fs afero.Fs, dir string) (*FileAdapter, error) {
	if dir == "" {
		dir = "."
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create persistence directory %s: %w", dir, err)
	}
	return &FileAdapter{fs: fs, dir: dir}, nil
}

func (f *FileAdapter) path(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the persistence directory", ErrInvalidKey, key)
	}
	return filepath.Join(f.dir, clean), nil
}

// Read returns the contents of the file for key
func (f *FileAdapter) Read(ctx context.Context, key string) ([]byte, bool, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, false, err
	}

	blob, err := afero.ReadFile(f.fs, p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return blob, true, nil
}

// Write atomically replaces the file for key
func (f *FileAdapter) Write(ctx context.Context, key string, blob []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := f.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}

	tmp := p + "." + uuid.NewString() + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, blob, 0o644); err != nil {
		_ = f.fs.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.fs.Rename(tmp, p); err != nil {
		_ = f.fs.Remove(tmp)
		return fmt.Errorf("failed to move snapshot into place at %s: %w", p, err)
	}
	return nil
}

// Close is a no-op for the file adapter
func (f *FileAdapter) Close() error {
	return nil
}
