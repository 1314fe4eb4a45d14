package frames

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/keyscan/internal/apperr"
	"github.com/starford/keyscan/internal/checksum"
	"github.com/starford/keyscan/internal/models"
)

// FS implements Provider backed by a local directory.
type FS struct {
	root string // absolute path to the frames directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("frames: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("frames: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("frames: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute frames directory.
func (f *FS) Root() string {
	return f.root
}

// safePath accepts only plain image file names and resolves them under root.
func (f *FS) safePath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("frames: name is required: %w", apperr.ErrInvalidName)
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("frames: %q: %w", name, apperr.ErrInvalidName)
	}
	if !IsImage(cleaned) {
		return "", fmt.Errorf("frames: unsupported extension %q: %w", name, apperr.ErrInvalidName)
	}
	return filepath.Join(f.root, cleaned), nil
}

// List returns metadata for every image file in the frames directory.
func (f *FS) List() ([]models.FrameMetadata, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("frames: list: %w", err)
	}
	var out []models.FrameMetadata
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		meta, err := f.stat(e)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FS) stat(e fs.DirEntry) (models.FrameMetadata, error) {
	info, err := e.Info()
	if err != nil {
		return models.FrameMetadata{}, err
	}
	file, err := os.Open(filepath.Join(f.root, e.Name()))
	if err != nil {
		return models.FrameMetadata{}, err
	}
	defer file.Close()
	sum, n, err := checksum.SumReader(file)
	if err != nil {
		return models.FrameMetadata{}, err
	}
	return models.FrameMetadata{
		Name:      e.Name(),
		Checksum:  sum,
		Size:      n,
		UpdatedAt: info.ModTime(),
	}, nil
}

// Read returns the raw bytes of a frame.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("frames: read %s: %w", name, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("frames: read %s: %w", name, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(name string, content []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".keyscan-tmp-*")
	if err != nil {
		return fmt.Errorf("frames: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("frames: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("frames: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("frames: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("frames: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a frame.
func (f *FS) Delete(name string) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("frames: delete %s: %w", name, apperr.ErrNotFound)
		}
		return fmt.Errorf("frames: delete %s: %w", name, err)
	}
	return nil
}
