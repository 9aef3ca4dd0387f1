// Package local stores JSON documents as files under a base directory.
// A document is addressed by path elements: the last one names the file,
// the others name directories.
package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

const ext = ".json"

// Store provides thread-safe JSON file storage
type Store struct {
	basePath string
	mu       sync.RWMutex
}

// NewStore creates the base directory if needed
func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// BasePath returns the directory documents are stored under
func (s *Store) BasePath() string { return s.basePath }

func (s *Store) dir(elems []string) (string, error) {
	for _, e := range elems {
		if e == "" || e == "." || e == ".." || strings.ContainsAny(e, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, e)
		}
	}
	return filepath.Join(append([]string{s.basePath}, elems...)...), nil
}

func (s *Store) file(elems []string) (string, error) {
	if len(elems) == 0 {
		return "", fmt.Errorf("%w: empty path", ErrInvalidKey)
	}
	p, err := s.dir(elems)
	if err != nil {
		return "", err
	}
	return p + ext, nil
}

// Save writes v as indented JSON. The file is replaced atomically so a
// reader never sees a partial document.
func (s *Store) Save(v any, elems ...string) error {
	path, err := s.file(elems)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// Load decodes the document into v, or returns ErrNotFound
func (s *Store) Load(v any, elems ...string) error {
	path, err := s.file(elems)
	if err != nil {
		return err
	}

	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("read file: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// Delete removes a document, or returns ErrNotFound
func (s *Store) Delete(elems ...string) error {
	path, err := s.file(elems)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// Exists reports whether a document exists
func (s *Store) Exists(elems ...string) bool {
	path, err := s.file(elems)
	if err != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// List returns the sorted document names directly inside the directory
// named by elems. A missing directory is empty.
func (s *Store) List(elems ...string) ([]string, error) {
	dir, err := s.dir(elems)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries, err := os.ReadDir(dir)
	s.mu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if base, ok := strings.CutSuffix(name, ext); ok {
			names = append(names, base)
		}
	}
	slices.Sort(names)
	return names, nil
}
