package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the bookmark as a JSON file. Writes go through a
// temp file and rename so a crash mid-write never corrupts the previous
// state.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed state store at path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the persisted bookmark, returning an empty one when the
// file does not exist yet.
func (s *FileStore) Load(ctx context.Context) (*Bookmark, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewBookmark(), nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	b := NewBookmark()
	if err := json.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, s.path, err)
	}
	if b.Tables == nil {
		b.Tables = make(map[string]TableBookmark)
	}
	return b, nil
}

// Save writes the bookmark atomically.
func (s *FileStore) Save(ctx context.Context, b *Bookmark) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}

// Name returns "file".
func (s *FileStore) Name() string {
	return "file"
}
