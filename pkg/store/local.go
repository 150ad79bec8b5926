package store

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore reads objects from a local directory tree. Keys are
// slash-separated paths relative to the root. Used for development runs
// and tests; it implements the same contract as S3Store.
type LocalStore struct {
	root string
}

// NewLocalStore creates a local filesystem store rooted at root.
func NewLocalStore(root string) (*LocalStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}
	return &LocalStore{root: absRoot}, nil
}

// List walks the tree once and returns everything as a single page.
func (s *LocalStore) List(ctx context.Context, prefix string) Lister {
	return &localLister{store: s, prefix: prefix}
}

type localLister struct {
	store  *LocalStore
	prefix string
	done   bool
}

func (l *localLister) Next(ctx context.Context) ([]Object, bool, error) {
	if l.done {
		return nil, false, nil
	}
	l.done = true

	var objects []Object
	err := filepath.WalkDir(l.store.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.store.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if l.prefix != "" && !strings.HasPrefix(key, l.prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("list failed: %w", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, true, nil
}

// Open returns a reader for the file at key.
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", key, ErrNotFound)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("open %s: %w", key, ErrAccessDenied)
		}
		return nil, fmt.Errorf("open %s failed: %w", key, err)
	}
	return f, nil
}
