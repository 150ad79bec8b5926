package store

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, key, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLocalStoreList(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "exports/users/a.csv", "id\n1\n")
	writeFile(t, root, "exports/users/b.csv", "id\n2\n")
	writeFile(t, root, "other/readme.txt", "x")

	s, err := NewLocalStore(root)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	lister := s.List(ctx, "exports/")
	objects, ok, err := lister.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("Next = (%v, %v)", ok, err)
	}
	if len(objects) != 2 {
		t.Fatalf("listed %d objects, want 2", len(objects))
	}
	if objects[0].Key != "exports/users/a.csv" || objects[1].Key != "exports/users/b.csv" {
		t.Errorf("keys = %s, %s", objects[0].Key, objects[1].Key)
	}
	if objects[0].Size != int64(len("id\n1\n")) {
		t.Errorf("size = %d, want %d", objects[0].Size, len("id\n1\n"))
	}
	if objects[0].LastModified.IsZero() {
		t.Error("missing last modified")
	}

	// Single page: the second call ends iteration.
	if _, ok, err := lister.Next(ctx); ok || err != nil {
		t.Errorf("second Next = (%v, %v), want end of listing", ok, err)
	}
}

func TestLocalStoreOpen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "data.csv", "id\n1\n")

	s, err := NewLocalStore(root)
	if err != nil {
		t.Fatal(err)
	}

	body, err := s.Open(ctx, "data.csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil || string(data) != "id\n1\n" {
		t.Errorf("read = (%q, %v)", data, err)
	}

	if _, err := s.Open(ctx, "missing.csv"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open missing = %v, want ErrNotFound", err)
	}
}

func TestNewLocalStoreRejectsBadRoot(t *testing.T) {
	if _, err := NewLocalStore(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("missing root should be rejected")
	}

	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLocalStore(file); err == nil {
		t.Error("non-directory root should be rejected")
	}
}
