package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/csvtap/csvtap/pkg/store"
)

func obj(key string, modified time.Time) store.Object {
	return store.Object{Key: key, LastModified: modified}
}

func TestShouldSkip(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	b := NewBookmark()
	b.Tables["users"] = TableBookmark{
		MaxModified: base,
		KeysAtMax:   []string{"users/a.csv"},
	}

	tests := []struct {
		name string
		obj  store.Object
		want bool
	}{
		{"older than watermark", obj("users/old.csv", base.Add(-time.Hour)), true},
		{"at watermark, key recorded", obj("users/a.csv", base), true},
		{"at watermark, new key", obj("users/b.csv", base), false},
		{"newer than watermark", obj("users/c.csv", base.Add(time.Hour)), false},
	}
	for _, tt := range tests {
		if got := b.ShouldSkip("users", tt.obj); got != tt.want {
			t.Errorf("%s: ShouldSkip = %v, want %v", tt.name, got, tt.want)
		}
	}

	// A table with no bookmark skips nothing.
	if b.ShouldSkip("orders", obj("orders/x.csv", base.Add(-time.Hour))) {
		t.Error("unbookmarked table should not skip anything")
	}
}

func TestAdvance(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBookmark()

	if !b.Advance("users", obj("users/a.csv", base)) {
		t.Fatal("first advance should change the bookmark")
	}
	// Idempotent: same object again.
	if b.Advance("users", obj("users/a.csv", base)) {
		t.Error("re-advancing the same object should be a no-op")
	}

	// Second object at the same timestamp joins the key set.
	if !b.Advance("users", obj("users/b.csv", base)) {
		t.Fatal("same-timestamp new key should change the bookmark")
	}
	tb := b.Table("users")
	wantKeys := []string{"users/a.csv", "users/b.csv"}
	if !reflect.DeepEqual(tb.KeysAtMax, wantKeys) {
		t.Errorf("KeysAtMax = %v, want %v", tb.KeysAtMax, wantKeys)
	}

	// Newer object replaces the key set.
	later := base.Add(time.Minute)
	if !b.Advance("users", obj("users/c.csv", later)) {
		t.Fatal("newer object should change the bookmark")
	}
	tb = b.Table("users")
	if !tb.MaxModified.Equal(later) {
		t.Errorf("MaxModified = %v, want %v", tb.MaxModified, later)
	}
	if !reflect.DeepEqual(tb.KeysAtMax, []string{"users/c.csv"}) {
		t.Errorf("KeysAtMax = %v, want just users/c.csv", tb.KeysAtMax)
	}

	// The watermark never moves backwards.
	if b.Advance("users", obj("users/stale.csv", base)) {
		t.Error("an object older than the watermark should not move it")
	}
	if !b.Table("users").MaxModified.Equal(later) {
		t.Error("watermark moved backwards")
	}
}

func TestAdvanceThenSkip(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBookmark()

	objects := []store.Object{
		obj("t/1.csv", base),
		obj("t/2.csv", base),
		obj("t/3.csv", base.Add(time.Second)),
	}
	for _, o := range objects {
		b.Advance("t", o)
	}
	for _, o := range objects {
		if !b.ShouldSkip("t", o) {
			t.Errorf("object %s advanced but not skipped", o.Key)
		}
	}
}

func TestSeedStartDate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	b := NewBookmark()
	b.SeedStartDate("users", start)
	if !b.ShouldSkip("users", obj("users/old.csv", start.Add(-time.Hour))) {
		t.Error("objects before the start date should be skipped")
	}
	if b.ShouldSkip("users", obj("users/at.csv", start)) {
		t.Error("an object at exactly the start date should be processed")
	}

	// Seeding never overrides an existing bookmark.
	existing := start.Add(48 * time.Hour)
	b.Advance("users", obj("users/new.csv", existing))
	b.SeedStartDate("users", start)
	if !b.Table("users").MaxModified.Equal(existing) {
		t.Error("seeding overwrote an existing bookmark")
	}

	// A zero start date seeds nothing.
	b.SeedStartDate("orders", time.Time{})
	if _, ok := b.Tables["orders"]; ok {
		t.Error("zero start date should not create a bookmark")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "csvtap.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	// Missing file loads as an empty bookmark.
	b, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load before first save: %v", err)
	}
	if len(b.Tables) != 0 {
		t.Fatalf("fresh bookmark has %d tables", len(b.Tables))
	}

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b.Advance("users", obj("users/a.csv", ts))
	b.RunID = "run-1"
	if err := s.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if loaded.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", loaded.RunID)
	}
	tb := loaded.Table("users")
	if !tb.MaxModified.Equal(ts) || !reflect.DeepEqual(tb.KeysAtMax, []string{"users/a.csv"}) {
		t.Errorf("loaded bookmark = %+v", tb)
	}

	// The temp file from the atomic write must not linger.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp state file left behind")
	}
}

func TestFileStoreCorrupt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, ErrCorruptState) {
		t.Errorf("Load of corrupt file = %v, want ErrCorruptState", err)
	}

	// The manager refuses to start on corrupt state.
	if _, err := NewManager(ctx, s, "run-1"); !errors.Is(err, ErrCorruptState) {
		t.Errorf("NewManager = %v, want ErrCorruptState", err)
	}
}

// countingStore wraps FileStore to count Save calls.
type countingStore struct {
	*FileStore
	saves int
}

func (c *countingStore) Save(ctx context.Context, b *Bookmark) error {
	c.saves++
	return c.FileStore.Save(ctx, b)
}

func TestManagerAdvanceFlushes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	fs, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	cs := &countingStore{FileStore: fs}

	m, err := NewManager(ctx, cs, "run-1")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	changed, err := m.Advance(ctx, "users", obj("users/a.csv", ts))
	if err != nil || !changed {
		t.Fatalf("Advance = (%v, %v), want (true, nil)", changed, err)
	}
	if cs.saves != 1 {
		t.Errorf("saves after first advance = %d, want 1", cs.saves)
	}

	// An unchanged bookmark does not hit the backend.
	changed, err = m.Advance(ctx, "users", obj("users/a.csv", ts))
	if err != nil || changed {
		t.Fatalf("repeat Advance = (%v, %v), want (false, nil)", changed, err)
	}
	if cs.saves != 1 {
		t.Errorf("saves after no-op advance = %d, want 1", cs.saves)
	}

	// A fresh manager sees the persisted progress.
	m2, err := NewManager(ctx, cs, "run-2")
	if err != nil {
		t.Fatal(err)
	}
	if !m2.ShouldSkip("users", obj("users/a.csv", ts)) {
		t.Error("second run should skip the already-processed object")
	}
}
