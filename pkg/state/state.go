// Package state tracks and persists per-table extraction progress.
//
// A table's bookmark is the maximum last-modified timestamp of any object
// already fully processed, plus the set of keys processed at exactly that
// timestamp. The key set is what makes the watermark safe: two objects can
// share a timestamp, and a plain time comparison would either skip the
// second one or reprocess the first forever.
package state

import (
	"errors"
	"sort"
	"time"

	"github.com/csvtap/csvtap/pkg/store"
)

// ErrCorruptState indicates persisted state that cannot be parsed.
// Silently resetting it risks full reprocessing or silent data loss, so
// the run must abort and leave the decision to an operator.
var ErrCorruptState = errors.New("persisted state is corrupt")

// TableBookmark is the progress marker for one table.
type TableBookmark struct {
	MaxModified time.Time `json:"max_modified"`
	KeysAtMax   []string  `json:"keys_at_max"`
}

func (b TableBookmark) hasKey(key string) bool {
	for _, k := range b.KeysAtMax {
		if k == key {
			return true
		}
	}
	return false
}

// Bookmark is the whole persisted state: one entry per table, plus the ID
// of the run that last wrote it.
type Bookmark struct {
	RunID  string                   `json:"run_id,omitempty"`
	Tables map[string]TableBookmark `json:"tables"`
}

// NewBookmark returns an empty bookmark.
func NewBookmark() *Bookmark {
	return &Bookmark{Tables: make(map[string]TableBookmark)}
}

// Table returns the bookmark for a table, zero-valued when absent.
func (b *Bookmark) Table(name string) TableBookmark {
	return b.Tables[name]
}

// ShouldSkip reports whether obj was already fully processed for table.
// An object is processed when its modification time is before the
// watermark, or equal to it with the key recorded in the key set.
func (b *Bookmark) ShouldSkip(table string, obj store.Object) bool {
	tb, ok := b.Tables[table]
	if !ok {
		return false
	}
	if obj.LastModified.Before(tb.MaxModified) {
		return true
	}
	if obj.LastModified.Equal(tb.MaxModified) {
		return tb.hasKey(obj.Key)
	}
	return false
}

// Advance records obj as fully processed for table and reports whether
// the bookmark changed. Calling it again with the same object is a no-op.
// Callers must process objects in ascending (last_modified, key) order;
// an object older than the watermark never moves it.
func (b *Bookmark) Advance(table string, obj store.Object) bool {
	tb := b.Tables[table]

	switch {
	case obj.LastModified.After(tb.MaxModified):
		tb.MaxModified = obj.LastModified
		tb.KeysAtMax = []string{obj.Key}
	case obj.LastModified.Equal(tb.MaxModified):
		if tb.hasKey(obj.Key) {
			return false
		}
		tb.KeysAtMax = append(tb.KeysAtMax, obj.Key)
		sort.Strings(tb.KeysAtMax)
	default:
		return false
	}

	b.Tables[table] = tb
	return true
}

// SeedStartDate initializes a table's watermark when no prior state
// exists. Objects modified strictly before startDate are then skipped.
func (b *Bookmark) SeedStartDate(table string, startDate time.Time) {
	if _, ok := b.Tables[table]; ok {
		return
	}
	if startDate.IsZero() {
		return
	}
	b.Tables[table] = TableBookmark{MaxModified: startDate}
}
