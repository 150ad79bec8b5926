package state

import (
	"context"
	"fmt"
	"time"

	"github.com/csvtap/csvtap/pkg/store"
)

// Store persists bookmarks. Load returns an empty bookmark when nothing
// was persisted yet, and an error wrapping ErrCorruptState when the
// persisted payload cannot be parsed.
type Store interface {
	Load(ctx context.Context) (*Bookmark, error)
	Save(ctx context.Context, b *Bookmark) error

	// Name identifies the backend for logging.
	Name() string
}

// Manager is the sole owner and mutator of the run's bookmark. It is
// used only from the sequential pipeline path, so it carries no lock.
type Manager struct {
	store    Store
	bookmark *Bookmark
}

// NewManager loads persisted state through s. A parse failure aborts the
// run before any object is processed.
func NewManager(ctx context.Context, s Store, runID string) (*Manager, error) {
	b, err := s.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading state from %s: %w", s.Name(), err)
	}
	b.RunID = runID
	return &Manager{store: s, bookmark: b}, nil
}

// Bookmark returns the current bookmark for inspection and STATE output.
func (m *Manager) Bookmark() *Bookmark {
	return m.bookmark
}

// ShouldSkip reports whether obj was already processed for table.
func (m *Manager) ShouldSkip(table string, obj store.Object) bool {
	return m.bookmark.ShouldSkip(table, obj)
}

// SeedStartDate applies the configured initial watermark for tables with
// no persisted bookmark.
func (m *Manager) SeedStartDate(table string, startDate time.Time) {
	m.bookmark.SeedStartDate(table, startDate)
}

// Advance marks obj fully processed and flushes the state when the
// bookmark moved. Flushing per object bounds crash loss to the in-flight
// object only.
func (m *Manager) Advance(ctx context.Context, table string, obj store.Object) (bool, error) {
	if !m.bookmark.Advance(table, obj) {
		return false, nil
	}
	if err := m.store.Save(ctx, m.bookmark); err != nil {
		return true, fmt.Errorf("flushing state to %s: %w", m.store.Name(), err)
	}
	return true, nil
}

// Flush persists the current bookmark unconditionally.
func (m *Manager) Flush(ctx context.Context) error {
	if err := m.store.Save(ctx, m.bookmark); err != nil {
		return fmt.Errorf("flushing state to %s: %w", m.store.Name(), err)
	}
	return nil
}
