// Package store abstracts the object stores the connector can read from.
package store

import (
	"context"
	"io"
	"time"
)

// Object describes a single stored object. Identity is the key; an object
// is immutable once listed.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// Lister enumerates objects page by page. Next returns the next page of
// objects, or ok=false when the listing is exhausted. A Lister is good for
// one pass; obtain a fresh one per run.
type Lister interface {
	Next(ctx context.Context) (objects []Object, ok bool, err error)
}

// ObjectStore is the capability the connector needs from a store:
// list objects under a prefix and open a byte stream for a key.
// Implementations report transient failures via TransientError so callers
// can retry, and everything else as fatal.
type ObjectStore interface {
	List(ctx context.Context, prefix string) Lister
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
