package pipeline

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/csvtap/csvtap/pkg/store"
)

// Prefetched pairs an object with its opened byte stream.
type Prefetched struct {
	Object store.Object
	Body   io.ReadCloser
	Err    error
}

// prefetchOpen opens objects in order on a background goroutine so the
// next object's stream is being established while the current one is
// consumed. Channel capacity 1 keeps at most one open stream waiting;
// emission order stays strictly sequential on the consumer side.
func prefetchOpen(ctx context.Context, g *errgroup.Group, st store.ObjectStore, retry store.RetryPolicy, objects []store.Object) <-chan Prefetched {
	out := make(chan Prefetched, 1)
	g.Go(func() error {
		defer close(out)
		for _, obj := range objects {
			var rc io.ReadCloser
			err := retry.Do(ctx, func() error {
				var e error
				rc, e = st.Open(ctx, obj.Key)
				return e
			})

			select {
			case out <- Prefetched{Object: obj, Body: rc, Err: err}:
			case <-ctx.Done():
				if rc != nil {
					rc.Close()
				}
				return ctx.Err()
			}

			if err != nil {
				// The consumer turns this into a fatal run error.
				return nil
			}
		}
		return nil
	})
	return out
}

// drain closes any streams still queued after an abort.
func drain(ch <-chan Prefetched) {
	for pf := range ch {
		if pf.Body != nil {
			pf.Body.Close()
		}
	}
}
