// Package pipeline drives the extraction run: enumerate, group, infer,
// decode, emit, advance. One table at a time, one object at a time,
// rows streamed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/csvtap/csvtap/pkg/decode"
	"github.com/csvtap/csvtap/pkg/emit"
	"github.com/csvtap/csvtap/pkg/schema"
	"github.com/csvtap/csvtap/pkg/state"
	"github.com/csvtap/csvtap/pkg/store"
	"github.com/csvtap/csvtap/pkg/tables"
)

// Options configures a Runner.
type Options struct {
	Store   store.ObjectStore
	Grouper *tables.Grouper
	State   *state.Manager
	Emitter *emit.Emitter

	Dialect decode.Dialect

	// Prefix narrows listing when a table config has no prefix of its own.
	Prefix string

	// SampleRows bounds schema inference reads per file; 0 samples the
	// whole file.
	SampleRows int

	// MalformedThreshold is the fatal malformed-row rate; zero disables.
	MalformedThreshold float64
	MalformedScope     decode.ThresholdScope

	Retry store.RetryPolicy

	// StartDate seeds the watermark for tables with no persisted state.
	StartDate time.Time

	// Progress draws a per-table progress bar on stderr.
	Progress bool

	Logger *log.Logger
}

// Runner executes one extraction run.
type Runner struct {
	opts Options
	log  *log.Logger
}

// New validates options and builds a runner.
func New(opts Options) (*Runner, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Grouper == nil {
		return nil, fmt.Errorf("grouper is required")
	}
	if opts.State == nil {
		return nil, fmt.Errorf("state manager is required")
	}
	if opts.Emitter == nil {
		return nil, fmt.Errorf("emitter is required")
	}
	if opts.MalformedScope == "" {
		opts.MalformedScope = decode.ScopePerFile
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Runner{opts: opts, log: logger}, nil
}

// Run processes every configured table in order.
func (r *Runner) Run(ctx context.Context) error {
	for _, table := range r.opts.Grouper.Tables() {
		if err := r.runTable(ctx, table); err != nil {
			return fmt.Errorf("table %s: %w", table.Name, err)
		}
	}
	return r.opts.Emitter.Flush()
}

// Enumerate lists the objects the run would process for a table, in
// processing order, with already-bookmarked objects filtered out.
func (r *Runner) Enumerate(ctx context.Context, table *tables.Table) ([]store.Object, error) {
	r.opts.State.SeedStartDate(table.Name, r.opts.StartDate)

	prefix := table.Prefix
	if prefix == "" {
		prefix = r.opts.Prefix
	}

	var objects []store.Object
	lister := r.opts.Store.List(ctx, prefix)
	for {
		var (
			page []store.Object
			ok   bool
		)
		err := r.opts.Retry.Do(ctx, func() error {
			var e error
			page, ok, e = lister.Next(ctx)
			return e
		})
		if err != nil {
			return nil, fmt.Errorf("listing objects: %w", err)
		}
		if !ok {
			break
		}

		for _, obj := range page {
			owner, matched := r.opts.Grouper.Group(obj.Key)
			if !matched || owner.Name != table.Name {
				continue
			}
			if r.opts.State.ShouldSkip(table.Name, obj) {
				continue
			}
			objects = append(objects, obj)
		}
	}

	tables.SortObjects(objects)
	return objects, nil
}

func (r *Runner) runTable(ctx context.Context, table *tables.Table) error {
	objects, err := r.Enumerate(ctx, table)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		r.log.Printf("table %s: nothing new to extract", table.Name)
		return nil
	}
	r.log.Printf("table %s: %d new objects", table.Name, len(objects))

	var bar *progressbar.ProgressBar
	if r.opts.Progress {
		bar = progressbar.NewOptions(len(objects),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(table.Name),
			progressbar.OptionClearOnFinish(),
		)
	}

	tableSchema := schema.New()
	counter := &decode.MalformedCounter{Threshold: r.opts.MalformedThreshold}
	schemaEmitted := false

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(pctx)
	fetched := prefetchOpen(gctx, g, r.opts.Store, r.opts.Retry, objects)

	var runErr error
	for pf := range fetched {
		if pf.Err != nil {
			runErr = fmt.Errorf("object %s: %w", pf.Object.Key, pf.Err)
			break
		}

		if err := r.runObject(ctx, table, pf, tableSchema, counter, &schemaEmitted); err != nil {
			runErr = fmt.Errorf("object %s: %w", pf.Object.Key, err)
			break
		}

		if r.opts.MalformedScope == decode.ScopePerFile {
			counter.Reset()
		}
		if bar != nil {
			bar.Add(1)
		}
	}

	if runErr != nil {
		// Stop the prefetcher before draining; without the cancel it
		// would keep opening every remaining object, retries included.
		cancel()
		drain(fetched)
	}
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}

	r.opts.Emitter.Done(table.Name)
	return nil
}

// runObject samples an object for schema inference, then streams and
// emits its rows, and finally advances the bookmark and checkpoints.
func (r *Runner) runObject(ctx context.Context, table *tables.Table, pf Prefetched, tableSchema *schema.Schema, counter *decode.MalformedCounter, schemaEmitted *bool) error {
	fileSchema, err := r.sampleObject(pf.Body)
	if errors.Is(err, decode.ErrEmptyFile) {
		// Nothing to emit, but the object is done: advance past it so the
		// next run does not pick it up again.
		r.log.Printf("table %s: %s is empty, skipping", table.Name, pf.Object.Key)
		if _, err := r.opts.State.Advance(ctx, table.Name, pf.Object); err != nil {
			return err
		}
		return r.opts.Emitter.State(r.opts.State.Bookmark())
	}
	if err != nil {
		return err
	}

	changed := tableSchema.MergeSchema(fileSchema)
	tableSchema.Finalize()
	if changed || !*schemaEmitted {
		if err := r.opts.Emitter.Schema(table.Name, tableSchema, table.KeyProperties); err != nil {
			return err
		}
		*schemaEmitted = true
	}

	if err := r.streamObject(ctx, table, pf.Object, tableSchema, counter, schemaEmitted); err != nil {
		return err
	}

	if counter.Exceeded() {
		return counter.Err("malformed row threshold exceeded")
	}

	if _, err := r.opts.State.Advance(ctx, table.Name, pf.Object); err != nil {
		return err
	}
	if err := r.opts.Emitter.State(r.opts.State.Bookmark()); err != nil {
		return err
	}
	return nil
}

// sampleObject reads up to SampleRows rows from an already-open stream
// and infers the file's schema. The stream is consumed and closed;
// streaming reopens from offset zero.
func (r *Runner) sampleObject(body io.ReadCloser) (*schema.Schema, error) {
	defer body.Close()

	reader, err := decode.NewReader(body, r.opts.Dialect)
	if err != nil {
		return nil, err
	}

	headers := reader.Headers()
	var rows [][]string
	for r.opts.SampleRows == 0 || len(rows) < r.opts.SampleRows {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sampling: %w", err)
		}
		// Rows streaming will discard as malformed must not skew the
		// inferred types either.
		if len(row.Fields) != len(headers) {
			continue
		}
		rows = append(rows, row.Fields)
	}

	return schema.InferRows(headers, rows), nil
}

func (r *Runner) streamObject(ctx context.Context, table *tables.Table, obj store.Object, tableSchema *schema.Schema, counter *decode.MalformedCounter, schemaEmitted *bool) error {
	var body io.ReadCloser
	err := r.opts.Retry.Do(ctx, func() error {
		var e error
		body, e = r.opts.Store.Open(ctx, obj.Key)
		return e
	})
	if err != nil {
		return err
	}
	defer body.Close()

	reader, err := decode.NewReader(body, r.opts.Dialect)
	if err != nil {
		return err
	}
	headers := reader.Headers()

	var emitted int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		rec, widened, ok := decode.CoerceRow(row, headers, tableSchema)
		if !ok {
			counter.Observe(true)
			r.log.Printf("table %s: %s row %d: field count %d != header count %d, skipping",
				table.Name, obj.Key, row.Line, len(row.Fields), len(headers))
			continue
		}
		counter.Observe(false)

		// A field fell back to string: widen the table schema and
		// re-announce it before the record that needs it.
		widenedAny := false
		for _, name := range widened {
			if tableSchema.Widen(name, schema.TypeString) {
				widenedAny = true
			}
		}
		if widenedAny {
			if err := r.opts.Emitter.Schema(table.Name, tableSchema, table.KeyProperties); err != nil {
				return err
			}
			*schemaEmitted = true
		}

		if err := r.opts.Emitter.Record(table.Name, rec); err != nil {
			return err
		}
		emitted++
	}

	rows, malformed := counter.Counts()
	r.log.Printf("table %s: %s: emitted %d records (%d of %d rows malformed)",
		table.Name, obj.Key, emitted, malformed, rows)
	return nil
}
