package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/csvtap/csvtap/pkg/decode"
	"github.com/csvtap/csvtap/pkg/schema"
	"github.com/csvtap/csvtap/pkg/store"
	"github.com/csvtap/csvtap/pkg/tables"
)

// Discovery summarizes what a run would extract for one table.
type Discovery struct {
	Table   *tables.Table
	Objects []store.Object

	// Schema is inferred from a sample of the pending objects; nil when
	// nothing is pending.
	Schema *schema.Schema
}

// Discover enumerates pending objects per table and infers each table's
// schema from samples, without emitting any records or touching state.
func (r *Runner) Discover(ctx context.Context) ([]Discovery, error) {
	var out []Discovery
	for _, table := range r.opts.Grouper.Tables() {
		objects, err := r.Enumerate(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", table.Name, err)
		}

		d := Discovery{Table: table, Objects: objects}
		if len(objects) > 0 {
			sch, err := r.inferSample(ctx, objects)
			if err != nil {
				return nil, fmt.Errorf("table %s: %w", table.Name, err)
			}
			d.Schema = sch
		}
		out = append(out, d)
	}
	return out, nil
}

// inferSample merges sampled schemas across the pending objects.
func (r *Runner) inferSample(ctx context.Context, objects []store.Object) (*schema.Schema, error) {
	merged := schema.New()
	for _, obj := range objects {
		var body io.ReadCloser
		err := r.opts.Retry.Do(ctx, func() error {
			var e error
			body, e = r.opts.Store.Open(ctx, obj.Key)
			return e
		})
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", obj.Key, err)
		}

		fileSchema, err := r.sampleObject(body)
		if errors.Is(err, decode.ErrEmptyFile) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", obj.Key, err)
		}
		merged.MergeSchema(fileSchema)
	}
	merged.Finalize()
	return merged, nil
}
