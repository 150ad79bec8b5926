package decode

import (
	"strconv"
	"strings"

	"github.com/csvtap/csvtap/pkg/schema"
)

// Record is a coerced row keyed by column name.
type Record map[string]any

// isNullToken reports whether a raw field means "no value". Some
// exporters write <NULL> instead of an empty field.
func isNullToken(s string) bool {
	if s == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(s), "<null>")
}

// CoerceRow aligns raw fields to headers and casts each one per the
// table schema. A field a typed column cannot parse is kept as a string,
// and the column name is returned in widened so the caller can merge the
// widening into the table schema and re-announce it. Schema columns the
// file does not carry are backfilled as null, so every record has the
// full column set of the announced schema. Rows whose field count
// differs from the header count are malformed and yield ok=false.
func CoerceRow(row Row, headers []string, s *schema.Schema) (rec Record, widened []string, ok bool) {
	if len(row.Fields) != len(headers) {
		return nil, nil, false
	}

	rec = make(Record, len(headers))
	for i, name := range headers {
		col, known := s.Lookup(name)
		raw := row.Fields[i]

		if isNullToken(raw) {
			switch {
			case !known || col.Nullable:
				rec[name] = nil
			case col.Type == schema.TypeString:
				rec[name] = ""
			default:
				// Non-nullable typed column with an empty field: keep
				// the raw text and widen, the same local recovery as
				// any other parse failure.
				rec[name] = raw
				widened = append(widened, name)
			}
			continue
		}

		if !known {
			rec[name] = raw
			continue
		}

		v, parsed := coerceValue(raw, col.Type)
		if parsed {
			rec[name] = v
			continue
		}
		rec[name] = raw
		widened = append(widened, name)
	}

	// Columns the table schema carries but this file's header lacks.
	// MergeSchema marked them nullable when the file was merged in.
	for _, col := range s.Columns() {
		if _, present := rec[col.Name]; !present {
			rec[col.Name] = nil
		}
	}

	return rec, widened, true
}

func coerceValue(raw string, t schema.Type) (any, bool) {
	s := strings.TrimSpace(raw)
	switch t {
	case schema.TypeBoolean:
		switch strings.ToLower(s) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return nil, false
	case schema.TypeInteger:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		return v, true
	case schema.TypeNumber:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		return v, true
	default:
		return raw, true
	}
}
