package decode

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyFile indicates an object with no rows at all. Callers usually
// treat it as "processed, nothing to emit" rather than a failure.
var ErrEmptyFile = errors.New("file is empty")

// Row is one raw data row in file order.
type Row struct {
	// Line is the 1-based logical row number, counting the header.
	Line int64

	// Fields are the raw field values, unquoted but uncoerced.
	Fields []string
}

// Reader streams rows from one delimited file. It is a finite, forward
// only sequence: Next returns io.EOF when the file is exhausted. A
// reader is not restartable mid-file; restarting means reopening the
// object from offset zero.
type Reader struct {
	r       *bufio.Reader
	dialect Dialect
	headers []string
	line    int64
	first   bool

	pending *Row
}

// NewReader wraps an open byte stream. When the dialect has a header row
// it is consumed immediately so Headers is available before the first
// Next call. Files without a header row get positional column names
// ("column_0", ...) sized from the first data row, which is buffered and
// still returned by Next.
func NewReader(raw io.Reader, d Dialect) (*Reader, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dialect: %w", err)
	}

	decoded, err := decodeReader(raw, d.Encoding)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		r:       bufio.NewReaderSize(decoded, 256*1024),
		dialect: d,
		first:   true,
	}

	if d.Header {
		line, err := r.readLine()
		if err != nil {
			if err == io.EOF {
				return nil, ErrEmptyFile
			}
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
		fields := r.parseFields(line)
		headers := make([]string, len(fields))
		for i, f := range fields {
			name := strings.TrimSpace(f)
			if name == "" {
				name = fmt.Sprintf("column_%d", i)
			}
			headers[i] = name
		}
		r.headers = headers
	} else {
		row, err := r.next()
		if err != nil {
			if err == io.EOF {
				return nil, ErrEmptyFile
			}
			return nil, err
		}
		headers := make([]string, len(row.Fields))
		for i := range headers {
			headers[i] = fmt.Sprintf("column_%d", i)
		}
		r.headers = headers
		r.pending = &row
	}

	return r, nil
}

// Headers returns the column names in file order.
func (r *Reader) Headers() []string {
	return r.headers
}

// Next returns the next data row, or io.EOF at end of file.
func (r *Reader) Next() (Row, error) {
	if r.pending != nil {
		row := *r.pending
		r.pending = nil
		return row, nil
	}
	return r.next()
}

func (r *Reader) next() (Row, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return Row{}, err
		}
		// Blank lines carry no row.
		if len(line) == 0 {
			continue
		}
		return Row{Line: r.line, Fields: r.parseFields(line)}, nil
	}
}

// readLine reads one logical row, honoring quotes that span physical
// newlines.
func (r *Reader) readLine() ([]byte, error) {
	var line []byte
	inQuote := false
	counted := false

	for {
		part, err := r.r.ReadBytes('\n')
		if len(part) > 0 {
			if r.first {
				part = bytes.TrimPrefix(part, []byte{0xEF, 0xBB, 0xBF})
				r.first = false
			}
			if !counted {
				r.line++
				counted = true
			}

			start := len(line)
			line = append(line, part...)

			for i := start; i < len(line); i++ {
				b := line[i]
				if r.dialect.Escape != 0 && b == r.dialect.Escape && inQuote {
					i++
					continue
				}
				if b == r.dialect.Quote {
					inQuote = !inQuote
				}
			}

			if !inQuote {
				return bytes.TrimRight(line, "\r\n"), nil
			}
		}

		if err != nil {
			trimmed := bytes.TrimRight(line, "\r\n")
			if err == io.EOF && len(trimmed) > 0 {
				return trimmed, nil
			}
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read failed at row %d: %w", r.line, err)
		}
	}
}

// parseFields splits one logical row into unquoted fields.
func (r *Reader) parseFields(line []byte) []string {
	d := r.dialect
	var fields []string
	var field []byte
	inQuote := false

	for i := 0; i < len(line); i++ {
		b := line[i]

		switch {
		case d.Escape != 0 && b == d.Escape && inQuote && i+1 < len(line):
			// Explicit escape character: next byte is literal.
			field = append(field, line[i+1])
			i++
		case b == d.Quote:
			if d.Escape == 0 && inQuote && i+1 < len(line) && line[i+1] == d.Quote {
				// RFC-4180 doubled quote inside a quoted field.
				field = append(field, d.Quote)
				i++
			} else {
				inQuote = !inQuote
			}
		case b == d.Delimiter && !inQuote:
			fields = append(fields, string(field))
			field = field[:0]
		default:
			field = append(field, b)
		}
	}

	fields = append(fields, string(field))
	return fields
}
