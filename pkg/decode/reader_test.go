package decode

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func readAll(t *testing.T, input string, d Dialect) ([]string, []Row) {
	t.Helper()
	r, err := NewReader(strings.NewReader(input), d)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var rows []Row
	for {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rows = append(rows, row)
	}
	return r.Headers(), rows
}

func TestReaderBasic(t *testing.T) {
	headers, rows := readAll(t, "id,name\n1,alice\n2,bob\n", DefaultDialect())

	if !reflect.DeepEqual(headers, []string{"id", "name"}) {
		t.Errorf("headers = %v", headers)
	}
	want := []Row{
		{Line: 2, Fields: []string{"1", "alice"}},
		{Line: 3, Fields: []string{"2", "bob"}},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %+v, want %+v", rows, want)
	}
}

func TestReaderQuotedFields(t *testing.T) {
	input := `id,note
1,"hello, world"
2,"she said ""hi"""
3,"line one
line two"
`
	_, rows := readAll(t, input, DefaultDialect())

	want := [][]string{
		{"1", "hello, world"},
		{"2", `she said "hi"`},
		{"3", "line one\nline two"},
	}
	for i, fields := range want {
		if !reflect.DeepEqual(rows[i].Fields, fields) {
			t.Errorf("row %d = %v, want %v", i, rows[i].Fields, fields)
		}
	}
	// The multiline field counts as one logical row.
	if rows[2].Line != 4 {
		t.Errorf("multiline row line = %d, want 4", rows[2].Line)
	}
}

func TestReaderEscapeChar(t *testing.T) {
	d := DefaultDialect()
	d.Escape = '\\'

	input := "id,note\n1,\"a \\\"quoted\\\" word\"\n"
	_, rows := readAll(t, input, d)

	if got := rows[0].Fields[1]; got != `a "quoted" word` {
		t.Errorf("escaped field = %q", got)
	}
}

func TestReaderTabDelimited(t *testing.T) {
	d := DefaultDialect()
	d.Delimiter = '\t'

	_, rows := readAll(t, "a\tb\n1\t2\n", d)
	if !reflect.DeepEqual(rows[0].Fields, []string{"1", "2"}) {
		t.Errorf("fields = %v", rows[0].Fields)
	}
}

func TestReaderNoHeader(t *testing.T) {
	d := DefaultDialect()
	d.Header = false

	headers, rows := readAll(t, "1,alice\n2,bob\n", d)

	if !reflect.DeepEqual(headers, []string{"column_0", "column_1"}) {
		t.Errorf("headers = %v", headers)
	}
	// The first row is data, not a header.
	if len(rows) != 2 || !reflect.DeepEqual(rows[0].Fields, []string{"1", "alice"}) {
		t.Errorf("rows = %+v", rows)
	}
}

func TestReaderBOM(t *testing.T) {
	headers, _ := readAll(t, "\xEF\xBB\xBFid,name\n1,x\n", DefaultDialect())
	if headers[0] != "id" {
		t.Errorf("BOM not stripped: first header = %q", headers[0])
	}
}

func TestReaderBlankLinesAndCRLF(t *testing.T) {
	_, rows := readAll(t, "id,name\r\n\r\n1,alice\r\n\r\n", DefaultDialect())
	if len(rows) != 1 || !reflect.DeepEqual(rows[0].Fields, []string{"1", "alice"}) {
		t.Errorf("rows = %+v", rows)
	}
}

func TestReaderNoTrailingNewline(t *testing.T) {
	_, rows := readAll(t, "id\n1\n2", DefaultDialect())
	if len(rows) != 2 || rows[1].Fields[0] != "2" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestReaderEmptyHeaderName(t *testing.T) {
	headers, _ := readAll(t, "id,,name\n1,2,3\n", DefaultDialect())
	if !reflect.DeepEqual(headers, []string{"id", "column_1", "name"}) {
		t.Errorf("headers = %v", headers)
	}
}

func TestReaderEmptyFile(t *testing.T) {
	_, err := NewReader(strings.NewReader(""), DefaultDialect())
	if !errors.Is(err, ErrEmptyFile) {
		t.Errorf("empty file error = %v, want ErrEmptyFile", err)
	}

	d := DefaultDialect()
	d.Header = false
	_, err = NewReader(strings.NewReader("\n\n"), d)
	if !errors.Is(err, ErrEmptyFile) {
		t.Errorf("blank-only file error = %v, want ErrEmptyFile", err)
	}
}

func TestReaderLatin1(t *testing.T) {
	d := DefaultDialect()
	d.Encoding = "latin-1"

	// "café" encoded as ISO-8859-1.
	raw, err := charmap.ISO8859_1.NewEncoder().String("name\ncafé\n")
	if err != nil {
		t.Fatal(err)
	}
	_, rows := readAll(t, raw, d)
	if rows[0].Fields[0] != "café" {
		t.Errorf("decoded field = %q", rows[0].Fields[0])
	}
}

func TestDialectValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Dialect)
		wantErr bool
	}{
		{"defaults", func(d *Dialect) {}, false},
		{"semicolon delimiter", func(d *Dialect) { d.Delimiter = ';' }, false},
		{"delimiter equals quote", func(d *Dialect) { d.Quote = ',' }, true},
		{"escape equals delimiter", func(d *Dialect) { d.Escape = ',' }, true},
		{"unknown encoding", func(d *Dialect) { d.Encoding = "ebcdic" }, true},
		{"utf-16", func(d *Dialect) { d.Encoding = "utf-16" }, false},
	}
	for _, tt := range tests {
		d := DefaultDialect()
		tt.mutate(&d)
		if err := d.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
