// Package decode streams delimited text files as raw and typed rows.
package decode

import "fmt"

// Dialect holds the syntactic parameters of a delimited file.
type Dialect struct {
	// Delimiter separates fields (default ',')
	Delimiter byte

	// Quote wraps fields containing delimiters or newlines (default '"')
	Quote byte

	// Escape escapes a quote inside a quoted field. Zero means the
	// RFC-4180 convention of doubling the quote character.
	Escape byte

	// Header indicates the first row names the columns (default true)
	Header bool

	// Encoding names the byte encoding (default "utf-8")
	Encoding string
}

// DefaultDialect returns the RFC-4180 defaults.
func DefaultDialect() Dialect {
	return Dialect{
		Delimiter: ',',
		Quote:     '"',
		Header:    true,
		Encoding:  "utf-8",
	}
}

// Validate rejects dialects that cannot be parsed unambiguously.
func (d Dialect) Validate() error {
	if d.Delimiter == 0 {
		return fmt.Errorf("delimiter is empty")
	}
	if d.Delimiter == d.Quote {
		return fmt.Errorf("delimiter and quote character are both %q", string(d.Delimiter))
	}
	if d.Escape != 0 && d.Escape == d.Delimiter {
		return fmt.Errorf("escape and delimiter character are both %q", string(d.Escape))
	}
	if _, err := lookupEncoding(d.Encoding); err != nil {
		return err
	}
	return nil
}
