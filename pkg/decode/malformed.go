package decode

import "fmt"

// ThresholdScope selects whether the malformed-row rate is evaluated per
// file or cumulatively across all of a table's files.
type ThresholdScope string

const (
	ScopePerFile  ThresholdScope = "per_file"
	ScopePerTable ThresholdScope = "per_table"
)

// ParseThresholdScope parses a scope name, defaulting to per_file.
func ParseThresholdScope(s string) (ThresholdScope, error) {
	switch s {
	case "", string(ScopePerFile):
		return ScopePerFile, nil
	case string(ScopePerTable):
		return ScopePerTable, nil
	default:
		return "", fmt.Errorf("unknown malformed_row_scope %q (want per_file or per_table)", s)
	}
}

// MalformedCounter tracks malformed rows against a rate threshold.
// Threshold is a fraction in [0,1]; zero disables the check entirely
// (rows are still counted and reported).
type MalformedCounter struct {
	Threshold float64

	rows      int64
	malformed int64
}

// Observe records one row.
func (c *MalformedCounter) Observe(malformed bool) {
	c.rows++
	if malformed {
		c.malformed++
	}
}

// Counts returns total and malformed row counts.
func (c *MalformedCounter) Counts() (rows, malformed int64) {
	return c.rows, c.malformed
}

// Reset clears counts, used between files under per-file scope.
func (c *MalformedCounter) Reset() {
	c.rows = 0
	c.malformed = 0
}

// Exceeded reports whether the malformed rate is above the threshold.
func (c *MalformedCounter) Exceeded() bool {
	if c.Threshold <= 0 || c.rows == 0 {
		return false
	}
	return float64(c.malformed)/float64(c.rows) > c.Threshold
}

// Err returns the fatal error describing the exceeded threshold.
func (c *MalformedCounter) Err(context string) error {
	return fmt.Errorf("%s: %d of %d rows malformed, rate %.1f%% exceeds threshold %.1f%%",
		context, c.malformed, c.rows,
		float64(c.malformed)/float64(c.rows)*100, c.Threshold*100)
}
