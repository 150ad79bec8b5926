// Package tables maps discovered objects onto logical tables.
package tables

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/csvtap/csvtap/pkg/store"
)

// Config describes one logical table: a name, a key regexp that selects
// its source objects, an optional listing prefix, and the columns that
// form the primary key downstream.
type Config struct {
	Name          string   `yaml:"name"`
	Pattern       string   `yaml:"pattern"`
	Prefix        string   `yaml:"prefix"`
	KeyProperties []string `yaml:"key_properties"`
}

// Table is a compiled table config.
type Table struct {
	Config
	re *regexp.Regexp
}

// Match reports whether key belongs to this table.
func (t *Table) Match(key string) bool {
	return t.re.MatchString(key)
}

// Grouper classifies object keys into tables. First configured pattern
// wins, so configuration order is significant; ambiguous configuration is
// rejected at compile time, not at match time.
type Grouper struct {
	tables []*Table
}

// NewGrouper compiles table configs. It fails on empty or duplicate
// names, duplicate patterns, and invalid regexps so that a broken
// configuration never reaches the store.
func NewGrouper(configs []Config) (*Grouper, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no tables configured")
	}

	names := make(map[string]bool, len(configs))
	patterns := make(map[string]string, len(configs))
	tables := make([]*Table, 0, len(configs))

	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("table with pattern %q has no name", cfg.Pattern)
		}
		if names[cfg.Name] {
			return nil, fmt.Errorf("duplicate table name %q", cfg.Name)
		}
		names[cfg.Name] = true

		if cfg.Pattern == "" {
			return nil, fmt.Errorf("table %q has no pattern", cfg.Name)
		}
		if prev, ok := patterns[cfg.Pattern]; ok {
			return nil, fmt.Errorf("ambiguous configuration: tables %q and %q share pattern %q",
				prev, cfg.Name, cfg.Pattern)
		}
		patterns[cfg.Pattern] = cfg.Name

		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("table %q: invalid pattern: %w", cfg.Name, err)
		}
		tables = append(tables, &Table{Config: cfg, re: re})
	}

	return &Grouper{tables: tables}, nil
}

// Tables returns the compiled tables in configuration order.
func (g *Grouper) Tables() []*Table {
	return g.tables
}

// Group returns the table owning key, or ok=false when no pattern matches.
func (g *Grouper) Group(key string) (*Table, bool) {
	for _, t := range g.tables {
		if t.Match(key) {
			return t, true
		}
	}
	return nil, false
}

// SortObjects orders objects by (last_modified, key) ascending. The
// bookmark watermark is only monotonic when objects are processed in
// this order.
func SortObjects(objects []store.Object) {
	sort.Slice(objects, func(i, j int) bool {
		if !objects[i].LastModified.Equal(objects[j].LastModified) {
			return objects[i].LastModified.Before(objects[j].LastModified)
		}
		return objects[i].Key < objects[j].Key
	})
}
